package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/amishk599/jobsweep/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	UpdatedAt   string             `json:"updated_at"`
	Content     string             `json:"content"` // HTML, entity-encoded
	CompanyName string             `json:"company_name"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseFetcher reads a Greenhouse public job board. The board API is
// not paginated; one request returns every open job with content.
type GreenhouseFetcher struct {
	boardToken string
	employer   string
	client     *http.Client
}

// NewGreenhouseFetcher creates a fetcher for a Greenhouse board.
func NewGreenhouseFetcher(boardToken, employer string, client *http.Client) *GreenhouseFetcher {
	return &GreenhouseFetcher{boardToken: boardToken, employer: employer, client: client}
}

func (f *GreenhouseFetcher) FetchPage(ctx context.Context, _ string) (Page, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", greenhouseBaseURL, f.boardToken)

	var resp greenhouseResponse
	if err := doJSON(ctx, f.client, http.MethodGet, url, nil, &resp, "greenhouse fetch for "+f.boardToken); err != nil {
		return Page{}, err
	}

	postings := make([]model.RawPosting, 0, len(resp.Jobs))
	for _, gj := range resp.Jobs {
		employer := f.employer
		if employer == "" {
			employer = gj.CompanyName
		}
		postings = append(postings, model.RawPosting{
			SourceJobID: strconv.FormatInt(gj.ID, 10),
			Employer:    employer,
			Title:       gj.Title,
			Location:    gj.Location.Name,
			Description: extractText(gj.Content),
			URL:         gj.AbsoluteURL,
			PostedAt:    parseTime(gj.UpdatedAt),
		})
	}
	return Page{Postings: postings}, nil
}
