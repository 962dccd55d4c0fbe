package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/amishk599/jobsweep/internal/model"
)

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

type ashbyJob struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Location         string `json:"location"`
	WorkplaceType    string `json:"workplaceType"`
	JobURL           string `json:"jobUrl"`
	PublishedAt      string `json:"publishedAt"`
	IsListed         bool   `json:"isListed"`
	DescriptionPlain string `json:"descriptionPlain"`
}

type ashbyResponse struct {
	Jobs []ashbyJob `json:"jobs"`
}

// AshbyFetcher reads an Ashby job board. Single page.
type AshbyFetcher struct {
	boardToken string
	employer   string
	client     *http.Client
}

func NewAshbyFetcher(boardToken, employer string, client *http.Client) *AshbyFetcher {
	return &AshbyFetcher{boardToken: boardToken, employer: employer, client: client}
}

func (f *AshbyFetcher) FetchPage(ctx context.Context, _ string) (Page, error) {
	url := fmt.Sprintf("%s/%s", ashbyBaseURL, f.boardToken)

	var resp ashbyResponse
	if err := doJSON(ctx, f.client, http.MethodGet, url, nil, &resp, "ashby fetch for "+f.boardToken); err != nil {
		return Page{}, err
	}

	postings := make([]model.RawPosting, 0, len(resp.Jobs))
	for _, aj := range resp.Jobs {
		if !aj.IsListed {
			continue
		}
		id := aj.ID
		if id == "" {
			id = aj.JobURL
		}
		location := aj.Location
		if aj.WorkplaceType != "" {
			location = strings.TrimSpace(location + " (" + aj.WorkplaceType + ")")
		}
		postings = append(postings, model.RawPosting{
			SourceJobID: id,
			Employer:    f.employer,
			Title:       aj.Title,
			Location:    location,
			Description: aj.DescriptionPlain,
			URL:         aj.JobURL,
			PostedAt:    parseTime(aj.PublishedAt),
		})
	}
	return Page{Postings: postings}, nil
}
