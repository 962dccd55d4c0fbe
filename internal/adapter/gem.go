package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/amishk599/jobsweep/internal/model"
)

const gemBaseURL = "https://api.gem.com/job_board/v0"

type gemJob struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Location       gemLocation `json:"location"`
	AbsoluteURL    string      `json:"absolute_url"`
	FirstPublished string      `json:"first_published_at"`
	UpdatedAt      string      `json:"updated_at"`
	Content        string      `json:"content"`
	ContentPlain   string      `json:"content_plain"`
}

type gemLocation struct {
	Name string `json:"name"`
}

// GemFetcher reads a Gem job board. Single page; the endpoint returns a
// bare JSON array.
type GemFetcher struct {
	boardToken string
	employer   string
	client     *http.Client
}

func NewGemFetcher(boardToken, employer string, client *http.Client) *GemFetcher {
	return &GemFetcher{boardToken: boardToken, employer: employer, client: client}
}

func (f *GemFetcher) FetchPage(ctx context.Context, _ string) (Page, error) {
	url := fmt.Sprintf("%s/%s/job_posts/", gemBaseURL, f.boardToken)

	var jobs []gemJob
	if err := doJSON(ctx, f.client, http.MethodGet, url, nil, &jobs, "gem fetch for "+f.boardToken); err != nil {
		return Page{}, err
	}

	postings := make([]model.RawPosting, 0, len(jobs))
	for _, gj := range jobs {
		description := gj.ContentPlain
		if description == "" {
			description = extractText(gj.Content)
		}
		posted := parseTime(gj.FirstPublished)
		if posted == nil {
			posted = parseTime(gj.UpdatedAt)
		}
		postings = append(postings, model.RawPosting{
			SourceJobID: gj.ID,
			Employer:    f.employer,
			Title:       gj.Title,
			Location:    gj.Location.Name,
			Description: description,
			URL:         gj.AbsoluteURL,
			PostedAt:    posted,
		})
	}
	return Page{Postings: postings}, nil
}
