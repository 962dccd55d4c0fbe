package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

const (
	leverBaseURL  = "https://api.lever.co/v0/postings"
	leverPageSize = 100
)

// leverCategories represents the categories object in a Lever job.
type leverCategories struct {
	Team         string   `json:"team"`
	Department   string   `json:"department"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

type leverSalaryRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
	Interval string  `json:"interval"` // "per-year-salary", "per-hour-wage", ...
}

// leverJob represents a single job in the Lever API response.
type leverJob struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	DescriptionPlain string            `json:"descriptionPlain"`
	AdditionalPlain  string            `json:"additionalPlain"`
	Categories       leverCategories   `json:"categories"`
	CreatedAt        int64             `json:"createdAt"`
	WorkplaceType    string            `json:"workplaceType"`
	HostedURL        string            `json:"hostedUrl"`
	SalaryRange      *leverSalaryRange `json:"salaryRange"`
}

// LeverFetcher reads a Lever postings board using skip/limit pagination.
type LeverFetcher struct {
	companySlug string
	employer    string
	client      *http.Client
}

// NewLeverFetcher creates a fetcher for a Lever board.
func NewLeverFetcher(companySlug, employer string, client *http.Client) *LeverFetcher {
	return &LeverFetcher{companySlug: companySlug, employer: employer, client: client}
}

// FetchPage fetches one page. The cursor is the skip offset; a full page
// means there may be more.
func (f *LeverFetcher) FetchPage(ctx context.Context, cursor string) (Page, error) {
	skip := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return Page{}, fmt.Errorf("lever fetch for %s: bad cursor %q", f.companySlug, cursor)
		}
		skip = n
	}
	url := fmt.Sprintf("%s/%s?mode=json&skip=%d&limit=%d", leverBaseURL, f.companySlug, skip, leverPageSize)

	var jobs []leverJob
	if err := doJSON(ctx, f.client, http.MethodGet, url, nil, &jobs, "lever fetch for "+f.companySlug); err != nil {
		return Page{}, err
	}

	postings := make([]model.RawPosting, 0, len(jobs))
	for _, lj := range jobs {
		// Prefer allLocations if available, fallback to location
		location := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			location = strings.Join(lj.Categories.AllLocations, "; ")
		}
		if lj.WorkplaceType != "" && lj.WorkplaceType != "unspecified" {
			location = strings.TrimSpace(location + " (" + lj.WorkplaceType + ")")
		}

		var postedAt *time.Time
		if lj.CreatedAt > 0 {
			t := time.UnixMilli(lj.CreatedAt).UTC()
			postedAt = &t
		}

		description := strings.TrimSpace(lj.DescriptionPlain + "\n" + lj.AdditionalPlain)

		postings = append(postings, model.RawPosting{
			SourceJobID:  lj.ID,
			Employer:     f.employer,
			Title:        lj.Text,
			Location:     location,
			Description:  description,
			URL:          lj.HostedURL,
			PostedAt:     postedAt,
			Compensation: leverCompensation(lj.SalaryRange),
		})
	}

	page := Page{Postings: postings}
	if len(jobs) == leverPageSize {
		page.Next = strconv.Itoa(skip + leverPageSize)
	}
	return page, nil
}

func leverCompensation(r *leverSalaryRange) *model.Compensation {
	if r == nil || (r.Min == 0 && r.Max == 0) {
		return nil
	}
	period := ""
	switch {
	case strings.Contains(r.Interval, "year"):
		period = "year"
	case strings.Contains(r.Interval, "month"):
		period = "month"
	case strings.Contains(r.Interval, "hour"):
		period = "hour"
	}
	return &model.Compensation{Min: r.Min, Max: r.Max, Currency: r.Currency, Period: period}
}
