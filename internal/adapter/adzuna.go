package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/amishk599/jobsweep/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 5
)

var adzunaCurrency = map[string]string{
	"gb": "GBP", "us": "USD", "ca": "CAD", "au": "AUD", "de": "EUR",
	"fr": "EUR", "nl": "EUR", "es": "EUR", "it": "EUR", "in": "INR",
}

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Company     adzunaCompany  `json:"company"`
	Location    adzunaLocation `json:"location"`
	SalaryMin   float64        `json:"salary_min"`
	SalaryMax   float64        `json:"salary_max"`
	RedirectURL string         `json:"redirect_url"`
	Created     string         `json:"created"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// AdzunaQuery is one saved search on the Adzuna aggregator.
type AdzunaQuery struct {
	Country string // "gb", "us", ...
	What    string
	Where   string
}

// AdzunaFetcher reads an Adzuna search. Unlike the ATS boards this is an
// aggregator: the employer comes from each result, and salary is published.
// Pages are numbered from 1 and the last page is the first short one.
type AdzunaFetcher struct {
	appID  string
	appKey string
	query  AdzunaQuery
	client *http.Client
}

func NewAdzunaFetcher(appID, appKey string, query AdzunaQuery, client *http.Client) *AdzunaFetcher {
	return &AdzunaFetcher{
		appID:  appID,
		appKey: appKey,
		query:  query,
		client: client,
	}
}

func (f *AdzunaFetcher) FetchPage(ctx context.Context, cursor string) (Page, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return Page{}, fmt.Errorf("adzuna fetch: bad cursor %q", cursor)
		}
		page = n
	}

	params := url.Values{}
	params.Set("app_id", f.appID)
	params.Set("app_key", f.appKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", f.query.What)
	if f.query.Where != "" {
		params.Set("where", f.query.Where)
	}
	params.Set("sort_by", "date")
	endpoint := fmt.Sprintf("%s/%s/search/%d?%s", adzunaBaseURL, f.query.Country, page, params.Encode())

	var resp adzunaResponse
	label := fmt.Sprintf("adzuna fetch for %s/%s", f.query.Country, f.query.What)
	if err := doJSON(ctx, f.client, http.MethodGet, endpoint, nil, &resp, label); err != nil {
		return Page{}, err
	}

	postings := make([]model.RawPosting, 0, len(resp.Results))
	for _, r := range resp.Results {
		p := model.RawPosting{
			SourceJobID: r.ID,
			Employer:    r.Company.DisplayName,
			Title:       r.Title,
			Location:    r.Location.DisplayName,
			Description: extractText(r.Description),
			URL:         r.RedirectURL,
			PostedAt:    parseTime(r.Created),
		}
		if r.SalaryMin > 0 || r.SalaryMax > 0 {
			p.Compensation = &model.Compensation{
				Min:      r.SalaryMin,
				Max:      r.SalaryMax,
				Currency: adzunaCurrency[f.query.Country],
				Period:   "year",
			}
		}
		postings = append(postings, p)
	}

	out := Page{Postings: postings}
	if len(resp.Results) == adzunaPageSize && page < adzunaMaxPages {
		out.Next = strconv.Itoa(page + 1)
	}
	return out, nil
}
