package adapter

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

const workdayPageSize = 20

// workdayListingResponse is the response from the Workday jobs listing endpoint.
type workdayListingResponse struct {
	Total       int              `json:"total"`
	JobPostings []workdayListing `json:"jobPostings"`
}

type workdayListing struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	BulletFields  []string `json:"bulletFields"`
}

// workdayListingRequest is the POST body for the Workday jobs listing endpoint.
type workdayListingRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

// workdayDetailResponse is the response from the Workday job detail endpoint.
type workdayDetailResponse struct {
	JobPostingInfo workdayJobDetail `json:"jobPostingInfo"`
}

type workdayJobDetail struct {
	JobReqID            string   `json:"jobReqId"`
	Title               string   `json:"title"`
	JobDescription      string   `json:"jobDescription"` // HTML
	Location            string   `json:"location"`
	PostedOn            string   `json:"postedOn"`
	StartDate           string   `json:"startDate"`
	ExternalURL         string   `json:"externalUrl"`
	AdditionalLocations []string `json:"additionalLocations"`
}

// WorkdayFetcher reads a Workday career site in two phases: a POSTed
// listing page (offset/total pagination) and one GET per listing for the
// description. Detail requests share the source's rate limit.
type WorkdayFetcher struct {
	source   string
	baseURL  string
	employer string
	client   *http.Client
	limiter  Waiter
}

// NewWorkdayFetcher creates a fetcher for a Workday site such as
// https://acme.wd5.myworkdayjobs.com/wday/cxs/acme/External.
func NewWorkdayFetcher(source, baseURL, employer string, client *http.Client, limiter Waiter) *WorkdayFetcher {
	return &WorkdayFetcher{
		source:   source,
		baseURL:  strings.TrimRight(baseURL, "/"),
		employer: employer,
		client:   client,
		limiter:  limiter,
	}
}

// FetchPage fetches the listing page at the cursor offset, then the detail
// of every listing on it.
func (f *WorkdayFetcher) FetchPage(ctx context.Context, cursor string) (Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return Page{}, fmt.Errorf("workday fetch for %s: bad cursor %q", f.employer, cursor)
		}
		offset = n
	}

	body := workdayListingRequest{
		AppliedFacets: map[string]any{},
		Limit:         workdayPageSize,
		Offset:        offset,
	}
	var listResp workdayListingResponse
	if err := doJSON(ctx, f.client, http.MethodPost, f.baseURL+"/jobs", body, &listResp, "workday listing fetch for "+f.employer); err != nil {
		return Page{}, err
	}

	postings := make([]model.RawPosting, 0, len(listResp.JobPostings))
	for _, l := range listResp.JobPostings {
		p, err := f.fetchDetail(ctx, l)
		if err != nil {
			return Page{}, err
		}
		postings = append(postings, p)
	}

	page := Page{Postings: postings}
	next := offset + workdayPageSize
	if len(listResp.JobPostings) > 0 && next < listResp.Total {
		page.Next = strconv.Itoa(next)
	}
	return page, nil
}

func (f *WorkdayFetcher) fetchDetail(ctx context.Context, listing workdayListing) (model.RawPosting, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, f.source); err != nil {
			return model.RawPosting{}, err
		}
	}

	var detail workdayDetailResponse
	url := f.baseURL + "/" + strings.TrimLeft(listing.ExternalPath, "/")
	if err := doJSON(ctx, f.client, http.MethodGet, url, nil, &detail, "workday detail fetch for "+f.employer); err != nil {
		return model.RawPosting{}, err
	}
	info := detail.JobPostingInfo

	location := info.Location
	if location == "" {
		location = listing.LocationsText
	}
	if len(info.AdditionalLocations) > 0 {
		location = location + "; " + strings.Join(info.AdditionalLocations, "; ")
	}

	id := info.JobReqID
	if id == "" {
		id = listing.ExternalPath
	}
	title := info.Title
	if title == "" {
		title = listing.Title
	}

	p := model.RawPosting{
		SourceJobID: id,
		Employer:    f.employer,
		Title:       title,
		Location:    location,
		Description: extractText(info.JobDescription),
		URL:         info.ExternalURL,
	}

	// Prefer startDate (format "2006-01-02"), fall back to postedOn parsing
	if info.StartDate != "" {
		if t, err := time.Parse("2006-01-02", info.StartDate); err == nil {
			p.PostedAt = &t
		}
	}
	if p.PostedAt == nil {
		postedOn := info.PostedOn
		if postedOn == "" {
			postedOn = listing.PostedOn
		}
		p.PostedAt = parsePostedOn(postedOn, time.Now())
	}
	return p, nil
}

var daysAgoRegex = regexp.MustCompile(`^Posted (\d+)\+? Days? Ago$`)

// parsePostedOn converts a Workday relative date string to an approximate
// timestamp. "Posted 30+ Days Ago" yields the 30-day mark.
func parsePostedOn(postedOn string, now time.Time) *time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch postedOn {
	case "Posted Today":
		return &today
	case "Posted Yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}

	matches := daysAgoRegex.FindStringSubmatch(postedOn)
	if matches == nil {
		return nil
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil
	}
	t := today.AddDate(0, 0, -n)
	return &t
}
