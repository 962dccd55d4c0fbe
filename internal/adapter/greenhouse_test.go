package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amishk599/jobsweep/internal/model"
)

func TestGreenhouseFetcher_Success(t *testing.T) {
	payload := `{
		"jobs": [
			{
				"id": 12345,
				"title": "Software Engineer",
				"location": {"name": "San Francisco, CA"},
				"absolute_url": "https://boards.greenhouse.io/acme/jobs/12345",
				"updated_at": "2026-02-13T10:00:00Z",
				"content": "&lt;p&gt;Build &amp;amp; ship.&lt;/p&gt;&lt;p&gt;Remote friendly&lt;/p&gt;"
			},
			{
				"id": 67890,
				"title": "Backend Engineer",
				"location": {"name": "Remote, US"},
				"absolute_url": "https://boards.greenhouse.io/acme/jobs/67890",
				"updated_at": "not a date"
			}
		]
	}`
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := NewGreenhouseFetcher("acme", "Acme Corp", rewriteClient(srv))
	page, err := f.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/v1/boards/acme/jobs" || gotQuery != "content=true" {
		t.Errorf("request = %s?%s", gotPath, gotQuery)
	}
	if page.Next != "" {
		t.Errorf("Next = %q, want empty", page.Next)
	}
	if len(page.Postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(page.Postings))
	}

	p := page.Postings[0]
	if p.SourceJobID != "12345" {
		t.Errorf("SourceJobID = %q, want 12345", p.SourceJobID)
	}
	if p.Employer != "Acme Corp" {
		t.Errorf("Employer = %q, want Acme Corp", p.Employer)
	}
	if p.Location != "San Francisco, CA" {
		t.Errorf("Location = %q", p.Location)
	}
	if p.Description != "Build & ship.\nRemote friendly" {
		t.Errorf("Description = %q", p.Description)
	}
	if p.PostedAt == nil || p.PostedAt.Day() != 13 {
		t.Errorf("PostedAt = %v", p.PostedAt)
	}
	if page.Postings[1].PostedAt != nil {
		t.Errorf("expected nil PostedAt for unparseable date, got %v", page.Postings[1].PostedAt)
	}
}

func TestGreenhouseFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewGreenhouseFetcher("acme", "Acme Corp", rewriteClient(srv))
	_, err := f.FetchPage(context.Background(), "")

	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 429 || httpErr.RetryAfter.Seconds() != 30 {
		t.Errorf("got status %d retry-after %v", httpErr.StatusCode, httpErr.RetryAfter)
	}
}

func TestGreenhouseFetcher_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	f := NewGreenhouseFetcher("acme", "Acme Corp", rewriteClient(srv))
	_, err := f.FetchPage(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
