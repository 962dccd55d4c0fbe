package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGemFetcher_PrefersPlainContent(t *testing.T) {
	payload := `[
		{"id": "g1", "title": "Platform Engineer", "location": {"name": "Chicago, IL"},
		 "absolute_url": "https://jobs.gem.com/acme/g1", "first_published_at": "2026-02-09T12:00:00Z",
		 "content": "<p>ignored</p>", "content_plain": "Plain text wins."},
		{"id": "g2", "title": "Security Engineer", "location": {"name": "Remote"},
		 "absolute_url": "https://jobs.gem.com/acme/g2", "updated_at": "2026-02-11T12:00:00Z",
		 "content": "<ul><li>Threat models</li><li>Audits</li></ul>"}
	]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/job_board/v0/acme/job_posts/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	page, err := NewGemFetcher("acme", "Acme", rewriteClient(srv)).FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(page.Postings))
	}
	if got := page.Postings[0].Description; got != "Plain text wins." {
		t.Errorf("Description = %q", got)
	}
	if got := page.Postings[1].Description; got != "Threat models\nAudits" {
		t.Errorf("Description = %q", got)
	}
	if page.Postings[1].PostedAt == nil || page.Postings[1].PostedAt.Day() != 11 {
		t.Errorf("PostedAt should fall back to updated_at, got %v", page.Postings[1].PostedAt)
	}
}
