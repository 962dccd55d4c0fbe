package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/retry"
)

const defaultControlSelector = "a[href], button[data-href]"

// Selectors locate listings and controls on a server-rendered career page.
type Selectors struct {
	Listing     string // one element per posting card
	Title       string // within a card
	Location    string // within a card
	Link        string // within a card; defaults to "a[href]"
	Employer    string // optional, within a card
	Description string // optional, within a card
	IDAttr      string // optional card attribute holding a stable id, e.g. "data-job-id"
	Controls    string // candidate pagination controls
}

// Waiter blocks until the named source may send another request.
type Waiter interface {
	Wait(ctx context.Context, source string) error
}

// StaticBrowser renders server-side HTML with goquery. Activating a control
// loads the control's href and appends the new document to the page, which
// gives load-more semantics: Extract sees every listing loaded so far.
type StaticBrowser struct {
	source    string
	client    *http.Client
	selectors Selectors
	limiter   Waiter
	policy    retry.Policy
}

// NewStaticBrowser creates a browser for one site's selectors. limiter may
// be nil. Each document load is retried under policy on 429, 5xx and
// network errors.
func NewStaticBrowser(source string, client *http.Client, selectors Selectors, limiter Waiter, policy retry.Policy) *StaticBrowser {
	if selectors.Link == "" {
		selectors.Link = "a[href]"
	}
	if selectors.Controls == "" {
		selectors.Controls = defaultControlSelector
	}
	return &StaticBrowser{source: source, client: client, selectors: selectors, limiter: limiter, policy: policy}
}

// Open loads the start URL.
func (b *StaticBrowser) Open(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", rawURL, err)
	}
	p := &staticPage{browser: b}
	if err := p.load(ctx, u); err != nil {
		return nil, err
	}
	return p, nil
}

type loadedDoc struct {
	base *url.URL
	doc  *goquery.Document
}

type staticPage struct {
	browser *StaticBrowser
	mu      sync.Mutex
	docs    []loadedDoc
}

func (p *staticPage) load(ctx context.Context, u *url.URL) error {
	doc, err := retry.Do(ctx, p.browser.policy, "load "+u.String(), func(ctx context.Context) (*goquery.Document, error) {
		return p.browser.fetch(ctx, u)
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.docs = append(p.docs, loadedDoc{base: u, doc: doc})
	p.mu.Unlock()
	return nil
}

// fetch makes one rate-limited GET and parses the body.
func (b *StaticBrowser) fetch(ctx context.Context, u *url.URL) (*goquery.Document, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, b.source); err != nil {
			return nil, retry.Permanent(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("load %s: %w", u, err))
	}
	req.Header.Set("Accept", "text/html")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: time.Duration(max(secs, 0)) * time.Second,
			Err:        fmt.Errorf("load %s: unexpected status %d", u, resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse html from %s: %w", u, err))
	}
	return doc, nil
}

func (p *staticPage) Extract(ctx context.Context) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel := p.browser.selectors

	p.mu.Lock()
	docs := append([]loadedDoc(nil), p.docs...)
	p.mu.Unlock()

	var out []Listing
	for _, d := range docs {
		d.doc.Find(sel.Listing).Each(func(_ int, card *goquery.Selection) {
			l := Listing{
				Title:    text(card, sel.Title),
				Location: text(card, sel.Location),
			}
			if sel.Employer != "" {
				l.Employer = text(card, sel.Employer)
			}
			if sel.Description != "" {
				l.Description = text(card, sel.Description)
			}
			if href, ok := card.Find(sel.Link).First().Attr("href"); ok {
				l.URL = resolve(d.base, href)
			}
			l.ID = l.URL
			if sel.IDAttr != "" {
				if id, ok := card.Attr(sel.IDAttr); ok && strings.TrimSpace(id) != "" {
					l.ID = strings.TrimSpace(id)
				}
			}
			if l.Title != "" {
				out = append(out, l)
			}
		})
	}
	return out, nil
}

// Controls lists candidate controls on the most recently loaded document.
func (p *staticPage) Controls(ctx context.Context) ([]Control, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	last := p.docs[len(p.docs)-1]
	p.mu.Unlock()

	var out []Control
	last.doc.Find(p.browser.selectors.Controls).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			href, ok = s.Attr("data-href")
		}
		if !ok || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		c := Control{
			Label: strings.Join(strings.Fields(s.Text()), " "),
			Rel:   attr(s, "rel"),
			Aria:  attr(s, "aria-label"),
			Ref:   resolve(last.base, href),
		}
		_, disabled := s.Attr("disabled")
		c.Disabled = disabled ||
			attr(s, "aria-disabled") == "true" ||
			s.HasClass("disabled")
		out = append(out, c)
	})
	return out, nil
}

func (p *staticPage) Activate(ctx context.Context, c Control) error {
	u, err := url.Parse(c.Ref)
	if err != nil {
		return fmt.Errorf("activate %q: %w", c.Label, err)
	}
	return p.load(ctx, u)
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
