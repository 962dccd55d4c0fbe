// Package adapter implements API source connectors. Each upstream has a
// PageFetcher; APIConnector drives pagination, rate limiting and retries.
package adapter

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/retry"
)

// maxPages bounds pagination against an upstream that never stops
// returning a cursor.
const maxPages = 500

// Page is one page of postings plus the cursor for the following page.
// An empty Next means this was the last page.
type Page struct {
	Postings []model.RawPosting
	Next     string
}

// PageFetcher fetches one page for one company. The empty cursor is the
// first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (Page, error)
}

// Waiter blocks until the named source may send another request.
type Waiter interface {
	Wait(ctx context.Context, source string) error
}

// APIConnector is the connector for one API source. Companies map to their
// own PageFetcher.
type APIConnector struct {
	source   string
	fetchers map[string]PageFetcher
	limiter  Waiter
	policy   retry.Policy
	logger   *slog.Logger
}

// NewAPIConnector creates a connector for source.
func NewAPIConnector(source string, fetchers map[string]PageFetcher, limiter Waiter, policy retry.Policy, logger *slog.Logger) *APIConnector {
	return &APIConnector{
		source:   source,
		fetchers: fetchers,
		limiter:  limiter,
		policy:   policy,
		logger:   logger,
	}
}

// Fetch lazily pages through the company's postings. Every request waits on
// the source's limiter; transient page failures are retried with backoff.
func (c *APIConnector) Fetch(ctx context.Context, scope model.Scope) iter.Seq2[model.RawPosting, error] {
	return func(yield func(model.RawPosting, error) bool) {
		f, ok := c.fetchers[scope.Company]
		if !ok {
			yield(model.RawPosting{}, fmt.Errorf("%s: no fetcher for company %q", c.source, scope.Company))
			return
		}

		op := model.UnitKey(c.source, scope.Company)
		cursor := ""
		for page := 1; ; page++ {
			if page > maxPages {
				yield(model.RawPosting{}, fmt.Errorf("%s: pagination exceeded %d pages", op, maxPages))
				return
			}

			p, err := retry.Do(ctx, c.policy, op, func(ctx context.Context) (Page, error) {
				if err := c.limiter.Wait(ctx, c.source); err != nil {
					return Page{}, err
				}
				return f.FetchPage(ctx, cursor)
			})
			if err != nil {
				yield(model.RawPosting{}, fmt.Errorf("%s page %d: %w", op, page, err))
				return
			}

			c.logger.Debug("fetched page",
				"source", c.source,
				"company", scope.Company,
				"page", page,
				"postings", len(p.Postings),
			)

			for _, rp := range p.Postings {
				rp.Source = c.source
				rp.Company = scope.Company
				if !yield(rp, nil) {
					return
				}
			}

			if p.Next == "" {
				return
			}
			cursor = p.Next
		}
	}
}

// Companies lists the companies this connector can fetch.
func (c *APIConnector) Companies() []string {
	out := make([]string, 0, len(c.fetchers))
	for name := range c.fetchers {
		out = append(out, name)
	}
	return out
}
