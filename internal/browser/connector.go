package browser

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

// DefaultUnitTimeout bounds one company's pagination run.
const DefaultUnitTimeout = 3 * time.Minute

// Site is one browser-automated career page.
type Site struct {
	Employer string
	StartURL string
}

// LocationExtractor canonicalizes scraped location text.
type LocationExtractor interface {
	Extract(raw string) string
}

// PaginationError ends a browser unit that did not reach Done. Postings
// yielded before it are valid partial results.
type PaginationError struct {
	Reason string
	Cycles int
	Err    error
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("pagination %s after %d cycles: %v", e.Reason, e.Cycles, e.Err)
}

func (e *PaginationError) Unwrap() error { return e.Err }

// Connector is the browser-automated source connector.
type Connector struct {
	source    string
	browser   Browser
	sites     map[string]Site
	paginator Paginator
	timeout   time.Duration
	locations LocationExtractor
	logger    *slog.Logger
}

// NewConnector creates a connector for source. A zero timeout uses
// DefaultUnitTimeout; locations may be nil.
func NewConnector(source string, b Browser, sites map[string]Site, paginator Paginator, timeout time.Duration, locations LocationExtractor, logger *slog.Logger) *Connector {
	if timeout <= 0 {
		timeout = DefaultUnitTimeout
	}
	return &Connector{
		source:    source,
		browser:   b,
		sites:     sites,
		paginator: paginator,
		timeout:   timeout,
		locations: locations,
		logger:    logger,
	}
}

// Fetch runs the pagination state machine for one company under the unit
// deadline, yielding postings as they are extracted. A timeout or page
// failure ends the sequence with a *PaginationError.
func (c *Connector) Fetch(ctx context.Context, scope model.Scope) iter.Seq2[model.RawPosting, error] {
	return func(yield func(model.RawPosting, error) bool) {
		site, ok := c.sites[scope.Company]
		if !ok {
			yield(model.RawPosting{}, fmt.Errorf("%s: no site for company %q", c.source, scope.Company))
			return
		}

		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		page, err := c.browser.Open(ctx, site.StartURL)
		if err != nil {
			yield(model.RawPosting{}, &PaginationError{Reason: reasonFor(err), Err: err})
			return
		}

		out := c.paginator.Run(ctx, page, func(l Listing) bool {
			return yield(c.toPosting(scope, site, l), nil)
		})

		c.logger.Info("pagination finished",
			"source", c.source,
			"company", scope.Company,
			"state", out.State.String(),
			"reason", out.Reason,
			"cycles", out.Cycles,
			"postings", out.Count,
		)

		if out.State == StateError {
			yield(model.RawPosting{}, &PaginationError{Reason: out.Reason, Cycles: out.Cycles, Err: out.Err})
		}
	}
}

func (c *Connector) toPosting(scope model.Scope, site Site, l Listing) model.RawPosting {
	employer := l.Employer
	if employer == "" {
		employer = site.Employer
	}
	location := l.Location
	if c.locations != nil {
		location = c.locations.Extract(location)
	}
	return model.RawPosting{
		Source:      c.source,
		Company:     scope.Company,
		SourceJobID: l.ID,
		Employer:    employer,
		Title:       l.Title,
		Location:    location,
		Description: l.Description,
		URL:         l.URL,
	}
}
