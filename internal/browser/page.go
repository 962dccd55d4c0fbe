// Package browser implements the connector for career pages that have no
// API: a rendered page is paged through by activating its pagination
// controls until nothing new appears.
package browser

import "context"

// Listing is one posting card extracted from a rendered page.
type Listing struct {
	ID          string // stable per posting: data attribute or absolute link
	Title       string
	Location    string
	Employer    string
	Description string
	URL         string
}

// Control is a clickable affordance that might advance pagination.
type Control struct {
	Label    string // visible text
	Rel      string // rel attribute
	Aria     string // aria-label
	Ref      string // opaque handle used by Activate
	Disabled bool
}

// Page is a rendered page. Extract returns every listing currently visible,
// including those accumulated by earlier activations.
type Page interface {
	Extract(ctx context.Context) ([]Listing, error)
	Controls(ctx context.Context) ([]Control, error)
	Activate(ctx context.Context, c Control) error
}

// Browser opens pages.
type Browser interface {
	Open(ctx context.Context, url string) (Page, error)
}
