package model

import (
	"context"
	"iter"
	"time"
)

// BlockReason records why a posting was intentionally kept away from the
// classification oracle. The empty value means "not blocked".
type BlockReason string

const (
	BlockNone     BlockReason = ""
	BlockTitle    BlockReason = "title_filter"
	BlockLocation BlockReason = "location_filter"
	BlockAgency   BlockReason = "agency_hard_filter"
)

// RawPosting is one observed sighting of a job listing before enrichment.
// Rows form the audit ledger: created on first sighting, afterwards only
// LastSeen and BlockedReason change.
type RawPosting struct {
	Source        string        // source identifier, e.g. "greenhouse"
	SourceJobID   string        // source-native job id
	Company       string        // unit key the posting was fetched under
	Employer      string        // employer name as published
	Title         string        // title as published
	Location      string        // location text as published (or extracted)
	Description   string        // plain-text description, may be empty
	URL           string        // canonical posting URL if the source has one
	PostedAt      *time.Time    // nullable (not all sources provide this)
	FirstSeen     time.Time     // our clock
	LastSeen      time.Time     // our clock
	ContentHash   string        // hash over the published content
	BlockedReason BlockReason   // set by the prefilter chain
	IdentityKey   string        // computed by the dedup engine at record time
	Compensation  *Compensation // only when the source publishes pay
}

// Compensation is a pay range. Amounts are whole currency units.
type Compensation struct {
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Period   string  `json:"period,omitempty"` // "year", "month", "hour"
}

// Scope identifies one unit of fetch work.
type Scope struct {
	Source  string
	Company string
}

// Connector produces a lazy, finite sequence of postings for a scope.
// A non-nil error ends the sequence; postings yielded before it are valid.
type Connector interface {
	Fetch(ctx context.Context, scope Scope) iter.Seq2[RawPosting, error]
}

// Watermark is the last successful completion of a (source, company) unit.
type Watermark struct {
	Source      string
	Company     string
	CompletedAt time.Time
}
