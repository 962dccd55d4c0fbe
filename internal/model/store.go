package model

import (
	"context"
	"time"
)

// PostingStatus is the derived state of a ledger row.
type PostingStatus string

const (
	StatusBlocked  PostingStatus = "blocked"
	StatusEnriched PostingStatus = "enriched"
	StatusPending  PostingStatus = "pending"
)

// LedgerQuery selects ledger rows for inspection.
type LedgerQuery struct {
	Source string
	Status PostingStatus // empty = any
	Limit  int
}

// LedgerCount summarizes the ledger for one source.
type LedgerCount struct {
	Source   string
	Total    int
	Blocked  int
	Enriched int
	Pending  int
}

// Ledger is the append/update-only raw posting table.
type Ledger interface {
	// RecordSighting inserts the posting or advances LastSeen on an existing
	// row. It returns the stored row (FirstSeen reflects the first sighting).
	RecordSighting(ctx context.Context, p RawPosting) (RawPosting, error)
	SetBlockedReason(ctx context.Context, p RawPosting, reason BlockReason) error
	// PendingEnrichment returns unblocked rows whose identity key has no
	// enriched job. Blocked rows are never returned.
	PendingEnrichment(ctx context.Context, source string, limit int) ([]RawPosting, error)
	ListPostings(ctx context.Context, q LedgerQuery) ([]RawPosting, []PostingStatus, error)
	LedgerCounts(ctx context.Context) ([]LedgerCount, error)
}

// MergeFunc computes the row to store from the existing one (nil on first
// sighting). Returning changed=false skips the write.
type MergeFunc func(existing *EnrichedJob) (merged EnrichedJob, changed bool)

// JobStore is the one-row-per-identity-key enriched table.
type JobStore interface {
	GetJob(ctx context.Context, key string) (EnrichedJob, error)
	// UpsertJob runs merge inside a transaction. It returns inserted=true when
	// a new row was created and ErrConflict when a concurrent insert won.
	UpsertJob(ctx context.Context, key string, merge MergeFunc) (inserted bool, err error)
	// TouchJob advances last_seen only; it never moves it backwards.
	TouchJob(ctx context.Context, key string, seenAt time.Time) error
}

// WatermarkStore persists per-unit completion timestamps.
type WatermarkStore interface {
	Watermark(ctx context.Context, source, company string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, source, company string, at time.Time) error
}

// RunStore keeps a history of run summaries.
type RunStore interface {
	SaveRun(ctx context.Context, s RunSummary) error
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Store is everything the pipeline persists.
type Store interface {
	Ledger
	JobStore
	WatermarkStore
	RunStore
	Close() error
}
