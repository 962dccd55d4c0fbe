package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

// Action is what an upsert did to the enriched table.
type Action int

const (
	ActionInserted  Action = iota // new identity key
	ActionUpdated                 // content replaced by a higher claim
	ActionTouched                 // only first_seen/last_seen moved
	ActionUnchanged               // nothing to write
	ActionAnomaly                 // write failed after one retry
)

func (a Action) String() string {
	switch a {
	case ActionInserted:
		return "inserted"
	case ActionUpdated:
		return "updated"
	case ActionTouched:
		return "touched"
	case ActionUnchanged:
		return "unchanged"
	case ActionAnomaly:
		return "anomaly"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// UpsertResult is the outcome of one write. Err is set only for
// ActionAnomaly.
type UpsertResult struct {
	Key    string
	Action Action
	Err    error
}

// Engine applies sightings to a JobStore.
type Engine struct {
	store  model.JobStore
	prio   Priorities
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store model.JobStore, prio Priorities, logger *slog.Logger) *Engine {
	return &Engine{store: store, prio: prio, logger: logger}
}

// Priorities returns the source order the engine merges with.
func (e *Engine) Priorities() Priorities { return e.prio }

// NeedsClassification reports whether a sighting could change the stored
// content for key: there is no job yet, or the sighting's claim beats the
// current owner (a higher-priority source, or the owning source publishing
// newer content). Anything else only needs Touch.
func (e *Engine) NeedsClassification(ctx context.Context, key string, p model.RawPosting) (bool, error) {
	job, err := e.store.GetJob(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading job %s: %w", key, err)
	}
	incoming := Claim{Source: p.Source, SeenAt: p.FirstSeen, ContentHash: p.ContentHash}
	return e.prio.Beats(incoming, claimOf(job)), nil
}

// Upsert merges job into the store. A lost insert race is retried once, at
// which point the row exists and the merge runs as an update.
func (e *Engine) Upsert(ctx context.Context, job model.EnrichedJob) UpsertResult {
	key := job.IdentityKey

	var replaced, changed bool
	merge := func(existing *model.EnrichedJob) (model.EnrichedJob, bool) {
		merged, r := Merge(existing, job, e.prio)
		replaced = r
		changed = r || existing == nil ||
			!merged.FirstSeen.Equal(existing.FirstSeen) ||
			!merged.LastSeen.Equal(existing.LastSeen)
		return merged, changed
	}

	inserted, err := e.store.UpsertJob(ctx, key, merge)
	if errors.Is(err, model.ErrConflict) {
		e.logger.Debug("upsert conflict, retrying as update", "key", key)
		inserted, err = e.store.UpsertJob(ctx, key, merge)
	}
	if err != nil {
		e.logger.Warn("upsert anomaly", "key", key, "source", job.Source, "error", err)
		return UpsertResult{Key: key, Action: ActionAnomaly, Err: err}
	}

	switch {
	case inserted:
		return UpsertResult{Key: key, Action: ActionInserted}
	case replaced:
		return UpsertResult{Key: key, Action: ActionUpdated}
	case changed:
		return UpsertResult{Key: key, Action: ActionTouched}
	}
	return UpsertResult{Key: key, Action: ActionUnchanged}
}

// Touch records a re-sighting that does not change content.
func (e *Engine) Touch(ctx context.Context, key string, seenAt time.Time) UpsertResult {
	if err := e.store.TouchJob(ctx, key, seenAt); err != nil {
		e.logger.Warn("touch anomaly", "key", key, "error", err)
		return UpsertResult{Key: key, Action: ActionAnomaly, Err: err}
	}
	return UpsertResult{Key: key, Action: ActionTouched}
}
