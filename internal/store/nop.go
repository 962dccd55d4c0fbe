package store

import (
	"context"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

// NopStore is a no-op store used in dry-run mode. It remembers nothing, so
// every posting looks new and every unit is due.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) RecordSighting(_ context.Context, p model.RawPosting) (model.RawPosting, error) {
	return p, nil
}
func (s *NopStore) SetBlockedReason(context.Context, model.RawPosting, model.BlockReason) error {
	return nil
}
func (s *NopStore) PendingEnrichment(context.Context, string, int) ([]model.RawPosting, error) {
	return nil, nil
}
func (s *NopStore) ListPostings(context.Context, model.LedgerQuery) ([]model.RawPosting, []model.PostingStatus, error) {
	return nil, nil, nil
}
func (s *NopStore) LedgerCounts(context.Context) ([]model.LedgerCount, error) { return nil, nil }
func (s *NopStore) GetJob(context.Context, string) (model.EnrichedJob, error) {
	return model.EnrichedJob{}, model.ErrNotFound
}
func (s *NopStore) UpsertJob(_ context.Context, _ string, merge model.MergeFunc) (bool, error) {
	_, changed := merge(nil)
	return changed, nil
}
func (s *NopStore) TouchJob(context.Context, string, time.Time) error { return nil }
func (s *NopStore) Watermark(context.Context, string, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
func (s *NopStore) SetWatermark(context.Context, string, string, time.Time) error { return nil }
func (s *NopStore) SaveRun(context.Context, model.RunSummary) error               { return nil }
func (s *NopStore) RecentRuns(context.Context, int) ([]model.RunSummary, error)   { return nil, nil }
func (s *NopStore) Close() error                                                  { return nil }

var (
	_ model.Store = (*NopStore)(nil)
	_ model.Store = (*SQLiteStore)(nil)
	_ model.Store = (*PostgresStore)(nil)
)
