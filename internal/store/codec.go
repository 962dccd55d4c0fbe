package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// statusCase derives a ledger row's status; r is raw_postings, e the joined
// enriched_jobs row.
const statusCase = `CASE
		WHEN r.blocked_reason IS NOT NULL THEN 'blocked'
		WHEN e.identity_key IS NOT NULL THEN 'enriched'
		ELSE 'pending'
	END`

// jobDoc holds the list-valued columns of enriched_jobs.
type jobDoc struct {
	Skills        []model.Skill
	Compensation  *model.Compensation
	AgencySignals []string
}

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return b, nil
}

func encodeJobDoc(j model.EnrichedJob) (skills, comp, signals []byte, err error) {
	if skills, err = encodeJSON(j.Skills); err != nil {
		return nil, nil, nil, err
	}
	if j.Compensation != nil {
		if comp, err = encodeJSON(j.Compensation); err != nil {
			return nil, nil, nil, err
		}
	}
	if signals, err = encodeJSON(j.AgencySignals); err != nil {
		return nil, nil, nil, err
	}
	return skills, comp, signals, nil
}

func decodeJobDoc(skills, comp, signals []byte) (jobDoc, error) {
	var d jobDoc
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &d.Skills); err != nil {
			return d, fmt.Errorf("decoding skills: %w", err)
		}
	}
	if len(comp) > 0 {
		if err := json.Unmarshal(comp, &d.Compensation); err != nil {
			return d, fmt.Errorf("decoding compensation: %w", err)
		}
	}
	if len(signals) > 0 {
		if err := json.Unmarshal(signals, &d.AgencySignals); err != nil {
			return d, fmt.Errorf("decoding agency signals: %w", err)
		}
	}
	return d, nil
}

func encodeCompensation(c *model.Compensation) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return encodeJSON(c)
}

func decodeCompensation(b []byte) (*model.Compensation, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var c model.Compensation
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decoding compensation: %w", err)
	}
	return &c, nil
}

func tally(c *model.LedgerCount, status model.PostingStatus, n int) {
	c.Total += n
	switch status {
	case model.StatusBlocked:
		c.Blocked += n
	case model.StatusEnriched:
		c.Enriched += n
	case model.StatusPending:
		c.Pending += n
	}
}
