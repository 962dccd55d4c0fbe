package dedup

import (
	"math"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

// Priorities is a total order over sources. Rank 1 is the highest priority;
// sources without a rank sort below every ranked source.
type Priorities struct {
	rank map[string]int
}

// NewPriorities creates a Priorities from a source→rank table.
func NewPriorities(ranks map[string]int) Priorities {
	r := make(map[string]int, len(ranks))
	for src, n := range ranks {
		r[src] = n
	}
	return Priorities{rank: r}
}

// Rank returns the rank of source.
func (p Priorities) Rank(source string) int {
	if n, ok := p.rank[source]; ok && n > 0 {
		return n
	}
	return math.MaxInt
}

// Claim is the part of a sighting that decides content ownership.
type Claim struct {
	Source      string
	SeenAt      time.Time
	ContentHash string
}

func claimOf(j model.EnrichedJob) Claim {
	return Claim{Source: j.Source, SeenAt: j.ContentSeenAt, ContentHash: j.ContentHash}
}

// Beats reports whether a should own the content over b. Priority decides
// first, then the newer content, then the larger hash and source name, so
// the winner does not depend on which claim arrived first. A claim never
// beats itself.
func (p Priorities) Beats(a, b Claim) bool {
	ra, rb := p.Rank(a.Source), p.Rank(b.Source)
	if ra != rb {
		return ra < rb
	}
	if !a.SeenAt.Equal(b.SeenAt) {
		return a.SeenAt.After(b.SeenAt)
	}
	if a.ContentHash != b.ContentHash {
		return a.ContentHash > b.ContentHash
	}
	return a.Source > b.Source
}

// Merge combines a stored job with an incoming one for the same identity
// key. FirstSeen only moves back and LastSeen only moves forward; content is
// taken from incoming when its claim beats the stored one. The result is the
// same for any arrival order of the same set of sightings.
func Merge(existing *model.EnrichedJob, incoming model.EnrichedJob, prio Priorities) (merged model.EnrichedJob, replaced bool) {
	if existing == nil {
		return incoming, true
	}

	merged = *existing
	if prio.Beats(claimOf(incoming), claimOf(*existing)) {
		merged = incoming
		merged.IdentityKey = existing.IdentityKey
		merged.CreatedAt = existing.CreatedAt
		replaced = true
	}
	merged.FirstSeen = earliest(existing.FirstSeen, incoming.FirstSeen)
	merged.LastSeen = latest(existing.LastSeen, incoming.LastSeen)
	merged.UpdatedAt = existing.UpdatedAt
	return merged, replaced
}

func earliest(a, b time.Time) time.Time {
	if a.IsZero() || (!b.IsZero() && b.Before(a)) {
		return b
	}
	return a
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
