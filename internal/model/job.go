package model

import "time"

// WorkingArrangement is where the work happens. Unknown is the only value
// used when the posting carries no signal.
type WorkingArrangement string

const (
	ArrangementUnknown WorkingArrangement = "unknown"
	ArrangementRemote  WorkingArrangement = "remote"
	ArrangementHybrid  WorkingArrangement = "hybrid"
	ArrangementOnsite  WorkingArrangement = "onsite"
)

// Skill is one extracted skill with its taxonomy placement. Family and Domain
// are empty when the name is not in the taxonomy.
type Skill struct {
	Name   string `json:"name"`
	Family string `json:"family,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// ClassificationResult is the validated output of the classification oracle.
// It never carries job_family or skill families; those come from the taxonomy.
type ClassificationResult struct {
	JobSubfamily       string        `json:"job_subfamily"`
	Seniority          string        `json:"seniority"`
	Track              string        `json:"track"`
	WorkingArrangement string        `json:"working_arrangement"`
	Skills             []string      `json:"skills"`
	Compensation       *Compensation `json:"compensation"`
	Summary            string        `json:"summary"`
}

// EnrichedJob is the canonical record for one identity key.
type EnrichedJob struct {
	IdentityKey        string
	Employer           string
	Title              string
	JobFamily          string
	JobSubfamily       string
	Seniority          string
	Track              string
	WorkingArrangement WorkingArrangement
	Skills             []Skill
	Compensation       *Compensation
	Summary            string
	Source             string    // provenance: whose content is stored
	ContentHash        string    // content hash of the winning sighting
	ContentSeenAt      time.Time // sighting time of the winning content
	AgencyScore        float64
	AgencySignals      []string
	Model              string
	TaxonomyVersion    string
	FirstSeen          time.Time
	LastSeen           time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
