package filter

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/normalize"
)

// AgencyFilter hard-blocks employers on the curated agency blocklist. Names
// are normalized and match exactly or as a whole-word substring, so
// "Robert Half Technology" matches "robert half" but "Hayston Labs" does not
// match "hays".
type AgencyFilter struct {
	blocklist []string
}

// NewAgencyFilter normalizes the blocklist entries.
func NewAgencyFilter(blocklist []string) *AgencyFilter {
	f := &AgencyFilter{}
	for _, b := range blocklist {
		if n := normalize.Employer(b); n != "" {
			f.blocklist = append(f.blocklist, n)
		}
	}
	return f
}

func (f *AgencyFilter) Check(p model.RawPosting) Verdict {
	employer := normalize.Employer(p.Employer)
	if employer == "" {
		return Pass()
	}
	padded := " " + employer + " "
	for _, b := range f.blocklist {
		if employer == b || strings.Contains(padded, " "+b+" ") {
			return Blocked(model.BlockAgency, "blocklisted employer "+b)
		}
	}
	return Pass()
}

// AgencyScore is the soft agency heuristic's result.
type AgencyScore struct {
	Score   float64
	Signals []string
	Flagged bool
}

type weightedPhrase struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

var defaultAgencyPhrases = []weightedPhrase{
	{"our_client", regexp.MustCompile(`(?i)\bour (valued |leading |confidential )?client\b`), 0.4},
	{"on_behalf_of", regexp.MustCompile(`(?i)\bon behalf of\b`), 0.3},
	{"agency_self_reference", regexp.MustCompile(`(?i)\b(recruitment|staffing|talent) (agency|firm|partner)\b`), 0.5},
	{"confidential_employer", regexp.MustCompile(`(?i)\bconfidential (company|employer|client)\b`), 0.4},
	{"corp_to_corp", regexp.MustCompile(`(?i)\b(c2c|corp[- ]to[- ]corp)\b`), 0.3},
	{"contract_to_hire", regexp.MustCompile(`(?i)\b(c2h|contract[- ]to[- ]hire)\b`), 0.2},
	{"w2_only", regexp.MustCompile(`(?i)\bw-?2 only\b`), 0.2},
	{"send_cv", regexp.MustCompile(`(?i)\b(send|forward) (your|an updated) (cv|resume)\b`), 0.2},
	{"day_rate", regexp.MustCompile(`(?i)\b(day|hourly) rate\b`), 0.15},
	{"multiple_clients", regexp.MustCompile(`(?i)\b(one of our|several|multiple) clients\b`), 0.3},
}

// DefaultAgencyThreshold is the score at which a posting is flagged.
const DefaultAgencyThreshold = 0.5

// AgencySignal scores description text for recruiting-agency phrasing. It
// runs after classification and only reports; it never blocks.
type AgencySignal struct {
	phrases   []weightedPhrase
	threshold float64
}

// NewAgencySignal uses the built-in phrase weights. A non-positive threshold
// uses DefaultAgencyThreshold.
func NewAgencySignal(threshold float64) *AgencySignal {
	if threshold <= 0 {
		threshold = DefaultAgencyThreshold
	}
	return &AgencySignal{phrases: defaultAgencyPhrases, threshold: threshold}
}

// Score sums the weights of matched phrases, capped at 1.
func (a *AgencySignal) Score(text string) AgencyScore {
	var out AgencyScore
	for _, p := range a.phrases {
		if p.re.MatchString(text) {
			out.Score += p.weight
			out.Signals = append(out.Signals, p.name)
		}
	}
	if out.Score > 1 {
		out.Score = 1
	}
	out.Flagged = out.Score >= a.threshold
	return out
}
