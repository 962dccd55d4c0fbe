package taxonomy

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/normalize"
)

// MapSkill places a skill name in the taxonomy. Unmapped names keep their
// name with empty family and domain; ok reports whether the name was known.
func (t *Taxonomy) MapSkill(name string) (model.Skill, bool) {
	name = strings.TrimSpace(name)
	if s, ok := t.skills[normalize.Fold(name)]; ok {
		return s, true
	}
	return model.Skill{Name: name}, false
}

// MapSkills maps every name, dropping blanks and duplicates (by mapped name).
// Unmapped names are returned separately so callers can log them.
func (t *Taxonomy) MapSkills(names []string) (skills []model.Skill, unmapped []string) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		s, ok := t.MapSkill(n)
		key := normalize.Fold(s.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		skills = append(skills, s)
		if !ok {
			unmapped = append(unmapped, s.Name)
		}
	}
	return skills, unmapped
}

// FamilyFor is the strict subfamily -> family lookup. A miss returns ok=false
// and callers leave job_family empty.
func (t *Taxonomy) FamilyFor(subfamily string) (string, bool) {
	fam, ok := t.subfamilies[strings.TrimSpace(strings.ToLower(subfamily))]
	return fam, ok
}

var arrangementValues = map[string]model.WorkingArrangement{
	"remote":         model.ArrangementRemote,
	"fully remote":   model.ArrangementRemote,
	"remote first":   model.ArrangementRemote,
	"work from home": model.ArrangementRemote,
	"wfh":            model.ArrangementRemote,
	"hybrid":         model.ArrangementHybrid,
	"onsite":         model.ArrangementOnsite,
	"on site":        model.ArrangementOnsite,
	"in office":      model.ArrangementOnsite,
	"in person":      model.ArrangementOnsite,
	"office":         model.ArrangementOnsite,
}

var arrangementSignal = regexp.MustCompile(`(?i)\b(remote|hybrid|on[- ]?site|in[- ]office|in[- ]person|work from home|wfh|distributed team|office[- ]based|days? (a|per) week in|from (our|the) office)\b`)

// NormalizeArrangement maps the oracle's working-arrangement value onto the
// enum. Blank, ambiguous or unrecognized values give unknown. A specific value
// is kept only when evidence (title, location and description text) contains
// an arrangement signal; otherwise the oracle guessed and the answer is unknown.
func NormalizeArrangement(value, evidence string) model.WorkingArrangement {
	key := strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(value, "-", " "))), " ")
	wa, ok := arrangementValues[key]
	if !ok {
		return model.ArrangementUnknown
	}
	if !arrangementSignal.MatchString(evidence) {
		return model.ArrangementUnknown
	}
	return wa
}
