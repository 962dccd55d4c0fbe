package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/amishk599/jobsweep/internal/model"
)

// LocationFilter requires the location text to match one of the target
// location patterns. With no targets every posting passes.
type LocationFilter struct {
	targets      []*regexp.Regexp
	allowMissing bool
}

// NewLocationFilter compiles the target patterns. allowMissing lets postings
// with empty location text through.
func NewLocationFilter(targets []string, allowMissing bool) (*LocationFilter, error) {
	t, err := compileAll(targets)
	if err != nil {
		return nil, fmt.Errorf("location targets: %w", err)
	}
	return &LocationFilter{targets: t, allowMissing: allowMissing}, nil
}

func (f *LocationFilter) Check(p model.RawPosting) Verdict {
	if len(f.targets) == 0 {
		return Pass()
	}
	loc := strings.TrimSpace(p.Location)
	if loc == "" {
		if f.allowMissing {
			return Pass()
		}
		return Blocked(model.BlockLocation, "no location")
	}
	for _, re := range f.targets {
		if re.MatchString(loc) {
			return Pass()
		}
	}
	return Blocked(model.BlockLocation, "outside target locations: "+loc)
}
