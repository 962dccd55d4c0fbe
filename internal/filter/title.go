package filter

import (
	"fmt"
	"regexp"

	"github.com/amishk599/jobsweep/internal/model"
)

// TitleFilter blocks titles matching any deny pattern, or matching no allow
// pattern when allow patterns are configured. Patterns are case-insensitive.
type TitleFilter struct {
	allow []*regexp.Regexp
	deny  []*regexp.Regexp
}

// NewTitleFilter compiles the allow and deny patterns.
func NewTitleFilter(allow, deny []string) (*TitleFilter, error) {
	a, err := compileAll(allow)
	if err != nil {
		return nil, fmt.Errorf("title allow: %w", err)
	}
	d, err := compileAll(deny)
	if err != nil {
		return nil, fmt.Errorf("title deny: %w", err)
	}
	return &TitleFilter{allow: a, deny: d}, nil
}

func (f *TitleFilter) Check(p model.RawPosting) Verdict {
	for _, re := range f.deny {
		if re.MatchString(p.Title) {
			return Blocked(model.BlockTitle, "deny "+re.String())
		}
	}
	if len(f.allow) == 0 {
		return Pass()
	}
	for _, re := range f.allow {
		if re.MatchString(p.Title) {
			return Pass()
		}
	}
	return Blocked(model.BlockTitle, "no allow pattern matched")
}
