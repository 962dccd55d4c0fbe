// Package location turns free-text location strings scraped from career
// pages into canonical location names.
package location

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/amishk599/jobsweep/internal/taxonomy"
)

// DefaultCoverage is the fraction of input letters that recognized segments
// must cover before extraction stops.
const DefaultCoverage = 0.6

var separators = regexp.MustCompile(`\s*(?:;|\||/|•|·|\n|\s[-–—]\s|\sor\s|\band\b)\s*`)

// Extractor matches location text against taxonomy location patterns.
type Extractor struct {
	locations []taxonomy.Location
	coverage  float64
}

// NewExtractor builds an Extractor. A coverage outside (0, 1] uses DefaultCoverage.
func NewExtractor(locations []taxonomy.Location, coverage float64) *Extractor {
	if coverage <= 0 || coverage > 1 {
		coverage = DefaultCoverage
	}
	return &Extractor{locations: locations, coverage: coverage}
}

// Extract returns the canonical names of the recognized locations joined with
// "; ". Segments are consumed left to right and extraction stops once the
// recognized segments cover enough of the input, so trailing text such as a
// job title or "Hybrid" is never absorbed into the result. When nothing is
// recognized the trimmed input is returned.
func (e *Extractor) Extract(raw string) string {
	raw = strings.TrimSpace(raw)
	total := letters(raw)
	if total == 0 {
		return raw
	}

	var (
		names   []string
		seen    = make(map[string]bool)
		covered int
	)
	for _, seg := range separators.Split(raw, -1) {
		loc, ok := e.match(seg)
		if !ok {
			continue
		}
		covered += letters(seg)
		if !seen[loc.Name] {
			seen[loc.Name] = true
			names = append(names, loc.Name)
		}
		if float64(covered)/float64(total) >= e.coverage {
			break
		}
	}
	if len(names) == 0 {
		return raw
	}
	return strings.Join(names, "; ")
}

func (e *Extractor) match(seg string) (taxonomy.Location, bool) {
	if strings.TrimSpace(seg) == "" {
		return taxonomy.Location{}, false
	}
	for _, loc := range e.locations {
		for _, re := range loc.Patterns {
			if re.MatchString(seg) {
				return loc, true
			}
		}
	}
	return taxonomy.Location{}, false
}

func letters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
