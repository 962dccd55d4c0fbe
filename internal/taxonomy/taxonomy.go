// Package taxonomy holds the static lookup tables used to enrich oracle output.
// Tables are loaded once, never mutated, and safe for concurrent readers.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/normalize"
)

//go:embed default.yaml
var defaultYAML []byte

// Location is one recognizable place with the patterns that identify it.
type Location struct {
	Name     string
	City     string
	Patterns []*regexp.Regexp
}

// Employer is read-only metadata from the employer directory.
type Employer struct {
	Name     string
	Industry string
	Size     string
}

// Taxonomy is an immutable, versioned set of lookup tables.
type Taxonomy struct {
	version     string
	skills      map[string]model.Skill // folded name/alias -> skill
	subfamilies map[string]string      // subfamily -> family
	locations   []Location
	agencies    []string            // normalized employer names
	employers   map[string]Employer // normalized alias -> employer
}

type rawTaxonomy struct {
	Version     string            `yaml:"version"`
	Skills      []rawSkill        `yaml:"skills"`
	Subfamilies map[string]string `yaml:"subfamilies"`
	Locations   []rawLocation     `yaml:"locations"`
	Agencies    []string          `yaml:"agencies"`
	Employers   []rawEmployer     `yaml:"employers"`
}

type rawSkill struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Family  string   `yaml:"family"`
	Domain  string   `yaml:"domain"`
}

type rawLocation struct {
	Name     string   `yaml:"name"`
	City     string   `yaml:"city"`
	Patterns []string `yaml:"patterns"`
}

type rawEmployer struct {
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	Industry string   `yaml:"industry"`
	Size     string   `yaml:"size"`
}

// Default returns the embedded taxonomy.
func Default() (*Taxonomy, error) {
	return Parse(defaultYAML)
}

// Load reads a taxonomy file. An empty path loads the embedded default.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return Parse(data)
}

// Parse builds a Taxonomy from YAML. Any inconsistency is an error: a
// malformed table is a configuration failure, not something to guess around.
func Parse(data []byte) (*Taxonomy, error) {
	var raw rawTaxonomy
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if raw.Version == "" {
		return nil, fmt.Errorf("taxonomy: version is required")
	}

	t := &Taxonomy{
		version:     raw.Version,
		skills:      make(map[string]model.Skill),
		subfamilies: make(map[string]string, len(raw.Subfamilies)),
		employers:   make(map[string]Employer),
	}

	for _, s := range raw.Skills {
		if s.Name == "" || s.Family == "" || s.Domain == "" {
			return nil, fmt.Errorf("taxonomy: skill %q needs name, family and domain", s.Name)
		}
		skill := model.Skill{Name: s.Name, Family: s.Family, Domain: s.Domain}
		for _, key := range append([]string{s.Name}, s.Aliases...) {
			k := normalize.Fold(key)
			if prev, dup := t.skills[k]; dup && prev.Name != s.Name {
				return nil, fmt.Errorf("taxonomy: skill key %q maps to both %q and %q", k, prev.Name, s.Name)
			}
			t.skills[k] = skill
		}
	}

	for sub, fam := range raw.Subfamilies {
		key := strings.ToLower(strings.TrimSpace(sub))
		if key == "" || fam == "" {
			return nil, fmt.Errorf("taxonomy: subfamily %q has empty family", sub)
		}
		if prev, dup := t.subfamilies[key]; dup && prev != fam {
			return nil, fmt.Errorf("taxonomy: subfamily key %q maps to both %q and %q", key, prev, fam)
		}
		t.subfamilies[key] = fam
	}

	for _, l := range raw.Locations {
		loc := Location{Name: l.Name, City: l.City}
		for _, p := range l.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("taxonomy: location %q pattern %q: %w", l.Name, p, err)
			}
			loc.Patterns = append(loc.Patterns, re)
		}
		if len(loc.Patterns) == 0 {
			return nil, fmt.Errorf("taxonomy: location %q has no patterns", l.Name)
		}
		t.locations = append(t.locations, loc)
	}

	for _, a := range raw.Agencies {
		if n := normalize.Employer(a); n != "" {
			t.agencies = append(t.agencies, n)
		}
	}

	for _, e := range raw.Employers {
		emp := Employer{Name: e.Name, Industry: e.Industry, Size: e.Size}
		for _, alias := range append([]string{e.Name}, e.Aliases...) {
			t.employers[normalize.Employer(alias)] = emp
		}
	}

	return t, nil
}

// Version identifies the table set; it is sent to the oracle and stored on
// every enriched job.
func (t *Taxonomy) Version() string { return t.version }

// Locations returns the location table in file order.
func (t *Taxonomy) Locations() []Location { return t.locations }

// Agencies returns the normalized agency blocklist.
func (t *Taxonomy) Agencies() []string { return t.agencies }

// Subfamilies returns the known subfamily names, used to constrain the oracle.
func (t *Taxonomy) Subfamilies() []string {
	out := make([]string, 0, len(t.subfamilies))
	for sub := range t.subfamilies {
		out = append(out, sub)
	}
	sort.Strings(out)
	return out
}

// LookupEmployer finds directory metadata for an employer name or alias.
func (t *Taxonomy) LookupEmployer(name string) (Employer, bool) {
	e, ok := t.employers[normalize.Employer(name)]
	return e, ok
}

// CanonicalEmployer returns the directory name for a known alias, otherwise
// the input unchanged.
func (t *Taxonomy) CanonicalEmployer(name string) string {
	if e, ok := t.LookupEmployer(name); ok {
		return e.Name
	}
	return name
}

// CityFor returns the city of the first location whose pattern matches text,
// falling back to the folded first segment of text.
func (t *Taxonomy) CityFor(text string) string {
	for _, loc := range t.locations {
		if loc.City == "" {
			continue
		}
		for _, re := range loc.Patterns {
			if re.MatchString(text) {
				return loc.City
			}
		}
	}
	return normalize.City(text)
}
