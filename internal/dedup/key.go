// Package dedup decides which logical job a posting belongs to and merges
// sightings of the same job into one enriched record.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/normalize"
)

// Directory resolves employer aliases and city names. *taxonomy.Taxonomy
// satisfies it.
type Directory interface {
	CanonicalEmployer(name string) string
	CityFor(text string) string
}

// Keyer computes identity keys.
type Keyer struct {
	dir Directory
}

// NewKeyer creates a Keyer. dir may be nil, in which case names are only
// folded.
func NewKeyer(dir Directory) *Keyer {
	return &Keyer{dir: dir}
}

// Key returns the identity key for a posting: the canonical URL when the
// posting has one, otherwise a hash of normalized employer, title and city.
func (k *Keyer) Key(p model.RawPosting) string {
	if u := CanonicalURL(p.URL); u != "" {
		return "url:" + digest(u)
	}
	return "job:" + digest(k.composite(p))
}

func (k *Keyer) composite(p model.RawPosting) string {
	employer := p.Employer
	if k.dir != nil {
		employer = k.dir.CanonicalEmployer(employer)
	}
	city := ""
	if loc := strings.TrimSpace(p.Location); loc != "" {
		if k.dir != nil {
			city = k.dir.CityFor(loc)
		} else {
			city = normalize.City(loc)
		}
	}
	return normalize.Employer(employer) + "|" + normalize.Title(p.Title) + "|" + city
}

// trackingParams never identify a posting. utm_* is matched by prefix.
var trackingParams = map[string]bool{
	"gh_src": true, "lever-source": true, "lever-origin": true,
	"source": true, "src": true, "ref": true, "referrer": true,
}

// CanonicalURL lower-cases scheme and host, drops the fragment, tracking
// query parameters and a trailing slash, and sorts what is left of the
// query. Unparseable input yields "".
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	q := u.Query()
	for name := range q {
		lower := strings.ToLower(name)
		if trackingParams[lower] || strings.HasPrefix(lower, "utm_") {
			q.Del(name)
		}
	}
	keys := make([]string, 0, len(q))
	for name := range q {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	var parts []string
	for _, name := range keys {
		vals := q[name]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}

// ContentHash fingerprints the published content of a posting. Two
// sightings with the same hash carry the same text.
func ContentHash(p model.RawPosting) string {
	var comp string
	if c := p.Compensation; c != nil {
		comp = fmt.Sprintf("%g-%g %s/%s", c.Min, c.Max, c.Currency, c.Period)
	}
	return digest(strings.Join([]string{
		strings.TrimSpace(p.Employer),
		strings.TrimSpace(p.Title),
		strings.TrimSpace(p.Location),
		strings.TrimSpace(p.Description),
		CanonicalURL(p.URL),
		comp,
	}, "\x1f"))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
