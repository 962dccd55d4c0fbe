// Package normalize folds free-text names into comparable keys.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are dropped from the end of employer names.
var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "ltd": true, "limited": true,
	"corp": true, "corporation": true, "co": true, "company": true, "plc": true,
	"gmbh": true, "ag": true, "sa": true, "bv": true, "pty": true, "lp": true, "llp": true,
}

// Fold lower-cases s, strips diacritics, turns punctuation into spaces and
// collapses whitespace. "Société Générale, Inc." becomes "societe generale inc".
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&' || r == '+' || r == '#':
			// keep tokens like "c++", "c#", "at&t" distinguishable
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Employer folds an employer name and drops trailing legal suffixes.
func Employer(name string) string {
	fields := strings.Fields(Fold(name))
	for len(fields) > 1 && legalSuffixes[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// Title folds a job title. Requisition noise in brackets is removed first.
func Title(title string) string {
	return Fold(stripBracketed(title))
}

// City returns the folded first comma-separated segment of a location,
// which is where sources put the city.
func City(location string) string {
	first, _, _ := strings.Cut(location, ",")
	return Fold(first)
}

func stripBracketed(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(', '[':
			depth++
			continue
		case ')', ']':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
