// Package oracle is the client for the external classification model. Every
// call ends in a closed Outcome; callers never inspect raw responses.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/amishk599/jobsweep/internal/model"
)

// Request is one posting to classify.
type Request struct {
	Source          string
	Title           string
	Description     string
	TaxonomyVersion string
	Subfamilies     []string // allowed job_subfamily values
}

// Kind tags an Outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindMalformed
	KindTransient
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindMalformed:
		return "malformed_response"
	case KindTransient:
		return "transient_error"
	case KindPermanent:
		return "permanent_error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Outcome is the result of Classify. Result is valid only for KindSuccess.
type Outcome struct {
	Kind         Kind
	Result       model.ClassificationResult
	Model        string // model whose answer is in Result, or the last one tried
	Attempts     int    // provider calls made, fallback included
	FallbackUsed bool
	Err          error
}

// Prompt is a rendered provider request.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Provider sends a prompt to one model and returns the raw text reply.
// Upstream status failures are returned as *model.HTTPError.
type Provider interface {
	Complete(ctx context.Context, modelName string, p Prompt) (string, error)
}

// ErrMalformed marks a reply that is not JSON or fails schema validation.
var ErrMalformed = errors.New("malformed oracle response")

const (
	runesPerToken   = 4
	truncatedMarker = "\n[description truncated]"
)

// Truncate cuts s to the rune budget implied by tokenBudget, backing off to
// the last whitespace so words are not split, and appends a fixed marker.
// Identical inputs always give identical outputs.
func Truncate(s string, tokenBudget int) string {
	if tokenBudget <= 0 {
		return s
	}
	limit := tokenBudget * runesPerToken
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	limit -= utf8.RuneCountInString(truncatedMarker)
	if limit <= 0 {
		return strings.TrimSpace(truncatedMarker)
	}

	runes := []rune(s)[:limit]
	cut := len(runes)
	for i := len(runes) - 1; i > len(runes)/2; i-- {
		if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t' {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(runes[:cut]), " \n\t") + truncatedMarker
}
