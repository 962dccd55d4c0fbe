// Package filter is the cheap deterministic gate applied to postings before
// the classification oracle. Stages run cheapest first and the first block
// wins.
package filter

import (
	"fmt"
	"regexp"

	"github.com/amishk599/jobsweep/internal/model"
)

// Verdict is the outcome of a prefilter check.
type Verdict struct {
	Reason model.BlockReason // BlockNone when the posting passes
	Detail string
}

// Passed reports whether the posting may proceed to classification.
func (v Verdict) Passed() bool { return v.Reason == model.BlockNone }

// Pass is the passing verdict.
func Pass() Verdict { return Verdict{} }

// Blocked is a blocking verdict with a reason code and a human-readable detail.
func Blocked(reason model.BlockReason, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}

// Stage is one prefilter check.
type Stage interface {
	Check(p model.RawPosting) Verdict
}

// Chain runs stages in order. It is safe for concurrent use as long as its
// stages are.
type Chain struct {
	stages []Stage
}

// NewChain builds a chain; nil stages are skipped.
func NewChain(stages ...Stage) *Chain {
	c := &Chain{}
	for _, s := range stages {
		if s != nil {
			c.stages = append(c.stages, s)
		}
	}
	return c
}

// Check returns the first blocking verdict, or Pass.
func (c *Chain) Check(p model.RawPosting) Verdict {
	v := Pass()
	for _, s := range c.stages {
		if v = s.Check(p); !v.Passed() {
			break
		}
	}
	return v
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
