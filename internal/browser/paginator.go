package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// State is a pagination state machine state.
type State int

const (
	StateLoading State = iota
	StateExtracting
	StateAdvancing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateExtracting:
		return "extracting"
	case StateAdvancing:
		return "advance_page"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Reasons a pagination run ended.
const (
	ReasonExhausted = "exhausted"  // no usable control left
	ReasonLoopGuard = "loop_guard" // count unchanged for StableCycles cycles
	ReasonCycleCap  = "cycle_cap"  // MaxCycles reached
	ReasonStopped   = "stopped"    // consumer stopped early
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
	ReasonError     = "error"
)

const (
	DefaultMaxCycles    = 200
	DefaultStableCycles = 3
)

// Outcome describes how a pagination run ended. Err is set only in
// StateError; listings emitted before the error remain valid.
type Outcome struct {
	State  State
	Reason string
	Cycles int
	Count  int
	Err    error
}

// Paginator drives Loading -> Extracting -> {AdvancePage, Done, Error}.
type Paginator struct {
	MaxCycles    int
	StableCycles int
}

// Run pages through p, calling emit once per distinct listing. Each
// extracting cycle counts the distinct listings seen so far; when that count
// is the same for StableCycles consecutive cycles the run is Done with
// ReasonLoopGuard, even if a next control is still offered.
func (pg Paginator) Run(ctx context.Context, p Page, emit func(Listing) bool) Outcome {
	maxCycles := pg.MaxCycles
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	stable := pg.StableCycles
	if stable <= 0 {
		stable = DefaultStableCycles
	}

	var (
		seen    = make(map[string]bool)
		state   = StateLoading
		cycles  int
		prev    = -1
		streak  int
		current = 1 // page number currently shown
	)

	done := func(reason string) Outcome {
		return Outcome{State: StateDone, Reason: reason, Cycles: cycles, Count: len(seen)}
	}
	fail := func(err error) Outcome {
		return Outcome{State: StateError, Reason: reasonFor(err), Cycles: cycles, Count: len(seen), Err: err}
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		switch state {
		case StateLoading:
			state = StateExtracting

		case StateExtracting:
			listings, err := p.Extract(ctx)
			if err != nil {
				return fail(fmt.Errorf("extract on page %d: %w", current, err))
			}
			for _, l := range listings {
				if l.ID == "" || seen[l.ID] {
					continue
				}
				seen[l.ID] = true
				if !emit(l) {
					return done(ReasonStopped)
				}
			}
			cycles++

			count := len(seen)
			if count == prev {
				streak++
			} else {
				streak = 1
			}
			prev = count

			switch {
			case streak >= stable:
				return done(ReasonLoopGuard)
			case cycles >= maxCycles:
				return done(ReasonCycleCap)
			}
			state = StateAdvancing

		case StateAdvancing:
			controls, err := p.Controls(ctx)
			if err != nil {
				return fail(fmt.Errorf("controls on page %d: %w", current, err))
			}
			c, ok := NextControl(controls, current)
			if !ok {
				return done(ReasonExhausted)
			}
			if err := p.Activate(ctx, c); err != nil {
				return fail(fmt.Errorf("activate %q on page %d: %w", c.Label, current, err))
			}
			current++
			state = StateLoading
		}
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	}
	return ReasonError
}

var (
	nextPattern    = regexp.MustCompile(`(?i)^(next( page)?|load more( jobs)?|show more( jobs| results)?|more (jobs|results)|see more|view more|›|»|→|>|>>)$`)
	numericPattern = regexp.MustCompile(`^\d+$`)
)

// NextControl picks the control that advances from page current. Explicit
// next/load-more affordances win. Otherwise a numbered control qualifies
// only when its visible label is purely numeric and equals current+1, so
// category tabs and labels like "2 Locations" are never mistaken for pages.
func NextControl(controls []Control, current int) (Control, bool) {
	for _, c := range controls {
		if c.Disabled {
			continue
		}
		label := strings.TrimSpace(c.Label)
		if strings.EqualFold(c.Rel, "next") ||
			nextPattern.MatchString(strings.TrimSpace(c.Aria)) ||
			nextPattern.MatchString(label) {
			return c, true
		}
	}

	want := current + 1
	for _, c := range controls {
		if c.Disabled {
			continue
		}
		label := strings.TrimSpace(c.Label)
		if !numericPattern.MatchString(label) {
			continue
		}
		if n, err := strconv.Atoi(label); err == nil && n == want {
			return c, true
		}
	}
	return Control{}, false
}
