// Package ratelimit keeps one token-bucket limiter per source so concurrent
// units of the same source share its request budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limit is a per-source request budget.
type Limit struct {
	PerSecond float64
	Burst     int
}

// Registry hands out the limiter for a source, creating it on first use.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limits   map[string]Limit
	fallback Limit
}

// NewRegistry creates a registry. Sources without an entry in limits get
// fallback. A non-positive PerSecond means unlimited.
func NewRegistry(limits map[string]Limit, fallback Limit) *Registry {
	return &Registry{
		limiters: make(map[string]*rate.Limiter),
		limits:   limits,
		fallback: fallback,
	}
}

// Wait blocks until the source's limiter admits one request or ctx ends.
func (r *Registry) Wait(ctx context.Context, source string) error {
	if err := r.limiter(source).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", source, err)
	}
	return nil
}

func (r *Registry) limiter(source string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[source]; ok {
		return l
	}
	lim, ok := r.limits[source]
	if !ok {
		lim = r.fallback
	}
	var l *rate.Limiter
	if lim.PerSecond <= 0 {
		l = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := lim.Burst
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(lim.PerSecond), burst)
	}
	r.limiters[source] = l
	return l
}
