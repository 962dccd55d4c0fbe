package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/retry"
)

const (
	DefaultTokenBudget = 3000
	DefaultMaxTokens   = 1024
	DefaultCallTimeout = 60 * time.Second
)

// Options configure a Client. Zero values take the defaults above.
type Options struct {
	TokenBudget int           // input budget for the description
	MaxTokens   int           // reply budget
	CallTimeout time.Duration // per provider call
	Retry       retry.Policy  // transient retries on the primary model
}

// Client classifies postings through a Provider, routing by source.
type Client struct {
	provider Provider
	router   *Router
	opts     Options
	logger   *slog.Logger
}

// NewClient creates a classification client.
func NewClient(provider Provider, router *Router, opts Options, logger *slog.Logger) *Client {
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = DefaultTokenBudget
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = logger
	}
	return &Client{provider: provider, router: router, opts: opts, logger: logger}
}

// Classify sends one posting to the routed model. Transient failures are
// retried with backoff. A malformed reply triggers exactly one call to the
// route's fallback model; if that reply is also unusable the outcome is
// KindMalformed and the posting stays eligible for backfill.
func (c *Client) Classify(ctx context.Context, req Request) Outcome {
	route := c.router.Route(req.Source)

	prompt, err := c.render(req)
	if err != nil {
		return Outcome{Kind: KindPermanent, Model: route.Model, Err: err}
	}

	attempts := 0
	raw, err := retry.Do(ctx, c.opts.Retry, "oracle "+route.Model, func(ctx context.Context) (string, error) {
		attempts++
		raw, err := c.complete(ctx, route.Model, prompt)
		if errors.Is(err, ErrMalformed) {
			return "", retry.Permanent(err)
		}
		return raw, err
	})

	var (
		res  model.ClassificationResult
		perr error
	)
	switch {
	case err == nil:
		if res, perr = parseResult(raw); perr == nil {
			return Outcome{Kind: KindSuccess, Result: res, Model: route.Model, Attempts: attempts}
		}
	case errors.Is(err, ErrMalformed):
		perr = err
	default:
		return Outcome{Kind: errorKind(err), Model: route.Model, Attempts: attempts, Err: err}
	}

	if route.Fallback == "" {
		return Outcome{Kind: KindMalformed, Model: route.Model, Attempts: attempts, Err: perr}
	}

	c.logger.Warn("malformed oracle response, trying fallback",
		"source", req.Source,
		"model", route.Model,
		"fallback", route.Fallback,
		"error", perr,
	)

	attempts++
	raw, err = c.complete(ctx, route.Fallback, prompt)
	if err != nil {
		return Outcome{Kind: errorKind(err), Model: route.Fallback, Attempts: attempts, FallbackUsed: true, Err: err}
	}
	res, perr = parseResult(raw)
	if perr != nil {
		return Outcome{Kind: KindMalformed, Model: route.Fallback, Attempts: attempts, FallbackUsed: true, Err: perr}
	}
	return Outcome{Kind: KindSuccess, Result: res, Model: route.Fallback, Attempts: attempts, FallbackUsed: true}
}

// complete makes one provider call under the per-call timeout. A call that
// hits its own deadline while the parent context is still live is reported
// as a plain (retryable) error rather than context.DeadlineExceeded.
func (c *Client) complete(ctx context.Context, modelName string, p Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	raw, err := c.provider.Complete(callCtx, modelName, p)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("oracle call to %s timed out after %s", modelName, c.opts.CallTimeout)
	}
	return raw, err
}

func (c *Client) render(req Request) (Prompt, error) {
	var buf bytes.Buffer
	data := struct {
		Title           string
		Description     string
		TaxonomyVersion string
		Subfamilies     []string
	}{
		Title:           req.Title,
		Description:     Truncate(req.Description, c.opts.TokenBudget),
		TaxonomyVersion: req.TaxonomyVersion,
		Subfamilies:     req.Subfamilies,
	}
	if err := classifyTemplate.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("render prompt: %w", err)
	}
	return Prompt{System: systemPrompt, User: buf.String(), MaxTokens: c.opts.MaxTokens}, nil
}

func errorKind(err error) Kind {
	if errors.Is(err, ErrMalformed) {
		return KindMalformed
	}
	if retry.IsRetryable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindPermanent
}
