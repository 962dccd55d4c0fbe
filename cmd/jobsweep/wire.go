package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/amishk599/jobsweep/internal/adapter"
	"github.com/amishk599/jobsweep/internal/browser"
	"github.com/amishk599/jobsweep/internal/config"
	"github.com/amishk599/jobsweep/internal/dedup"
	"github.com/amishk599/jobsweep/internal/filter"
	"github.com/amishk599/jobsweep/internal/location"
	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/oracle"
	"github.com/amishk599/jobsweep/internal/orchestrator"
	"github.com/amishk599/jobsweep/internal/poller"
	"github.com/amishk599/jobsweep/internal/ratelimit"
	"github.com/amishk599/jobsweep/internal/retry"
	"github.com/amishk599/jobsweep/internal/store"
	"github.com/amishk599/jobsweep/internal/taxonomy"
	"github.com/amishk599/jobsweep/internal/watermark"
)

const (
	fetchTimeout  = 30 * time.Second
	maxFetchDelay = 30 * time.Second
)

// app is everything a command needs, built once from config.
type app struct {
	cfg        *config.Config
	store      model.Store
	watermarks model.WatermarkStore
	taxonomy   *taxonomy.Taxonomy
	pipeline   *poller.Pipeline
	sources    []orchestrator.Source
	logger     *slog.Logger
	closers    []func() error
}

// newApp opens the stores and wires the pipeline. dryRun swaps in a store
// that persists nothing.
func newApp(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	tax, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	a.taxonomy = tax

	st, err := openStore(ctx, cfg, dryRun)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	wm, closeWM, err := openWatermarks(ctx, cfg, st, dryRun)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.watermarks = wm
	if closeWM != nil {
		a.closers = append(a.closers, closeWM)
	}

	prefilter, err := buildPrefilter(cfg.Filters, tax)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetchClient := &http.Client{Timeout: fetchTimeout}
	oracleClient := &http.Client{}
	limiter := buildLimiter(cfg.RateLimit)

	a.sources, err = buildSources(cfg, fetchClient, limiter, location.NewExtractor(tax.Locations(), location.DefaultCoverage), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline = poller.NewPipeline(poller.Deps{
		Ledger:     st,
		Prefilter:  prefilter,
		Classifier: buildClassifier(cfg.Oracle, oracleClient, logger),
		Mapper:     tax,
		Agency:     filter.NewAgencySignal(cfg.Filters.AgencyThreshold),
		Keyer:      dedup.NewKeyer(tax),
		Engine:     dedup.NewEngine(st, dedup.NewPriorities(cfg.Priorities), logger),
	}, logger)

	return a, nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(a.sources, a.pipeline, a.watermarks, a.store, a.logger)
}

func openStore(ctx context.Context, cfg *config.Config, dryRun bool) (model.Store, error) {
	if dryRun {
		return store.NewNopStore(), nil
	}
	if cfg.Store.Backend == "postgres" {
		pg, err := store.NewPostgresStore(ctx, cfg.Store.DSN, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	sq, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	return sq, nil
}

// openWatermarks returns the store itself unless watermarks live in Redis.
func openWatermarks(ctx context.Context, cfg *config.Config, st model.Store, dryRun bool) (model.WatermarkStore, func() error, error) {
	if dryRun || cfg.Watermarks.Backend != "redis" {
		return st, nil, nil
	}
	client, err := watermark.NewRedisClient(ctx, cfg.Watermarks.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rs := watermark.NewRedisStore(client, cfg.Watermarks.Prefix, cfg.Watermarks.TTL)
	return rs, rs.Close, nil
}

// buildPrefilter orders the stages title, location, agency.
func buildPrefilter(fc config.FilterConfig, tax *taxonomy.Taxonomy) (*filter.Chain, error) {
	title, err := filter.NewTitleFilter(fc.TitleKeywords, fc.TitleExcludeKeywords)
	if err != nil {
		return nil, err
	}
	loc, err := filter.NewLocationFilter(fc.Locations, fc.AllowMissingLocation)
	if err != nil {
		return nil, err
	}
	return filter.NewChain(title, loc, filter.NewAgencyFilter(tax.Agencies())), nil
}

func buildLimiter(rc config.RateLimitConfig) *ratelimit.Registry {
	limits := make(map[string]ratelimit.Limit, len(rc.Overrides))
	for src, l := range rc.Overrides {
		limits[src] = ratelimit.Limit{PerSecond: l.PerSecond, Burst: l.Burst}
	}
	return ratelimit.NewRegistry(limits, ratelimit.Limit{PerSecond: rc.PerSecond, Burst: rc.Burst})
}

func buildClassifier(oc config.OracleConfig, httpClient *http.Client, logger *slog.Logger) *oracle.Client {
	var provider oracle.Provider
	switch oc.Provider {
	case "anthropic":
		provider = oracle.NewAnthropicProvider(oc.APIKey, oc.BaseURL, httpClient)
	default:
		provider = oracle.NewOpenAIProvider(oc.BaseURL, oc.APIKey, httpClient)
	}

	routes := make(map[string]oracle.Route, len(oc.Routes))
	for src, r := range oc.Routes {
		routes[src] = oracle.Route{Model: r.Model, Fallback: r.Fallback}
	}
	router := oracle.NewRouter(oracle.Route{Model: oc.Model, Fallback: oc.FallbackModel}, routes)

	return oracle.NewClient(provider, router, oracle.Options{
		TokenBudget: oc.TokenBudget,
		CallTimeout: oc.Timeout,
		Retry: retry.Policy{
			MaxRetries: oc.MaxRetries,
			BaseDelay:  oc.RetryDelay,
			MaxDelay:   oc.RetryMaxDelay,
			Logger:     logger,
		},
	}, logger)
}

// buildSources creates one connector per configured source.
func buildSources(cfg *config.Config, httpClient *http.Client, limiter *ratelimit.Registry, locations browser.LocationExtractor, logger *slog.Logger) ([]orchestrator.Source, error) {
	policy := retry.Policy{
		MaxRetries: cfg.Run.FetchRetries,
		BaseDelay:  cfg.Run.FetchDelay,
		MaxDelay:   maxFetchDelay,
		Logger:     logger,
	}

	var sources []orchestrator.Source
	for _, sc := range cfg.Sources {
		companies := sc.EnabledCompanies()
		if len(companies) == 0 {
			continue
		}

		var (
			conn  model.Connector
			names = make([]string, 0, len(companies))
		)
		for _, c := range companies {
			names = append(names, c.Name)
		}

		switch sc.Kind {
		case config.KindBrowser:
			b := browser.NewStaticBrowser(sc.Name, httpClient, browser.Selectors{
				Listing:     sc.Selectors.Listing,
				Title:       sc.Selectors.Title,
				Location:    sc.Selectors.Location,
				Link:        sc.Selectors.Link,
				Employer:    sc.Selectors.Employer,
				Description: sc.Selectors.Description,
				IDAttr:      sc.Selectors.IDAttr,
				Controls:    sc.Selectors.Controls,
			}, limiter, policy)
			sites := make(map[string]browser.Site, len(companies))
			for _, c := range companies {
				sites[c.Name] = browser.Site{Employer: c.EmployerName(), StartURL: c.StartURL}
			}
			paginator := browser.Paginator{MaxCycles: sc.MaxCycles, StableCycles: sc.StableCycles}
			conn = browser.NewConnector(sc.Name, b, sites, paginator, cfg.Run.UnitTimeout, locations, logger)
		default:
			fetchers := make(map[string]adapter.PageFetcher, len(companies))
			for _, c := range companies {
				f, err := newPageFetcher(sc, c, httpClient, limiter)
				if err != nil {
					return nil, err
				}
				fetchers[c.Name] = f
			}
			conn = adapter.NewAPIConnector(sc.Name, fetchers, limiter, policy, logger)
		}

		sources = append(sources, orchestrator.Source{
			Name:        sc.Name,
			Connector:   conn,
			Companies:   names,
			Concurrency: sc.Concurrency,
			UnitTimeout: cfg.Run.UnitTimeout,
		})
		logger.Debug("registered source", "source", sc.Name, "type", sc.Type, "companies", len(names))
	}
	return sources, nil
}

func newPageFetcher(sc config.SourceConfig, c config.CompanyConfig, httpClient *http.Client, limiter adapter.Waiter) (adapter.PageFetcher, error) {
	switch sc.Type {
	case "greenhouse":
		return adapter.NewGreenhouseFetcher(c.BoardToken, c.EmployerName(), httpClient), nil
	case "lever":
		return adapter.NewLeverFetcher(c.BoardToken, c.EmployerName(), httpClient), nil
	case "ashby":
		return adapter.NewAshbyFetcher(c.BoardToken, c.EmployerName(), httpClient), nil
	case "gem":
		return adapter.NewGemFetcher(c.BoardToken, c.EmployerName(), httpClient), nil
	case "workday":
		return adapter.NewWorkdayFetcher(sc.Name, c.WorkdayURL, c.EmployerName(), httpClient, limiter), nil
	case "adzuna":
		return adapter.NewAdzunaFetcher(sc.AppID, sc.AppKey, adapter.AdzunaQuery{
			Country: c.Country,
			What:    c.What,
			Where:   c.Where,
		}, httpClient), nil
	default:
		return nil, fmt.Errorf("source %q: unsupported type %q", sc.Name, sc.Type)
	}
}
