package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for jobsweep.
type Config struct {
	Store        StoreConfig
	Watermarks   WatermarkConfig
	TaxonomyPath string
	Sources      []SourceConfig
	Priorities   map[string]int
	Filters      FilterConfig
	Oracle       OracleConfig
	RateLimit    RateLimitConfig
	Run          RunConfig
	Notification NotificationConfig
}

// Connector kinds.
const (
	KindAPI     = "api"
	KindBrowser = "browser"
)

// Default pool sizes per connector kind.
const (
	DefaultAPIConcurrency     = 4
	DefaultBrowserConcurrency = 2
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend  string // "sqlite" or "postgres"
	Path     string // sqlite file
	DSN      string // postgres connection string, expanded from env by Load
	MaxConns int32
	MinConns int32
}

// WatermarkConfig selects where resume watermarks live.
type WatermarkConfig struct {
	Backend  string // "store" or "redis"
	RedisURL string
	Prefix   string
	TTL      time.Duration
}

// SourceConfig is one upstream source: a connector type and its units.
type SourceConfig struct {
	Name        string
	Type        string // greenhouse, lever, ashby, gem, workday, adzuna, static
	Kind        string // derived from Type
	Concurrency int
	Companies   []CompanyConfig

	// adzuna
	AppID  string
	AppKey string

	// static (browser) sites
	Selectors    SelectorConfig
	MaxCycles    int
	StableCycles int
}

// EnabledCompanies returns the companies not switched off.
func (s SourceConfig) EnabledCompanies() []CompanyConfig {
	var out []CompanyConfig
	for _, c := range s.Companies {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// CompanyConfig describes a single unit of a source.
type CompanyConfig struct {
	Name       string `yaml:"name"`
	Employer   string `yaml:"employer"`
	BoardToken string `yaml:"board_token"`
	WorkdayURL string `yaml:"workday_url"`
	StartURL   string `yaml:"start_url"`
	Country    string `yaml:"country"`
	What       string `yaml:"what"`
	Where      string `yaml:"where"`
	Enabled    bool   `yaml:"enabled"`
}

// EmployerName is the employer shown on postings, defaulting to Name.
func (c CompanyConfig) EmployerName() string {
	if c.Employer != "" {
		return c.Employer
	}
	return c.Name
}

// SelectorConfig holds goquery selectors for a static career page.
type SelectorConfig struct {
	Listing     string `yaml:"listing"`
	Title       string `yaml:"title"`
	Location    string `yaml:"location"`
	Link        string `yaml:"link"`
	Employer    string `yaml:"employer"`
	Description string `yaml:"description"`
	IDAttr      string `yaml:"id_attr"`
	Controls    string `yaml:"controls"`
}

// FilterConfig holds the prefilter settings.
type FilterConfig struct {
	TitleKeywords        []string
	TitleExcludeKeywords []string
	Locations            []string
	AllowMissingLocation bool
	AgencyThreshold      float64
}

// OracleConfig controls the classification client.
type OracleConfig struct {
	Provider      string // "openai" or "anthropic"
	BaseURL       string
	APIKey        string // expanded from env var by Load
	Model         string
	FallbackModel string
	Routes        map[string]RouteConfig
	Timeout       time.Duration // per call
	TokenBudget   int
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// RouteConfig overrides the models used for one source.
type RouteConfig struct {
	Model    string `yaml:"model"`
	Fallback string `yaml:"fallback"`
}

// RateLimitConfig controls per-source request budgets.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
	Overrides map[string]LimitConfig
}

// LimitConfig is one source's request budget.
type LimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// LimitFor returns the configured limit for source, falling back to the default.
func (r RateLimitConfig) LimitFor(source string) LimitConfig {
	if l, ok := r.Overrides[source]; ok {
		return l
	}
	return LimitConfig{PerSecond: r.PerSecond, Burst: r.Burst}
}

// RunConfig holds defaults for a sweep; CLI flags override them.
type RunConfig struct {
	ResumeWindow time.Duration
	MaxItems     int
	Budget       time.Duration
	UnitTimeout  time.Duration
	FetchRetries int
	FetchDelay   time.Duration
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOracleModel   = "gpt-4o-mini"
	defaultSQLitePath    = "jobsweep.db"
	slackWebhookPrefix   = "https://hooks.slack.com/"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Store        rawStoreConfig     `yaml:"store"`
	Watermarks   rawWatermarkConfig `yaml:"watermarks"`
	Taxonomy     rawTaxonomyConfig  `yaml:"taxonomy"`
	Sources      []rawSourceConfig  `yaml:"sources"`
	Priorities   map[string]int     `yaml:"priorities"`
	Filters      rawFilterConfig    `yaml:"filters"`
	Oracle       rawOracleConfig    `yaml:"oracle"`
	RateLimit    rawRateLimitConfig `yaml:"rate_limit"`
	Run          rawRunConfig       `yaml:"run"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawStoreConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

type rawWatermarkConfig struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`
	TTL      string `yaml:"ttl"`
}

type rawTaxonomyConfig struct {
	Path string `yaml:"path"`
}

type rawSourceConfig struct {
	Name         string          `yaml:"name"`
	Type         string          `yaml:"type"`
	Concurrency  int             `yaml:"concurrency"`
	Companies    []CompanyConfig `yaml:"companies"`
	AppID        string          `yaml:"app_id"`
	AppKey       string          `yaml:"app_key"`
	Selectors    SelectorConfig  `yaml:"selectors"`
	MaxCycles    int             `yaml:"max_cycles"`
	StableCycles int             `yaml:"stable_cycles"`
}

type rawFilterConfig struct {
	TitleKeywords        []string `yaml:"title_keywords"`
	TitleExcludeKeywords []string `yaml:"title_exclude_keywords"`
	Locations            []string `yaml:"locations"`
	AllowMissingLocation *bool    `yaml:"allow_missing_location"`
	AgencyThreshold      float64  `yaml:"agency_threshold"`
}

type rawOracleConfig struct {
	Provider      string                 `yaml:"provider"`
	BaseURL       string                 `yaml:"base_url"`
	APIKey        string                 `yaml:"api_key"`
	Model         string                 `yaml:"model"`
	FallbackModel string                 `yaml:"fallback_model"`
	Routes        map[string]RouteConfig `yaml:"routes"`
	Timeout       string                 `yaml:"timeout"`
	TokenBudget   int                    `yaml:"token_budget"`
	MaxRetries    *int                   `yaml:"max_retries"`
	RetryDelay    string                 `yaml:"retry_delay"`
	RetryMaxDelay string                 `yaml:"retry_max_delay"`
}

type rawRateLimitConfig struct {
	PerSecond *float64               `yaml:"per_second"`
	Burst     int                    `yaml:"burst"`
	Overrides map[string]LimitConfig `yaml:"overrides"`
}

type rawRunConfig struct {
	ResumeWindow string `yaml:"resume_window"`
	MaxItems     int    `yaml:"max_items"`
	Budget       string `yaml:"budget"`
	UnitTimeout  string `yaml:"unit_timeout"`
	FetchRetries *int   `yaml:"fetch_retries"`
	FetchDelay   string `yaml:"fetch_delay"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. Environment variables are expanded
// before parsing.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var d durations

	cfg := &Config{
		Store: StoreConfig{
			Backend:  orDefault(raw.Store.Backend, "sqlite"),
			Path:     orDefault(raw.Store.Path, defaultSQLitePath),
			DSN:      raw.Store.DSN,
			MaxConns: raw.Store.MaxConns,
			MinConns: raw.Store.MinConns,
		},
		Watermarks: WatermarkConfig{
			Backend:  orDefault(raw.Watermarks.Backend, "store"),
			RedisURL: raw.Watermarks.RedisURL,
			Prefix:   raw.Watermarks.Prefix,
			TTL:      d.parse("watermarks.ttl", raw.Watermarks.TTL, 0),
		},
		TaxonomyPath: raw.Taxonomy.Path,
		Priorities:   raw.Priorities,
		Filters: FilterConfig{
			TitleKeywords:        raw.Filters.TitleKeywords,
			TitleExcludeKeywords: raw.Filters.TitleExcludeKeywords,
			Locations:            raw.Filters.Locations,
			AllowMissingLocation: raw.Filters.AllowMissingLocation == nil || *raw.Filters.AllowMissingLocation,
			AgencyThreshold:      raw.Filters.AgencyThreshold,
		},
		Oracle: OracleConfig{
			Provider:      orDefault(raw.Oracle.Provider, "openai"),
			BaseURL:       raw.Oracle.BaseURL,
			APIKey:        raw.Oracle.APIKey,
			Model:         orDefault(raw.Oracle.Model, defaultOracleModel),
			FallbackModel: raw.Oracle.FallbackModel,
			Routes:        raw.Oracle.Routes,
			Timeout:       d.parse("oracle.timeout", raw.Oracle.Timeout, 60*time.Second),
			TokenBudget:   raw.Oracle.TokenBudget,
			MaxRetries:    intOr(raw.Oracle.MaxRetries, 2),
			RetryDelay:    d.parse("oracle.retry_delay", raw.Oracle.RetryDelay, 2*time.Second),
			RetryMaxDelay: d.parse("oracle.retry_max_delay", raw.Oracle.RetryMaxDelay, 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			PerSecond: 1,
			Burst:     max(raw.RateLimit.Burst, 1),
			Overrides: raw.RateLimit.Overrides,
		},
		Run: RunConfig{
			ResumeWindow: d.parse("run.resume_window", raw.Run.ResumeWindow, 0),
			MaxItems:     raw.Run.MaxItems,
			Budget:       d.parse("run.budget", raw.Run.Budget, 0),
			UnitTimeout:  d.parse("run.unit_timeout", raw.Run.UnitTimeout, 3*time.Minute),
			FetchRetries: intOr(raw.Run.FetchRetries, 2),
			FetchDelay:   d.parse("run.fetch_delay", raw.Run.FetchDelay, 2*time.Second),
		},
		Notification: raw.Notification,
	}
	if d.err != nil {
		return nil, d.err
	}

	if raw.RateLimit.PerSecond != nil {
		cfg.RateLimit.PerSecond = *raw.RateLimit.PerSecond
	}
	if cfg.Oracle.Provider == "openai" && cfg.Oracle.BaseURL == "" {
		cfg.Oracle.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Filters.AgencyThreshold == 0 {
		cfg.Filters.AgencyThreshold = 0.5
	}
	if cfg.Priorities == nil {
		cfg.Priorities = make(map[string]int)
	}

	for _, rs := range raw.Sources {
		sc := SourceConfig{
			Name:         orDefault(rs.Name, rs.Type),
			Type:         strings.ToLower(rs.Type),
			Concurrency:  rs.Concurrency,
			Companies:    rs.Companies,
			AppID:        rs.AppID,
			AppKey:       rs.AppKey,
			Selectors:    rs.Selectors,
			MaxCycles:    rs.MaxCycles,
			StableCycles: rs.StableCycles,
		}
		sc.Kind = KindAPI
		if sc.Type == "static" {
			sc.Kind = KindBrowser
		}
		if sc.Concurrency <= 0 {
			sc.Concurrency = DefaultAPIConcurrency
			if sc.Kind == KindBrowser {
				sc.Concurrency = DefaultBrowserConcurrency
			}
		}
		cfg.Sources = append(cfg.Sources, sc)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Source returns the named source.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// durations parses a run of duration fields, keeping the first error.
type durations struct {
	err error
}

func (d *durations) parse(field, value string, def time.Duration) time.Duration {
	if value == "" || d.err != nil {
		return def
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		d.err = fmt.Errorf("parse %s %q: %w", field, value, err)
		return def
	}
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

var knownTypes = map[string]bool{
	"greenhouse": true,
	"lever":      true,
	"ashby":      true,
	"gem":        true,
	"workday":    true,
	"adzuna":     true,
	"static":     true,
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when store.backend is \"postgres\"")
		}
	default:
		return fmt.Errorf("store.backend must be \"sqlite\" or \"postgres\", got %q", cfg.Store.Backend)
	}

	switch cfg.Watermarks.Backend {
	case "store":
	case "redis":
		if cfg.Watermarks.RedisURL == "" {
			return fmt.Errorf("watermarks.redis_url is required when watermarks.backend is \"redis\"")
		}
	default:
		return fmt.Errorf("watermarks.backend must be \"store\" or \"redis\", got %q", cfg.Watermarks.Backend)
	}

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seen := make(map[string]bool)
	enabled := 0
	for _, s := range cfg.Sources {
		if !knownTypes[s.Type] {
			return fmt.Errorf("source %q: unsupported type %q", s.Name, s.Type)
		}
		if seen[s.Name] {
			return fmt.Errorf("source %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if err := validateSource(s); err != nil {
			return err
		}
		enabled += len(s.EnabledCompanies())
	}
	if enabled == 0 {
		return fmt.Errorf("at least one company must be enabled")
	}

	for src, rank := range cfg.Priorities {
		if rank < 1 {
			return fmt.Errorf("priorities[%q] must be >= 1, got %d", src, rank)
		}
	}

	if cfg.Filters.AgencyThreshold < 0 || cfg.Filters.AgencyThreshold > 1 {
		return fmt.Errorf("filters.agency_threshold must be between 0 and 1, got %v", cfg.Filters.AgencyThreshold)
	}

	switch cfg.Oracle.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("oracle.provider must be \"openai\" or \"anthropic\", got %q", cfg.Oracle.Provider)
	}
	if cfg.Oracle.MaxRetries < 0 {
		return fmt.Errorf("oracle.max_retries must not be negative")
	}
	if cfg.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive, got %v", cfg.Oracle.Timeout)
	}

	if cfg.Run.MaxItems < 0 {
		return fmt.Errorf("run.max_items must not be negative")
	}
	if cfg.Run.ResumeWindow < 0 || cfg.Run.Budget < 0 {
		return fmt.Errorf("run.resume_window and run.budget must not be negative")
	}

	if cfg.Notification.Type == "slack" {
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, slackWebhookPrefix) {
			return fmt.Errorf("notification.webhook_url must start with %s", slackWebhookPrefix)
		}
	}

	return nil
}

func validateSource(s SourceConfig) error {
	for _, c := range s.EnabledCompanies() {
		if c.Name == "" {
			return fmt.Errorf("source %q: company without a name", s.Name)
		}
		var missing string
		switch s.Type {
		case "greenhouse", "lever", "ashby", "gem":
			if c.BoardToken == "" {
				missing = "board_token"
			}
		case "workday":
			if c.WorkdayURL == "" {
				missing = "workday_url"
			}
		case "adzuna":
			if c.Country == "" {
				missing = "country"
			}
		case "static":
			if c.StartURL == "" {
				missing = "start_url"
			}
		}
		if missing != "" {
			return fmt.Errorf("source %q company %q: %s is required", s.Name, c.Name, missing)
		}
	}
	switch s.Type {
	case "adzuna":
		if s.AppID == "" || s.AppKey == "" {
			return fmt.Errorf("source %q: app_id and app_key are required", s.Name)
		}
	case "static":
		if s.Selectors.Listing == "" || s.Selectors.Title == "" {
			return fmt.Errorf("source %q: selectors.listing and selectors.title are required", s.Name)
		}
	}
	return nil
}
