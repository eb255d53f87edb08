// Package config loads and validates runtime settings at startup.
// Fail-fast: a missing required value or an out-of-range setting stops the
// process before any connection is opened.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the search service. Every field
// is read from the upper-cased environment variable of its mapstructure key,
// or from the same key in an optional YAML file.
type Config struct {
	RedisURL    string `mapstructure:"redis_url" validate:"required"`
	DatabaseURL string `mapstructure:"database_url"` // empty disables the audit ledger

	APIPort    int    `mapstructure:"api_port" validate:"gt=0,lt=65536"`
	HealthPort int    `mapstructure:"health_port" validate:"gt=0,lt=65536"`
	GRPCPort   int    `mapstructure:"grpc_port" validate:"gt=0,lt=65536"`
	LogLevel   string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	GitHubToken            string `mapstructure:"github_token"`
	GitHubAPIURL           string `mapstructure:"github_api_url" validate:"required,url"`
	MaintainedWindowMonths int    `mapstructure:"maintained_window_months" validate:"gte=1,lte=120"`

	TavilyAPIKey      string `mapstructure:"tavily_api_key"` // empty disables enrichment
	TavilyAPIURL      string `mapstructure:"tavily_api_url" validate:"required,url"`
	EnrichMaxResults  int    `mapstructure:"enrich_max_results" validate:"gte=1,lte=20"`
	EnrichConcurrency int    `mapstructure:"enrich_concurrency" validate:"gte=1,lte=32"`

	HTTPTimeout       time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	JobTTL            time.Duration `mapstructure:"job_ttl" validate:"gte=1s"`
	TerminalStatusTTL time.Duration `mapstructure:"terminal_status_ttl" validate:"gte=1s"`
	ResultTTL         time.Duration `mapstructure:"result_ttl" validate:"gte=1s"`
	AwaitTimeout      time.Duration `mapstructure:"await_timeout" validate:"gt=0"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout" validate:"gte=1s"`
	WorkerBackoff     time.Duration `mapstructure:"worker_backoff" validate:"gt=0"`

	AuditRetention time.Duration `mapstructure:"audit_retention" validate:"gte=1m"`
	PruneSchedule  string        `mapstructure:"prune_schedule" validate:"required"`
	HealthSchedule string        `mapstructure:"health_schedule" validate:"required"`
}

// AuditEnabled reports whether a Postgres ledger is configured.
func (c *Config) AuditEnabled() bool { return c.DatabaseURL != "" }

// EnrichEnabled reports whether description enrichment is configured.
func (c *Config) EnrichEnabled() bool { return c.TavilyAPIKey != "" }

var defaults = map[string]any{
	"redis_url":                "",
	"database_url":             "",
	"api_port":                 8090,
	"health_port":              8091,
	"grpc_port":                9091,
	"log_level":                "info",
	"github_token":             "",
	"github_api_url":           "https://api.github.com",
	"maintained_window_months": 12,
	"tavily_api_key":           "",
	"tavily_api_url":           "https://api.tavily.com",
	"enrich_max_results":       3,
	"enrich_concurrency":       4,
	"http_timeout":             "15s",
	"job_ttl":                  "10m",
	"terminal_status_ttl":      "2m",
	"result_ttl":               "5m",
	"await_timeout":            "45s",
	"poll_timeout":             "5s",
	"worker_backoff":           "1s",
	"audit_retention":          "24h",
	"prune_schedule":           "@every 1h",
	"health_schedule":          "@every 15s",
}

var validate = validator.New()

// Load reads configuration from the environment only.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path (when non-empty) and the
// environment, which takes precedence, and returns a validated Config.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cron schedule syntax.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				return fmt.Errorf("%s is required", envName(fe.StructField()))
			}
			return fmt.Errorf("%s is invalid (rule %q, got %v)", envName(fe.StructField()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	for name, spec := range map[string]string{
		"PRUNE_SCHEDULE":  c.PruneSchedule,
		"HEALTH_SCHEDULE": c.HealthSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s must be a cron spec, got %q: %w", name, spec, err)
		}
	}
	return nil
}

// envName maps a struct field to the environment variable that sets it.
func envName(field string) string {
	for key := range defaults {
		if strings.ReplaceAll(key, "_", "") == strings.ToLower(field) {
			return strings.ToUpper(key)
		}
	}
	return field
}
