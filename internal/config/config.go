// Package config loads the application configuration from a YAML file and
// SPYGLASS_* environment overrides. Every component receives its settings
// explicitly from here; there is no ambient state.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/spyglasshq/spyglass/internal/extract"
	"github.com/spyglasshq/spyglass/internal/harvest"
)

// FetchConfig tunes the HTTP fetch layer.
type FetchConfig struct {
	TimeoutSeconds    int      `mapstructure:"timeout_seconds"`
	MaxRedirects      int      `mapstructure:"max_redirects"`
	UseCookieJar      bool     `mapstructure:"use_cookie_jar"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	Jitter            float64  `mapstructure:"jitter"`
	Fingerprint       string   `mapstructure:"fingerprint"`
	RespectRobots     bool     `mapstructure:"respect_robots"`
	RobotsAgent       string   `mapstructure:"robots_agent"`
	UserAgents        []string `mapstructure:"user_agents"`
	Proxies           []string `mapstructure:"proxies"`
	ProxyFile         string   `mapstructure:"proxy_file"`
}

// Timeout returns the fetch timeout as a duration.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SummaryConfig configures the text-generation collaborator.
type SummaryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AuditConfig selects the fetch audit backend.
type AuditConfig struct {
	// Backend is one of "none", "sqlite", "postgres", "json".
	Backend string `mapstructure:"backend"`
	// DSN is the SQLite path or Postgres connection string.
	DSN string `mapstructure:"dsn"`
	// Path is the NDJSON file location for the json backend.
	Path string `mapstructure:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AggregateConfig tunes price aggregation.
type AggregateConfig struct {
	IQRMultiplier float64 `mapstructure:"iqr_multiplier"`
}

// Config is the full application configuration.
type Config struct {
	Source      extract.Config  `mapstructure:"source"`
	Marketplace harvest.Config  `mapstructure:"marketplace"`
	Fetch       FetchConfig     `mapstructure:"fetch"`
	Aggregate   AggregateConfig `mapstructure:"aggregate"`
	Summary     SummaryConfig   `mapstructure:"summary"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
}

// Load reads configuration from path (optional; "spyglass.yaml" in the
// working directory is tried otherwise) with environment overrides such
// as SPYGLASS_SUMMARY_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SPYGLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("spyglass")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config file is fine; defaults apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Marketplace.SearchURL == "" {
		return nil, fmt.Errorf("marketplace.search_url is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.currency", "PLN")

	v.SetDefault("marketplace.search_url", "https://www.ceneo.pl/;szukaj-{query}")
	v.SetDefault("marketplace.max_pages", 3)
	v.SetDefault("marketplace.max_listings", 50)
	v.SetDefault("marketplace.concurrency", 3)
	v.SetDefault("marketplace.listing_selector", ".cat-prod-row")
	v.SetDefault("marketplace.price_selector", ".price")
	v.SetDefault("marketplace.link_selector", "a.go-to-product")
	v.SetDefault("marketplace.currency", "PLN")

	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.use_cookie_jar", true)
	v.SetDefault("fetch.requests_per_second", 1.0)
	v.SetDefault("fetch.jitter", 0.3)
	v.SetDefault("fetch.fingerprint", "chrome")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.robots_agent", "spyglass")

	v.SetDefault("aggregate.iqr_multiplier", 1.5)

	v.SetDefault("summary.enabled", true)
	v.SetDefault("summary.base_url", "https://api.openai.com/v1")
	v.SetDefault("summary.model", "gpt-4o-mini")
	v.SetDefault("summary.timeout_seconds", 30)
	// Registered so SPYGLASS_SUMMARY_API_KEY is picked up by Unmarshal.
	v.SetDefault("summary.api_key", "")

	v.SetDefault("audit.backend", "none")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9190)
}
