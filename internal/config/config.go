// Package config loads leadgen configuration from config.yaml and
// LEADGEN_-prefixed environment variables, and initializes logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Leadgen    LeadgenConfig    `yaml:"leadgen" mapstructure:"leadgen"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GoogleConfig holds Google Places and Geocoding settings.
type GoogleConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	PlacesBaseURL  string `yaml:"places_base_url" mapstructure:"places_base_url"`
	GeocodeBaseURL string `yaml:"geocode_base_url" mapstructure:"geocode_base_url"`
	GeocodeRegion  string `yaml:"geocode_region" mapstructure:"geocode_region"`
}

// AnthropicConfig holds settings for the enrichment model.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds settings for the scoring model.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// Mode is "http" (verify against the identity provider) or "static".
	Mode         string            `yaml:"mode" mapstructure:"mode"`
	UserInfoURL  string            `yaml:"user_info_url" mapstructure:"user_info_url"`
	APIKey       string            `yaml:"api_key" mapstructure:"api_key"`
	CacheTTLSecs int               `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	StaticTokens map[string]string `yaml:"static_tokens" mapstructure:"static_tokens"`
}

// RedisConfig configures the shared cache. An empty URL selects the
// in-process cache.
type RedisConfig struct {
	URL             string `yaml:"url" mapstructure:"url"`
	GeocodeTTLHours int    `yaml:"geocode_ttl_hours" mapstructure:"geocode_ttl_hours"`
}

// LeadgenConfig tunes the generation pipeline.
type LeadgenConfig struct {
	DefaultLimit     int     `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit         int     `yaml:"max_limit" mapstructure:"max_limit"`
	OverfetchFactor  int     `yaml:"overfetch_factor" mapstructure:"overfetch_factor"`
	MaxPages         int     `yaml:"max_pages" mapstructure:"max_pages"`
	PageTokenDelayMs int     `yaml:"page_token_delay_ms" mapstructure:"page_token_delay_ms"`
	DetailDelayMs    int     `yaml:"detail_delay_ms" mapstructure:"detail_delay_ms"`
	ServiceDelayMs   int     `yaml:"service_delay_ms" mapstructure:"service_delay_ms"`
	SearchRadiusM    float64 `yaml:"search_radius_m" mapstructure:"search_radius_m"`
	CityRadiusM      float64 `yaml:"city_radius_m" mapstructure:"city_radius_m"`
	PlacesRateLimit  float64 `yaml:"places_rate_limit" mapstructure:"places_rate_limit"`
	KeywordsFile     string  `yaml:"keywords_file" mapstructure:"keywords_file"`
}

// PageTokenDelay is the wait before a continuation token is used.
func (c LeadgenConfig) PageTokenDelay() time.Duration {
	return time.Duration(c.PageTokenDelayMs) * time.Millisecond
}

// DetailDelay is the pause between consecutive detail fetches.
func (c LeadgenConfig) DetailDelay() time.Duration {
	return time.Duration(c.DetailDelayMs) * time.Millisecond
}

// ServiceDelay is the pause before each inference call.
func (c LeadgenConfig) ServiceDelay() time.Duration {
	return time.Duration(c.ServiceDelayMs) * time.Millisecond
}

// RetryConfig configures provider retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the inference-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// PricingConfig holds per-provider pricing rates in USD.
type PricingConfig struct {
	Google     GooglePricing     `yaml:"google" mapstructure:"google"`
	Anthropic  ModelPricing      `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityPricing `yaml:"perplexity" mapstructure:"perplexity"`
}

// GooglePricing holds per-request Places pricing.
type GooglePricing struct {
	TextSearch float64 `yaml:"text_search" mapstructure:"text_search"`
	Details    float64 `yaml:"details" mapstructure:"details"`
	Geocode    float64 `yaml:"geocode" mapstructure:"geocode"`
}

// ModelPricing holds token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins      []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	KeepAliveSecs       int      `yaml:"keep_alive_secs" mapstructure:"keep_alive_secs"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets have empty defaults so AutomaticEnv can fill them on Unmarshal.
	for _, key := range []string{
		"store.database_url", "google.key", "anthropic.key", "perplexity.key",
		"auth.user_info_url", "auth.api_key", "redis.url", "leadgen.keywords_file",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("google.places_base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.geocode_base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("google.geocode_region", "in")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("auth.mode", "http")
	v.SetDefault("auth.cache_ttl_secs", 300)
	v.SetDefault("redis.geocode_ttl_hours", 24*30)
	v.SetDefault("leadgen.default_limit", 20)
	v.SetDefault("leadgen.max_limit", 60)
	v.SetDefault("leadgen.overfetch_factor", 4)
	v.SetDefault("leadgen.max_pages", 3)
	v.SetDefault("leadgen.page_token_delay_ms", 2000)
	v.SetDefault("leadgen.detail_delay_ms", 100)
	v.SetDefault("leadgen.service_delay_ms", 100)
	v.SetDefault("leadgen.search_radius_m", 5000)
	v.SetDefault("leadgen.city_radius_m", 15000)
	v.SetDefault("leadgen.places_rate_limit", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 8000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("pricing.google.text_search", 0.032)
	v.SetDefault("pricing.google.details", 0.017)
	v.SetDefault("pricing.google.geocode", 0.005)
	v.SetDefault("pricing.anthropic.input", 1.0)
	v.SetDefault("pricing.anthropic.output", 5.0)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.keep_alive_secs", 15)
	v.SetDefault("server.shutdown_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts. Provider
// keys are checked per run so the API can report them to the caller.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		switch c.Auth.Mode {
		case "http":
			if c.Auth.UserInfoURL == "" {
				errs = append(errs, "auth.user_info_url is required")
			}
		case "static":
			if len(c.Auth.StaticTokens) == 0 {
				errs = append(errs, "auth.static_tokens is required")
			}
		default:
			errs = append(errs, fmt.Sprintf("auth.mode %q is not supported", c.Auth.Mode))
		}
	case "generate", "manual", "store":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if c.Leadgen.DefaultLimit <= 0 || c.Leadgen.MaxLimit <= 0 {
		errs = append(errs, "leadgen.default_limit and leadgen.max_limit must be positive")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
