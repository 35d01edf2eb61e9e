// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// Environments the service knows about.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Queue providers.
const (
	QueueMemory = "memory"
	QueueQStash = "qstash"
	QueuePubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Auth        AuthConfig      `mapstructure:"auth"`
	DB          DBConfig        `mapstructure:"db"`
	Queue       QueueConfig     `mapstructure:"queue"`
	Jobs        JobsConfig      `mapstructure:"jobs"`
	Plans       PlansConfig     `mapstructure:"plans"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Suggest     SuggestConfig   `mapstructure:"suggest"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	CORS        CORSConfig      `mapstructure:"cors"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// AuthConfig configures Clerk session verification and webhook signatures.
type AuthConfig struct {
	ClerkIssuer   string `mapstructure:"clerk_issuer"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// DevUserID authenticates every request as this user outside production.
	DevUserID string `mapstructure:"dev_user_id"`
	TrialDays int    `mapstructure:"trial_days"`
}

// DBConfig controls access to Postgres. An empty DSN selects in-memory stores.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// QueueConfig selects and configures the job queue publisher.
type QueueConfig struct {
	Provider           string       `mapstructure:"provider"`
	CallbackURL        string       `mapstructure:"callback_url"`
	FailureCallbackURL string       `mapstructure:"failure_callback_url"`
	TrialCheckURL      string       `mapstructure:"trial_check_url"`
	Retries            int          `mapstructure:"retries"`
	QStash             QStashConfig `mapstructure:"qstash"`
	PubSub             PubSubConfig `mapstructure:"pubsub"`
}

// QStashConfig holds Upstash QStash credentials.
type QStashConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// JobsConfig tunes per-platform job behavior.
type JobsConfig struct {
	TimeoutMinutes map[string]int    `mapstructure:"timeout_minutes"`
	Runners        map[string]string `mapstructure:"runners"`
}

// PlansConfig gates the development-only plan bypass.
type PlansConfig struct {
	BypassEnabled       bool `mapstructure:"bypass_enabled"`
	BypassHeaderEnabled bool `mapstructure:"bypass_header_enabled"`
}

// RedisConfig points at the suggestion cache. An empty Addr selects the in-memory cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SuggestConfig configures the keyword suggestion generator and its cache.
type SuggestConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	Model           string `mapstructure:"model"`
	MaxTokens       int64  `mapstructure:"max_tokens"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	CacheMaxEntries int    `mapstructure:"cache_max_entries"`
}

// RateLimitConfig bounds authenticated API traffic per user.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TelemetryConfig names the service for tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CREATORS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("auth.clerk_issuer", "")
	v.SetDefault("auth.webhook_secret", "")
	v.SetDefault("auth.dev_user_id", "")
	v.SetDefault("auth.trial_days", 7)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("queue.provider", QueueMemory)
	v.SetDefault("queue.callback_url", "")
	v.SetDefault("queue.failure_callback_url", "")
	v.SetDefault("queue.trial_check_url", "")
	v.SetDefault("queue.retries", 3)
	v.SetDefault("queue.qstash.base_url", "https://qstash.upstash.io")
	v.SetDefault("queue.qstash.token", "")
	v.SetDefault("queue.pubsub.project_id", "")
	v.SetDefault("queue.pubsub.topic_name", "")
	v.SetDefault("jobs.timeout_minutes", map[string]int{
		string(scraping.PlatformInstagram):  60,
		string(scraping.PlatformTikTok):     60,
		string(scraping.PlatformYouTube):    30,
		string(scraping.PlatformGoogleSERP): 30,
	})
	v.SetDefault("jobs.runners", map[string]string{})
	v.SetDefault("plans.bypass_enabled", false)
	v.SetDefault("plans.bypass_header_enabled", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("suggest.anthropic_api_key", "")
	v.SetDefault("suggest.model", "claude-3-5-haiku-latest")
	v.SetDefault("suggest.max_tokens", 512)
	v.SetDefault("suggest.cache_ttl_seconds", 300)
	v.SetDefault("suggest.cache_max_entries", 1000)
	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("telemetry.service_name", "creator-discovery")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("environment must be one of development, test, production")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	switch c.Queue.Provider {
	case QueueMemory:
	case QueueQStash:
		if c.Queue.QStash.Token == "" {
			return fmt.Errorf("queue.qstash.token must be set when queue.provider is qstash")
		}
		if c.Queue.CallbackURL == "" {
			return fmt.Errorf("queue.callback_url must be set when queue.provider is qstash")
		}
	case QueuePubSub:
		if c.Queue.PubSub.ProjectID == "" || c.Queue.PubSub.TopicName == "" {
			return fmt.Errorf("queue.pubsub.project_id and queue.pubsub.topic_name must be set when queue.provider is pubsub")
		}
	default:
		return fmt.Errorf("queue.provider must be one of memory, qstash, pubsub")
	}
	if c.Auth.TrialDays < 0 {
		return fmt.Errorf("auth.trial_days must be >= 0")
	}
	if c.Queue.Retries < 0 {
		return fmt.Errorf("queue.retries must be >= 0")
	}
	for platform, minutes := range c.Jobs.TimeoutMinutes {
		if _, err := scraping.ParsePlatform(platform); err != nil {
			return fmt.Errorf("jobs.timeout_minutes: %w", err)
		}
		if minutes <= 0 {
			return fmt.Errorf("jobs.timeout_minutes.%s must be > 0", platform)
		}
	}
	if c.Suggest.CacheTTLSeconds <= 0 {
		return fmt.Errorf("suggest.cache_ttl_seconds must be > 0")
	}
	if c.Suggest.CacheMaxEntries <= 0 {
		return fmt.Errorf("suggest.cache_max_entries must be > 0")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be >= 0")
	}
	if c.IsProduction() {
		if c.Auth.ClerkIssuer == "" {
			return fmt.Errorf("auth.clerk_issuer must be set in production")
		}
		if c.Auth.WebhookSecret == "" {
			return fmt.Errorf("auth.webhook_secret must be set in production")
		}
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set in production")
		}
		if c.Auth.DevUserID != "" {
			return fmt.Errorf("auth.dev_user_id is not allowed in production")
		}
		if c.Plans.BypassEnabled || c.Plans.BypassHeaderEnabled {
			return fmt.Errorf("plans bypass is not allowed in production")
		}
	}
	return nil
}

// IsProduction reports whether the service runs with production guarantees.
func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// TimeoutWindows merges configured per-platform timeouts over the defaults.
func (c Config) TimeoutWindows() map[scraping.Platform]time.Duration {
	windows := scraping.DefaultTimeoutWindows()
	for raw, minutes := range c.Jobs.TimeoutMinutes {
		p, err := scraping.ParsePlatform(raw)
		if err != nil || minutes <= 0 {
			continue
		}
		windows[p] = time.Duration(minutes) * time.Minute
	}
	return windows
}

// TrialLength is the free-trial window granted to new users.
func (c Config) TrialLength() time.Duration {
	return time.Duration(c.Auth.TrialDays) * 24 * time.Hour
}

// RequestTimeout is the per-request handler deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// SuggestCacheTTL is how long a generated suggestion list stays cached.
func (c Config) SuggestCacheTTL() time.Duration {
	return time.Duration(c.Suggest.CacheTTLSeconds) * time.Second
}
