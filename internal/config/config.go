package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "BUGBOARD"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDriver     = "sqlite"
	defaultDatabasePath       = "bugboard.db"
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
	defaultAuthIssuer         = "bugboard-auth"
	defaultAuthAudience       = "bugboard-api"
	defaultTokenTTLMinutes    = 30
	defaultDailyCap           = 200
	defaultUpvoteThreshold    = 15
	defaultDownvoteThreshold  = 125
	defaultMaxRetries         = 5
	defaultFanoutConcurrency  = 4
	defaultCORSAllowedOrigins = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	CORSAllowedOrigins []string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	LogLevel           string
	LogFormat          string
	AuthSigningSecret  string
	AuthIssuer         string
	AuthAudience       string
	TokenTTL           time.Duration
	DailyCap           int
	UpvoteThreshold    int
	DownvoteThreshold  int
	MaxRetries         int
	FanoutConcurrency  int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.cors_allowed_origins", defaultCORSAllowedOrigins)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("reputation.daily_cap", defaultDailyCap)
	configViper.SetDefault("reputation.upvote_threshold", defaultUpvoteThreshold)
	configViper.SetDefault("reputation.downvote_threshold", defaultDownvoteThreshold)
	configViper.SetDefault("voting.max_retries", defaultMaxRetries)
	configViper.SetDefault("notifications.fanout_concurrency", defaultFanoutConcurrency)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		CORSAllowedOrigins: splitList(configViper.GetString("http.cors_allowed_origins")),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthIssuer:         configViper.GetString("auth.issuer"),
		AuthAudience:       configViper.GetString("auth.audience"),
		TokenTTL:           time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		DailyCap:           configViper.GetInt("reputation.daily_cap"),
		UpvoteThreshold:    configViper.GetInt("reputation.upvote_threshold"),
		DownvoteThreshold:  configViper.GetInt("reputation.downvote_threshold"),
		MaxRetries:         configViper.GetInt("voting.max_retries"),
		FanoutConcurrency:  configViper.GetInt("notifications.fanout_concurrency"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// Policy builds the reputation policy from the configured cap and thresholds.
func (c AppConfig) Policy() reputation.Policy {
	policy := reputation.DefaultPolicy()
	policy.DailyCap = c.DailyCap
	return policy.
		WithThreshold(reputation.PrivilegeUpvote, c.UpvoteThreshold).
		WithThreshold(reputation.PrivilegeDownvote, c.DownvoteThreshold)
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.DailyCap <= 0 {
		return fmt.Errorf("reputation.daily_cap must be positive")
	}
	if c.UpvoteThreshold < 0 || c.DownvoteThreshold < 0 {
		return fmt.Errorf("reputation thresholds must not be negative")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("voting.max_retries must be positive")
	}
	if c.FanoutConcurrency <= 0 {
		return fmt.Errorf("notifications.fanout_concurrency must be positive")
	}
	return nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
