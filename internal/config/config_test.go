package config

import (
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
)

func TestLoadAppliesDefaults(testContext *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		testContext.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		testContext.Fatalf("unexpected address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.DatabasePath != defaultDatabasePath {
		testContext.Fatalf("unexpected database settings %q %q", cfg.DatabaseDriver, cfg.DatabasePath)
	}
	if cfg.TokenTTL != 30*time.Minute {
		testContext.Fatalf("unexpected token ttl %v", cfg.TokenTTL)
	}
	if cfg.DailyCap != 200 || cfg.MaxRetries != 5 || cfg.FanoutConcurrency != 4 {
		testContext.Fatalf("unexpected engine settings %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		testContext.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadReadsEnvironment(testContext *testing.T) {
	testContext.Setenv("BUGBOARD_AUTH_SIGNING_SECRET", "from-env")
	testContext.Setenv("BUGBOARD_REPUTATION_DOWNVOTE_THRESHOLD", "10")
	testContext.Setenv("BUGBOARD_HTTP_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(NewViper())
	if err != nil {
		testContext.Fatalf("load failed: %v", err)
	}
	if cfg.AuthSigningSecret != "from-env" {
		testContext.Fatalf("expected secret from env, got %q", cfg.AuthSigningSecret)
	}
	if cfg.DownvoteThreshold != 10 {
		testContext.Fatalf("expected downvote threshold 10, got %d", cfg.DownvoteThreshold)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		testContext.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}

	policy := cfg.Policy()
	if policy.Threshold(reputation.PrivilegeDownvote) != 10 {
		testContext.Fatalf("policy did not pick up downvote threshold")
	}
	if policy.Threshold(reputation.PrivilegeComment) != 50 {
		testContext.Fatalf("policy lost default comment threshold")
	}
}

func TestLoadValidates(testContext *testing.T) {
	testCases := []struct {
		name  string
		apply func(map[string]interface{})
	}{
		{name: "missing secret", apply: func(values map[string]interface{}) { delete(values, "auth.signing_secret") }},
		{name: "unknown driver", apply: func(values map[string]interface{}) { values["database.driver"] = "mysql" }},
		{name: "postgres without dsn", apply: func(values map[string]interface{}) { values["database.driver"] = "postgres" }},
		{name: "zero cap", apply: func(values map[string]interface{}) { values["reputation.daily_cap"] = 0 }},
		{name: "zero retries", apply: func(values map[string]interface{}) { values["voting.max_retries"] = 0 }},
	}

	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(t *testing.T) {
			values := map[string]interface{}{"auth.signing_secret": "secret"}
			testCase.apply(values)
			configViper := NewViper()
			for key, value := range values {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
