package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Port:               "8460",
		Env:                "test",
		LogLevel:           "info",
		DatabaseURL:        "host=localhost port=5432 user=parley dbname=parley sslmode=disable",
		RedisURL:           "localhost:6379",
		AccessTokenSecret:  "test-access-secret-0123456789abcdef!",
		RefreshTokenSecret: "test-refresh-secret-0123456789abcdef",
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingRequired(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = "" }},
		{"database", func(c *Config) { c.DatabaseURL = "" }},
		{"redis", func(c *Config) { c.RedisURL = "" }},
		{"access secret", func(c *Config) { c.AccessTokenSecret = "" }},
		{"refresh secret", func(c *Config) { c.RefreshTokenSecret = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_SecretsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.RefreshTokenSecret = cfg.AccessTokenSecret
	assert.Error(t, cfg.Validate())
}

func TestValidate_ProductionRequiresStrongSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.AccessTokenSecret = "short"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}
