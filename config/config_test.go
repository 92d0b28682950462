package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Telegram.Token = "123456:test-token"
	cfg.Telegram.AdminID = 42
	cfg.Telegram.ModChannelID = -1001234567890
	cfg.Kraken.APIKey = "kraken-key"
	cfg.Kraken.APISecret = "kraken-secret"
	cfg.AI.APIKey = "sk-test"
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRequiresEveryCredential(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"telegram token", func(c *Config) { c.Telegram.Token = "" }, "telegram token"},
		{"admin id", func(c *Config) { c.Telegram.AdminID = 0 }, "admin chat id"},
		{"mod channel id", func(c *Config) { c.Telegram.ModChannelID = 0 }, "moderation channel"},
		{"kraken key", func(c *Config) { c.Kraken.APIKey = "" }, "kraken credentials"},
		{"kraken secret", func(c *Config) { c.Kraken.APISecret = "" }, "kraken credentials"},
		{"ai key", func(c *Config) { c.AI.APIKey = "" }, "AI completion API key"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
