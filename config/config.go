// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Rail is one payment destination shown in the buy flow.
type Rail struct {
	Name    string
	Address string
	Network string
	Emoji   string
}

type Config struct {
	Telegram struct {
		Token        string
		AdminID      int64
		ModChannelID int64
	}
	DB struct {
		Host         string
		Port         string
		User         string
		Password     string
		DBName       string
		SSLMode      string
		MaxOpenConns int
		MaxIdleConns int
		ConnLifetime time.Duration
	}
	Stripe struct {
		SecretKey string
		PublicKey string
	}
	AI struct {
		APIKey   string
		Model    string
		Annotate bool
	}
	Kraken struct {
		APIKey    string
		APISecret string
	}
	Rails  map[string]Rail
	Prices struct {
		Starter  float64
		Pro      float64
		Bot1Year float64
		Bot2Year float64
	}
	USDToUAH float64
	Signal   struct {
		MinDelay      time.Duration
		MaxDelay      time.Duration
		ResetHourUTC  int
		Symbols       []string
		ChartDir      string
		DirectoryPath string
	}
	Server struct {
		Port string
	}
	ShutdownTimeout time.Duration
}

// defaultSymbols is the candidate list walked on every delivery. BTC, ETH
// and SOL stay at the front.
var defaultSymbols = []string{
	"BTC/USDT", "ETH/USDT", "SOL/USDT", "ADA/USDT", "BNB/USDT",
	"XRP/USDT", "DOGE/USDT", "MATIC/USDT", "AVAX/USDT", "LTC/USDT",
	"ATOM/USDT", "TRX/USDT", "NEAR/USDT", "DOT/USDT", "FTM/USDT",
}

// Load loads the configuration
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("$HOME/.crypto-indicator-bot")

	v.SetDefault("ShutdownTimeout", 10*time.Second)
	v.SetDefault("AI.Model", "gpt-4")
	v.SetDefault("AI.Annotate", false)
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 10)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)
	v.SetDefault("Prices.Starter", 30.0)
	v.SetDefault("Prices.Pro", 50.0)
	v.SetDefault("Prices.Bot1Year", 270.0)
	v.SetDefault("Prices.Bot2Year", 360.0)
	v.SetDefault("USDToUAH", 40.0)
	v.SetDefault("Signal.MinDelay", 5*time.Minute)
	v.SetDefault("Signal.MaxDelay", 60*time.Minute)
	v.SetDefault("Signal.ResetHourUTC", 8)
	v.SetDefault("Signal.Symbols", defaultSymbols)
	v.SetDefault("Signal.ChartDir", ".")
	v.SetDefault("Signal.DirectoryPath", "users_data.json")

	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		// No config file: assemble everything from environment variables.
		cfg := &Config{}

		cfg.Telegram.Token = os.Getenv("TG_BOT_TOKEN")
		cfg.Telegram.AdminID = getEnvInt64("ADMIN_ID", 0)
		cfg.Telegram.ModChannelID = getEnvInt64("MOD_CHANNEL_ID", 0)
		cfg.DB.Host = getEnvOr("DB_HOST", "localhost")
		cfg.DB.Port = getEnvOr("DB_PORT", "5432")
		cfg.DB.User = getEnvOr("DB_USER", "postgres")
		cfg.DB.Password = getEnvOr("DB_PASSWORD", "postgres")
		cfg.DB.DBName = getEnvOr("DB_NAME", "crypto_indicator_bot")
		cfg.DB.SSLMode = getEnvOr("DB_SSL_MODE", "disable")
		cfg.DB.MaxOpenConns = 20
		cfg.DB.MaxIdleConns = 10
		cfg.DB.ConnLifetime = 5 * time.Minute
		cfg.Stripe.SecretKey = os.Getenv("STRIPE_API_KEY")
		cfg.Stripe.PublicKey = os.Getenv("STRIPE_PUBLIC_KEY")
		cfg.AI.APIKey = os.Getenv("AI_API_KEY")
		cfg.AI.Model = getEnvOr("AI_MODEL", "gpt-4")
		cfg.AI.Annotate = os.Getenv("AI_ANNOTATE") == "true"
		cfg.Kraken.APIKey = os.Getenv("KRAKEN_API_KEY")
		cfg.Kraken.APISecret = os.Getenv("KRAKEN_API_SECRET")
		cfg.Prices.Starter = getEnvFloat("PRICE_STARTER", 30)
		cfg.Prices.Pro = getEnvFloat("PRICE_PRO", 50)
		cfg.Prices.Bot1Year = getEnvFloat("PRICE_BOT1_YEAR", 270)
		cfg.Prices.Bot2Year = getEnvFloat("PRICE_BOT2_YEAR", 360)
		cfg.USDToUAH = getEnvFloat("USD_TO_UAH_RATE", 40.0)
		cfg.Signal.MinDelay = 5 * time.Minute
		cfg.Signal.MaxDelay = 60 * time.Minute
		cfg.Signal.ResetHourUTC = 8
		cfg.Signal.Symbols = defaultSymbols
		cfg.Signal.ChartDir = getEnvOr("CHART_DIR", ".")
		cfg.Signal.DirectoryPath = getEnvOr("USERS_JSON", "users_data.json")
		cfg.Server.Port = getEnvOr("SERVER_PORT", "8080")
		cfg.ShutdownTimeout = 10 * time.Second
		cfg.Rails = railsFromEnv()

		return cfg, nil
	}

	// Process any ${ENV_VAR} syntax in the config values.
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			if envValue := os.Getenv(envVar); envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if len(cfg.Rails) == 0 {
		cfg.Rails = railsFromEnv()
	}
	if len(cfg.Signal.Symbols) == 0 {
		cfg.Signal.Symbols = defaultSymbols
	}

	return &cfg, nil
}

// Validate reports the first missing required credential. Every external
// credential must be present at startup, even when the feature it feeds is
// optional at runtime.
func (c *Config) Validate() error {
	switch {
	case c.Telegram.Token == "":
		return errors.New("telegram token is not configured")
	case c.Telegram.AdminID == 0:
		return errors.New("admin chat id is not configured")
	case c.Telegram.ModChannelID == 0:
		return errors.New("moderation channel id is not configured")
	case c.Kraken.APIKey == "" || c.Kraken.APISecret == "":
		return errors.New("kraken credentials are not configured")
	case c.AI.APIKey == "":
		return errors.New("AI completion API key is not configured")
	}
	return nil
}

// railsFromEnv builds the payment rail table. Crypto addresses come from the
// environment; the Monobank destinations are fixed product details.
func railsFromEnv() map[string]Rail {
	return map[string]Rail{
		"usdt": {
			Name:    "USDT (TRC20)",
			Address: os.Getenv("USDT_ADDRESS"),
			Network: "Tron",
			Emoji:   "💵",
		},
		"ton": {
			Name:    "TON",
			Address: os.Getenv("TON_ADDRESS"),
			Network: "TON Blockchain",
			Emoji:   "🔷",
		},
		"btc": {
			Name:    "Bitcoin",
			Address: os.Getenv("BTC_ADDRESS"),
			Network: "Bitcoin",
			Emoji:   "₿",
		},
		"eth": {
			Name:    "Ethereum",
			Address: os.Getenv("ETH_ADDRESS"),
			Network: "Ethereum",
			Emoji:   "⟠",
		},
		"monobank": {
			Name:    "Monobank (UAH)",
			Address: getEnvOr("MONOBANK_JAR_URL", "https://send.monobank.ua/jar/7tjdex7qHm"),
			Network: "Monobank",
			Emoji:   "🏦",
		},
		"monobank_card": {
			Name:    "Monobank картка",
			Address: getEnvOr("MONOBANK_CARD", "4441 1111 3666 0614"),
			Network: "Monobank",
			Emoji:   "💳",
		},
	}
}

// Helper function to get environment variable with default value
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
