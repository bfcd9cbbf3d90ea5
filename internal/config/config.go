/**
 * @description
 * This package handles the configuration management for the ledger-service. It uses the
 * Viper library to read configuration from environment variables and an optional .env
 * file, providing a centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	defaultServerPort               = "8080"
	defaultBaseCurrency             = "RUB"
	defaultRateLimitPrefix          = "ledger:rate_limit"
	defaultEventsExchange           = "ledger.events"
	defaultExchangeRateJobSchedule  = "0 */6 * * *"
	defaultRateCacheTTLSeconds      = 300
	defaultTransferRatePerMinute    = 30
	defaultExchangeRateBackfillDays = 7
	maxExchangeRateBackfillDays     = 366
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	EventsExchange             string `mapstructure:"EVENTS_EXCHANGE"`
	JWTSecret                  string `mapstructure:"JWT_SECRET"`
	BaseCurrency               string `mapstructure:"BASE_CURRENCY"`
	CBRDailyURL                string `mapstructure:"CBR_DAILY_URL"`
	ExchangeRateJobSchedule    string `mapstructure:"EXCHANGE_RATE_JOB_SCHEDULE"`
	ExchangeRateFetchOnStart   bool   `mapstructure:"EXCHANGE_RATE_FETCH_ON_START"`
	ExchangeRateBackfillDays   int    `mapstructure:"EXCHANGE_RATE_BACKFILL_DAYS"`
	RateCacheTTLSeconds        int    `mapstructure:"RATE_CACHE_TTL_SECONDS"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	CORSAllowedOrigins         string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// RateCacheTTL is the lifetime of cached rate lookups.
func (c Config) RateCacheTTL() time.Duration {
	return time.Duration(c.RateCacheTTLSeconds) * time.Second
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	origins := make([]string, 0)
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LoadConfig reads configuration from environment variables and from an optional
// .env file in the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("BASE_CURRENCY", defaultBaseCurrency)
	viper.SetDefault("CBR_DAILY_URL", "https://www.cbr.ru/scripts/XML_daily.asp")
	viper.SetDefault("EXCHANGE_RATE_JOB_SCHEDULE", defaultExchangeRateJobSchedule)
	viper.SetDefault("EXCHANGE_RATE_FETCH_ON_START", true)
	viper.SetDefault("EXCHANGE_RATE_BACKFILL_DAYS", defaultExchangeRateBackfillDays)
	viper.SetDefault("RATE_CACHE_TTL_SECONDS", defaultRateCacheTTLSeconds)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", defaultTransferRatePerMinute)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("BASE_CURRENCY")
	_ = viper.BindEnv("CBR_DAILY_URL")
	_ = viper.BindEnv("EXCHANGE_RATE_JOB_SCHEDULE")
	_ = viper.BindEnv("EXCHANGE_RATE_FETCH_ON_START")
	_ = viper.BindEnv("EXCHANGE_RATE_BACKFILL_DAYS")
	_ = viper.BindEnv("RATE_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)

	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	config.EventsExchange = strings.TrimSpace(config.EventsExchange)
	if config.EventsExchange == "" {
		config.EventsExchange = defaultEventsExchange
	}

	config.BaseCurrency = strings.ToUpper(strings.TrimSpace(config.BaseCurrency))
	if len(config.BaseCurrency) != 3 {
		log.Printf("level=warn component=config msg=\"invalid base currency; using default\" value=%q default=%s", config.BaseCurrency, defaultBaseCurrency)
		config.BaseCurrency = defaultBaseCurrency
	}

	config.ExchangeRateJobSchedule = strings.TrimSpace(config.ExchangeRateJobSchedule)
	if _, parseErr := cron.ParseStandard(config.ExchangeRateJobSchedule); parseErr != nil {
		log.Printf("level=warn component=config msg=\"invalid exchange rate job schedule; using default\" value=%q err=%v", config.ExchangeRateJobSchedule, parseErr)
		config.ExchangeRateJobSchedule = defaultExchangeRateJobSchedule
	}

	if config.RateCacheTTLSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive rate cache ttl; using default\" value=%d", config.RateCacheTTLSeconds)
		config.RateCacheTTLSeconds = defaultRateCacheTTLSeconds
	}
	if config.TransferRateLimitPerMinute <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive transfer rate limit; using default\" value=%d", config.TransferRateLimitPerMinute)
		config.TransferRateLimitPerMinute = defaultTransferRatePerMinute
	}
	switch {
	case config.ExchangeRateBackfillDays < 0:
		log.Printf("level=warn component=config msg=\"negative backfill days; disabling backfill\" value=%d", config.ExchangeRateBackfillDays)
		config.ExchangeRateBackfillDays = 0
	case config.ExchangeRateBackfillDays > maxExchangeRateBackfillDays:
		log.Printf("level=warn component=config msg=\"backfill days too large; capping\" value=%d max=%d", config.ExchangeRateBackfillDays, maxExchangeRateBackfillDays)
		config.ExchangeRateBackfillDays = maxExchangeRateBackfillDays
	}

	return
}
