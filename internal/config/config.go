/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized way to manage application settings. Components
 * receive their settings at construction; nothing reads the environment at
 * call time.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payout-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix   string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RazorpayAPIBaseURL     string `mapstructure:"RAZORPAY_API_BASE_URL"`
	RazorpayKeyID          string `mapstructure:"RZP_USERNAME"`
	RazorpayKeySecret      string `mapstructure:"RZP_PASSWORD"`
	ExchangeRateAPIBaseURL string `mapstructure:"EXCHANGE_RATE_API_BASE_URL"`
	ExchangeRateAPIKey     string `mapstructure:"EXCHANGE_API"`
	DebitAccountNumber     string `mapstructure:"DEBIT_ACCOUNT_NUMBER"`

	PayoutRateLimitPerMinute int `mapstructure:"PAYOUT_RATE_LIMIT_PER_MINUTE"`

	RegistrationReconcileSchedule string `mapstructure:"REGISTRATION_RECONCILE_SCHEDULE"`
	RegistrationStaleAfterMinutes int    `mapstructure:"REGISTRATION_STALE_AFTER_MINUTES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "3000")
	viper.SetDefault("RAZORPAY_API_BASE_URL", "https://api.razorpay.com")
	viper.SetDefault("EXCHANGE_RATE_API_BASE_URL", "https://v6.exchangerate-api.com")
	viper.SetDefault("DEBIT_ACCOUNT_NUMBER", "2323230000118276")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payctf:rate_limit")
	viper.SetDefault("PAYOUT_RATE_LIMIT_PER_MINUTE", 0) // 0 disables limiting
	viper.SetDefault("REGISTRATION_RECONCILE_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("REGISTRATION_STALE_AFTER_MINUTES", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RAZORPAY_API_BASE_URL")
	_ = viper.BindEnv("RZP_USERNAME")
	_ = viper.BindEnv("RZP_PASSWORD")
	_ = viper.BindEnv("EXCHANGE_RATE_API_BASE_URL")
	_ = viper.BindEnv("EXCHANGE_API")
	_ = viper.BindEnv("DEBIT_ACCOUNT_NUMBER")
	_ = viper.BindEnv("PAYOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("REGISTRATION_RECONCILE_SCHEDULE")
	_ = viper.BindEnv("REGISTRATION_STALE_AFTER_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payctf:rate_limit"
	}

	if config.PayoutRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative payout rate limit configured; disabling\" limit=%d", config.PayoutRateLimitPerMinute)
		config.PayoutRateLimitPerMinute = 0
	}
	if config.RegistrationStaleAfterMinutes <= 0 {
		config.RegistrationStaleAfterMinutes = 30
	}

	return
}
