package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// NATS configuration for the notification dispatcher
	NatsURL string

	// Confirmation policy: when true, non-creator confirmations are recorded
	// as accepted at creation and eligible bets start active. Production
	// deployments leave this off.
	AutoAcceptConfirmations bool

	// Interval between expiry sweeps over active bets with deadlines
	ExpirySweepInterval time.Duration

	// Maximum stake-doubling factor accepted by the doubling protocol
	MaxDoubleFactor int64

	// Environment is "development", "production" or "test"
	Environment string
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		NatsURL:     os.Getenv("NATS_URL"),

		AutoAcceptConfirmations: os.Getenv("AUTO_ACCEPT_CONFIRMATIONS") == "true",
		ExpirySweepInterval:     1 * time.Minute,
		MaxDoubleFactor:         10,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if interval := os.Getenv("EXPIRY_SWEEP_INTERVAL"); interval != "" {
		if parsed, err := time.ParseDuration(interval); err == nil {
			config.ExpirySweepInterval = parsed
		}
	}
	if factor := os.Getenv("MAX_DOUBLE_FACTOR"); factor != "" {
		if parsed, err := strconv.ParseInt(factor, 10, 64); err == nil && parsed > 1 {
			config.MaxDoubleFactor = parsed
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}
	if config.NatsURL == "" {
		config.NatsURL = "nats://localhost:4222"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}
