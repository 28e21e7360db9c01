// Package config provides configuration management for the signal-relay
// subsystem. Values are loaded from environment variables with sensible
// defaults and validated once at startup; configuration is never mutated
// at runtime.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Signing:
//   - PRODUCER_ID: Producer identity carried on the wire (default: signal-producer)
//   - SIGNING_SECRET: HMAC signing secret (required, minimum 16 bytes)
//   - FRESHNESS_TOLERANCE: Max accepted timestamp age (default: 5m)
//
// Replay window:
//   - REPLAY_TTL: Replay record TTL; must outlive the retry budget (default: 600s)
//   - REPLAY_STORE: Store backend, "redis" or "memory" (default: redis)
//
// Redis:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Retry policy:
//   - RETRY_MAX_RETRIES: Retries after the initial attempt (default: 5)
//   - RETRY_BASE_DELAY: First backoff delay (default: 5s)
//   - RETRY_MULTIPLIER: Backoff growth factor (default: 2.0)
//   - RETRY_MAX_DELAY: Backoff cap (default: 120s)
//   - RETRY_JITTER_FRACTION: Uniform jitter fraction (default: 0.2)
//
// Delivery:
//   - DELIVERY_ENDPOINT: Consumer endpoint URL for outbound delivery
//   - DELIVERY_TIMEOUT: Per-attempt HTTP timeout (default: 30s)
//
// Alerting:
//   - ALERT_BOT_TOKEN: Bot API token for operator alerts
//   - ALERT_CHAT_ID: Chat/target identifier for operator alerts
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"signal-relay/internal/redis"
	"signal-relay/internal/retry"
	"signal-relay/internal/signing"
)

// Config holds all configuration values for the signal-relay subsystem.
type Config struct {
	// Application settings
	Port     string
	LogLevel string

	// Signing
	ProducerID         string
	SigningSecret      string
	FreshnessTolerance time.Duration

	// Replay window
	ReplayTTL   time.Duration
	ReplayStore string

	// Redis configuration for the shared replay store
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Retry policy for outbound delivery
	RetryMaxRetries     int
	RetryBaseDelay      time.Duration
	RetryMultiplier     float64
	RetryMaxDelay       time.Duration
	RetryJitterFraction float64

	// Outbound delivery
	DeliveryEndpoint string
	DeliveryTimeout  time.Duration

	// Alerting
	AlertBotToken string
	AlertChatID   string
}

// Load creates a new Config instance with values loaded from environment
// variables. Call Validate before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ProducerID:         getEnv("PRODUCER_ID", "signal-producer"),
		SigningSecret:      getEnv("SIGNING_SECRET", ""),
		FreshnessTolerance: getEnvDuration("FRESHNESS_TOLERANCE", 5*time.Minute),

		ReplayTTL:   getEnvDuration("REPLAY_TTL", 600*time.Second),
		ReplayStore: getEnv("REPLAY_STORE", "redis"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPoolSize: getEnvInt("REDIS_POOL_SIZE", 10),

		RetryMaxRetries:     getEnvInt("RETRY_MAX_RETRIES", 5),
		RetryBaseDelay:      getEnvDuration("RETRY_BASE_DELAY", 5*time.Second),
		RetryMultiplier:     getEnvFloat("RETRY_MULTIPLIER", 2.0),
		RetryMaxDelay:       getEnvDuration("RETRY_MAX_DELAY", 120*time.Second),
		RetryJitterFraction: getEnvFloat("RETRY_JITTER_FRACTION", 0.2),

		DeliveryEndpoint: getEnv("DELIVERY_ENDPOINT", ""),
		DeliveryTimeout:  getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second),

		AlertBotToken: getEnv("ALERT_BOT_TOKEN", ""),
		AlertChatID:   getEnv("ALERT_CHAT_ID", ""),
	}
}

// Validate ensures the configuration can start the service safely. The
// signing secret minimum is a hard failure here so it never needs to be
// checked per request.
func (c *Config) Validate() error {
	if len(c.SigningSecret) < signing.MinSecretLength {
		return fmt.Errorf("SIGNING_SECRET must be at least %d bytes", signing.MinSecretLength)
	}

	if c.ProducerID == "" {
		return fmt.Errorf("PRODUCER_ID must not be empty")
	}

	switch c.ReplayStore {
	case "redis", "memory":
	default:
		return fmt.Errorf("REPLAY_STORE must be \"redis\" or \"memory\", got %q", c.ReplayStore)
	}

	if c.ReplayTTL <= 0 {
		return fmt.Errorf("REPLAY_TTL must be positive")
	}

	if c.FreshnessTolerance <= 0 {
		return fmt.Errorf("FRESHNESS_TOLERANCE must be positive")
	}

	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %v", err)
	}

	if c.RedisDB < 0 || c.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	return nil
}

// RetryPolicy builds the delivery retry policy from configuration.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:     c.RetryMaxRetries,
		BaseDelay:      c.RetryBaseDelay,
		Multiplier:     c.RetryMultiplier,
		MaxDelay:       c.RetryMaxDelay,
		JitterFraction: c.RetryJitterFraction,
	}
}

// RedisConfig builds the redis client configuration.
func (c *Config) RedisConfig() *redis.Config {
	return &redis.Config{
		Address:  c.RedisAddress,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		PoolSize: c.RedisPoolSize,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
