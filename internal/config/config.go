package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Auth0
	Auth0Domain   string
	Auth0Audience string
	Auth0ClientID string

	// Server
	Port        string
	CORSOrigins []string
	Env         string

	// External collaborators
	CommissionServiceURL string
	TransferGatewayURL   string
	TransferGatewayKey   string

	// Payout processing
	Payout PayoutConfig

	// S3 Storage (remittance archive)
	S3 S3Config
}

// PayoutConfig tunes the sweep worker and the retry policy for failed
// transfers.
type PayoutConfig struct {
	SweepInterval     time.Duration // How often the orchestrator runs
	ProcessingTimeout time.Duration // Processing payouts older than this are reconciled
	RetryBase         time.Duration // First retry delay
	RetryFactor       int32         // Backoff growth factor
	RetryMax          time.Duration // Delay cap
	MaxRetries        int32         // Attempts before operator intervention
}

// S3Config holds AWS S3 configuration
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for MinIO/LocalStack local dev
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		Auth0Domain:          getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:        getEnv("AUTH0_AUDIENCE", ""),
		Auth0ClientID:        getEnv("AUTH0_CLIENT_ID", ""),
		Port:                 getEnv("PORT", "8080"),
		CORSOrigins:          strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:                  getEnv("ENV", "development"),
		CommissionServiceURL: getEnv("COMMISSION_SERVICE_URL", ""),
		TransferGatewayURL:   getEnv("TRANSFER_GATEWAY_URL", ""),
		TransferGatewayKey:   getEnv("TRANSFER_GATEWAY_KEY", ""),
		Payout: PayoutConfig{
			SweepInterval:     getEnvDuration("PAYOUT_SWEEP_INTERVAL", 15*time.Minute),
			ProcessingTimeout: getEnvDuration("PAYOUT_PROCESSING_TIMEOUT", 30*time.Minute),
			RetryBase:         getEnvDuration("PAYOUT_RETRY_BASE", time.Hour),
			RetryFactor:       getEnvInt32("PAYOUT_RETRY_FACTOR", 2),
			RetryMax:          getEnvDuration("PAYOUT_RETRY_MAX", 24*time.Hour),
			MaxRetries:        getEnvInt32("PAYOUT_MAX_RETRIES", 5),
		},
		S3: S3Config{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          getEnv("S3_BUCKET", "soukly-remittances"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Empty = use AWS, set for MinIO/LocalStack
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.TransferGatewayURL == "" {
		return fmt.Errorf("TRANSFER_GATEWAY_URL is required")
	}
	if c.CommissionServiceURL == "" {
		return fmt.Errorf("COMMISSION_SERVICE_URL is required")
	}
	if c.Payout.RetryFactor < 1 {
		return fmt.Errorf("PAYOUT_RETRY_FACTOR must be at least 1")
	}
	if c.Payout.MaxRetries < 0 {
		return fmt.Errorf("PAYOUT_MAX_RETRIES must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(n)
		}
	}
	return defaultValue
}
