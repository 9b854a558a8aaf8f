// Package config provides configuration management for the resale scanner application.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Catalog  CatalogConfig
	Pipeline PipelineConfig
	Policy   PolicyConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CatalogConfig holds catalog API client configuration
type CatalogConfig struct {
	APIKey         string
	BaseURL        string
	Domain         int           // marketplace domain id (5 = amazon.co.jp)
	RequestTimeout time.Duration // hard per-request deadline
	RequestsPerMin float64       // client-side pacing for the credential
	DefaultRefill  time.Duration // 429 wait when the server gives no hint
	MaxRefillWait  time.Duration // cap on the server-suggested 429 wait
}

// PipelineConfig holds batch runner and state machine configuration
type PipelineConfig struct {
	BatchSize        int           // records per invocation (default 1, rate limit)
	FailureThreshold int           // consecutive failures before manual_review
	ShortCooldown    time.Duration // api_error cooldown
	LongCooldown     time.Duration // manual_review cooldown
	ExclusionWindow  time.Duration // soft lock against concurrent invocations
	RefreshInterval  time.Duration // enrichment staleness horizon
	LeaseTTL         time.Duration // run lease expiry
	WorkerInterval   time.Duration // periodic worker tick
}

// PolicyConfig holds profitability policy defaults. The settings table
// overrides these at runtime; these values apply when a setting is absent.
type PolicyConfig struct {
	MinProfitRate  float64
	MaxSalesRank   int
	MaxSellerCount int
	ShippingCost   int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "resale_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "resale_scanner"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Catalog: CatalogConfig{
			APIKey:         getEnv("CATALOG_API_KEY", ""),
			BaseURL:        getEnv("CATALOG_BASE_URL", "https://api.keepa.com"),
			Domain:         getEnvAsInt("CATALOG_DOMAIN", 5),
			RequestTimeout: getEnvAsDuration("CATALOG_REQUEST_TIMEOUT", 5*time.Minute),
			RequestsPerMin: getEnvAsFloat("CATALOG_REQUESTS_PER_MIN", 1.0),
			DefaultRefill:  getEnvAsDuration("CATALOG_DEFAULT_REFILL", 60*time.Second),
			MaxRefillWait:  getEnvAsDuration("CATALOG_MAX_REFILL_WAIT", 5*time.Minute),
		},
		Pipeline: PipelineConfig{
			BatchSize:        getEnvAsInt("PIPELINE_BATCH_SIZE", 1),
			FailureThreshold: getEnvAsInt("PIPELINE_FAILURE_THRESHOLD", 3),
			ShortCooldown:    getEnvAsDuration("PIPELINE_SHORT_COOLDOWN", 30*time.Minute),
			LongCooldown:     getEnvAsDuration("PIPELINE_LONG_COOLDOWN", 6*time.Hour),
			ExclusionWindow:  getEnvAsDuration("PIPELINE_EXCLUSION_WINDOW", 5*time.Minute),
			RefreshInterval:  getEnvAsDuration("PIPELINE_REFRESH_INTERVAL", 6*time.Hour),
			LeaseTTL:         getEnvAsDuration("PIPELINE_LEASE_TTL", 10*time.Minute),
			WorkerInterval:   getEnvAsDuration("PIPELINE_WORKER_INTERVAL", time.Minute),
		},
		Policy: PolicyConfig{
			MinProfitRate:  getEnvAsFloat("POLICY_MIN_PROFIT_RATE", 20),
			MaxSalesRank:   getEnvAsInt("POLICY_MAX_SALES_RANK", 50000),
			MaxSellerCount: getEnvAsInt("POLICY_MAX_SELLER_COUNT", 10),
			ShippingCost:   getEnvAsInt("POLICY_SHIPPING_COST", 500),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if config.Pipeline.BatchSize < 1 {
		config.Pipeline.BatchSize = 1
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
