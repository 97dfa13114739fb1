// Package config provides configuration management for the networth
// tracker. It loads configuration from environment variables and .env files.
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
	Server    ServerConfig
	Database  DatabaseConfig
	Queue     QueueConfig
	Oracle    OracleConfig
	Snapshot  SnapshotConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
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

// QueueConfig holds task queue tuning
type QueueConfig struct {
	NativeConcurrency int           // parallel native-asset checks
	ERC20Concurrency  int           // parallel token-contract checks
	MaxAttempts       int           // attempts before a task is dead-lettered
	BackoffBase       time.Duration // first retry delay
	BackoffMax        time.Duration // retry delay cap
	VisibilityTimeout time.Duration // how long a worker may hold a task
}

// OracleConfig holds price oracle configuration
type OracleConfig struct {
	FiatCurrency string        // reference currency for snapshots (default: usd)
	FiatCacheTTL time.Duration // how long a fiat rate stays cached
}

// SnapshotConfig holds the networth snapshot job configuration
type SnapshotConfig struct {
	Interval time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	APIRequestsPerSecond int
	ChainRequestsPerSec  int // per-chain RPC throttle, 0 disables
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
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
				Database:       getEnv("POSTGRES_DB", "networth"),
				User:           getEnv("POSTGRES_USER", "networth"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "networth"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Queue: QueueConfig{
			NativeConcurrency: getEnvAsInt("QUEUE_NATIVE_CONCURRENCY", 4),
			ERC20Concurrency:  getEnvAsInt("QUEUE_ERC20_CONCURRENCY", 4),
			MaxAttempts:       getEnvAsInt("QUEUE_MAX_ATTEMPTS", 5),
			BackoffBase:       getEnvAsDuration("QUEUE_BACKOFF_BASE", 2*time.Second),
			BackoffMax:        getEnvAsDuration("QUEUE_BACKOFF_MAX", 60*time.Second),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 2*time.Minute),
		},
		Oracle: OracleConfig{
			FiatCurrency: getEnv("ORACLE_FIAT_CURRENCY", "usd"),
			FiatCacheTTL: getEnvAsDuration("ORACLE_FIAT_CACHE_TTL", time.Minute),
		},
		Snapshot: SnapshotConfig{
			Interval: getEnvAsDuration("SNAPSHOT_INTERVAL", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			APIRequestsPerSecond: getEnvAsInt("RATE_LIMIT_API_RPS", 50),
			ChainRequestsPerSec:  getEnvAsInt("RATE_LIMIT_CHAIN_RPS", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
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
