// Package config loads process configuration from the environment (and an
// optional .env file) into an explicit Config that is handed to every component
// at construction time.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetBoolEnv returns a boolean environment variable or a default value.
func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable ("250ms", "1h") or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

// Config is the full process configuration.
type Config struct {
	Env             string
	Port            string
	CORSOrigins     string
	LogLevel        string
	JWTSecret       string
	BalanceCacheTTL time.Duration

	DB      DBConfig
	Redis   RedisConfig
	Ledger  LedgerConfig
	Sweeper SweeperConfig
}

// DBConfig holds postgres connection and pool settings.
type DBConfig struct {
	Host            string
	Port            string
	CORSOrigins     string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds the redis connection used for the work queue and the balance cache.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LedgerConfig bounds the ledger's retry behaviour.
type LedgerConfig struct {
	// MaxAttempts is the number of times a whole operation is attempted on conflict.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// TimestampRetries bounds the re-inserts after a transaction timestamp collision.
	TimestampRetries int
	// MaxTimestampOffset is the largest perturbation, in milliseconds, applied on collision.
	MaxTimestampOffset int64
}

// SweeperConfig drives the expiration scan and the queue consumer.
type SweeperConfig struct {
	// Enabled runs the scheduler and workers inside the API process.
	Enabled       bool
	QueueName     string
	BatchSize     int
	ScanLimit     int
	MaxDeliveries int
	ScanInterval  time.Duration
	Workers       int
	PollTimeout   time.Duration
	// RedeliveryBaseDelay is the wait before a batch with transient failures is
	// received again. It doubles with each delivery up to RedeliveryMaxDelay.
	RedeliveryBaseDelay time.Duration
	RedeliveryMaxDelay  time.Duration
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Env:             GetEnv("ENV", "development"),
		Port:            GetEnv("PORT", "3000"),
		CORSOrigins:     GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		JWTSecret:       GetEnv("JWT_SECRET", "promos"),
		BalanceCacheTTL: GetDurationEnv("BALANCE_CACHE_TTL", 5*time.Minute),
		DB: DBConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "promos"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Ledger: LedgerConfig{
			MaxAttempts:        GetIntEnv("LEDGER_MAX_ATTEMPTS", 5),
			BaseDelay:          GetDurationEnv("LEDGER_RETRY_BASE_DELAY", 20*time.Millisecond),
			MaxDelay:           GetDurationEnv("LEDGER_RETRY_MAX_DELAY", 500*time.Millisecond),
			TimestampRetries:   GetIntEnv("LEDGER_TIMESTAMP_RETRIES", 5),
			MaxTimestampOffset: int64(GetIntEnv("LEDGER_MAX_TIMESTAMP_OFFSET_MS", 99)),
		},
		Sweeper: SweeperConfig{
			Enabled:       GetBoolEnv("EXPIRATION_SWEEPER_ENABLED", true),
			QueueName:     GetEnv("EXPIRATION_QUEUE", "promos:expirations"),
			BatchSize:     GetIntEnv("EXPIRATION_BATCH_SIZE", 25),
			ScanLimit:     GetIntEnv("EXPIRATION_SCAN_LIMIT", 5000),
			MaxDeliveries: GetIntEnv("EXPIRATION_MAX_DELIVERIES", 10),
			ScanInterval:  GetDurationEnv("EXPIRATION_SCAN_INTERVAL", 15*time.Minute),
			Workers:       GetIntEnv("EXPIRATION_WORKERS", 4),
			PollTimeout:   GetDurationEnv("EXPIRATION_POLL_TIMEOUT", 5*time.Second),

			RedeliveryBaseDelay: GetDurationEnv("EXPIRATION_REDELIVERY_BASE_DELAY", time.Second),
			RedeliveryMaxDelay:  GetDurationEnv("EXPIRATION_REDELIVERY_MAX_DELAY", 5*time.Minute),
		},
	}
}
