package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Queue backends selectable through QUEUE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
// A .env file in the working directory is read first when present; values
// already set in the environment win.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Queue storage
	QueueBackend   string
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	RedisURL       string
	RedisKeyPrefix string

	// Processing
	BatchSize       int
	RunInterval     time.Duration
	DeadLetterAfter int

	// Retry policy around each fetch
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryJitter      bool

	// Fetching
	FetchTimeout    time.Duration
	FetchRatePerSec float64
	FetchBurst      int
	UserAgent       string

	// Sinks
	HTMLDir           string
	TextDir           string
	RecordsToPostgres bool
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3Prefix          string
	S3AccessKey       string
	S3SecretKey       string
	WebhookURL        string
	WebhookTimeout    time.Duration
	FailureLogPath    string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		QueueBackend:   strings.ToLower(getEnv("QUEUE_BACKEND", BackendPostgres)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 1)),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "harvest"),

		BatchSize:       getInt("BATCH_SIZE", 5),
		RunInterval:     getDuration("RUN_INTERVAL", 5*time.Minute),
		DeadLetterAfter: getInt("DEAD_LETTER_AFTER", 0),

		RetryMaxAttempts: getInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxDelay:    getDuration("RETRY_MAX_DELAY", 60*time.Second),
		RetryJitter:      getBool("RETRY_JITTER", true),

		FetchTimeout:    getDuration("FETCH_TIMEOUT", 20*time.Second),
		FetchRatePerSec: getFloat("FETCH_RATE_PER_SEC", 1),
		FetchBurst:      getInt("FETCH_BURST", 1),
		UserAgent:       getEnv("USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"),

		HTMLDir:           getEnv("HTML_DIR", "data/html"),
		TextDir:           getEnv("TEXT_DIR", "data/text"),
		RecordsToPostgres: getBool("RECORDS_TO_POSTGRES", false),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Prefix:          getEnv("S3_PREFIX", "html/"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		WebhookTimeout:    getDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		FailureLogPath:    getEnv("FAILURE_LOG_PATH", "data/failures.jsonl"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when QUEUE_BACKEND=%s", BackendPostgres)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when QUEUE_BACKEND=%s", BackendRedis)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("QUEUE_BACKEND must be one of postgres, redis, memory; got %q", c.QueueBackend)
	}

	if c.RecordsToPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when RECORDS_TO_POSTGRES=true")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.RunInterval <= 0 {
		return fmt.Errorf("RUN_INTERVAL must be positive, got %s", c.RunInterval)
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.DeadLetterAfter < 0 {
		return fmt.Errorf("DEAD_LETTER_AFTER must not be negative, got %d", c.DeadLetterAfter)
	}
	if c.FetchRatePerSec <= 0 || c.FetchBurst <= 0 {
		return fmt.Errorf("FETCH_RATE_PER_SEC and FETCH_BURST must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
