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
	MongoDB  MongoDBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OTEL     OTELConfig
	S3       S3Config
	Progress ProgressConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string
	MaxBodySizeKB int64
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
}

// JWTConfig holds the shared secret used to verify access tokens
type JWTConfig struct {
	Secret string
}

// OTELConfig holds OpenTelemetry export configuration
type OTELConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	InstanceID     string
	Token          string
	SampleRatio    float64
}

// S3Config holds the bucket used for workout history exports
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// ProgressConfig tunes records and streak handling
type ProgressConfig struct {
	DefaultRestDaysPerWeek int
	StreakTimezone         string
	StreakExpiryCron       string // six fields, with seconds
	RebuildTimeout         time.Duration
	RecordsCacheTTL        time.Duration
	IdempotencyTTL         time.Duration
	StoreCacheSize         int
	StoreMaxAge            time.Duration
}

// Load reads configuration from environment variables
// It attempts to load from .env file first, then falls back to system env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			MaxBodySizeKB: getEnvAsInt64("MAX_BODY_SIZE_KB", 512),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "ironlog"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		OTEL: OTELConfig{
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "ironlog-api"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("OTEL_ENVIRONMENT", "development"),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			InstanceID:     getEnv("OTEL_INSTANCE_ID", ""),
			Token:          getEnv("OTEL_TOKEN", ""),
			SampleRatio:    getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
		S3: loadS3(),
		Progress: ProgressConfig{
			DefaultRestDaysPerWeek: int(getEnvAsInt64("DEFAULT_REST_DAYS_PER_WEEK", 1)),
			StreakTimezone:         getEnv("STREAK_TIMEZONE", "UTC"),
			StreakExpiryCron:       getEnv("STREAK_EXPIRY_CRON", "0 5 0 * * *"),
			RebuildTimeout:         getEnvAsDuration("REBUILD_TIMEOUT", 10*time.Minute),
			RecordsCacheTTL:        getEnvAsDuration("RECORDS_CACHE_TTL", 5*time.Minute),
			IdempotencyTTL:         getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadS3 reads only the S3 section, for tools that need nothing else
func LoadS3() S3Config {
	_ = godotenv.Load()
	return loadS3()
}

func loadS3() S3Config {
	return S3Config{
		Endpoint:  getEnv("S3_ENDPOINT", ""),
		Region:    getEnv("S3_REGION", "us-east-1"),
		Bucket:    getEnv("S3_BUCKET", "ironlog-exports"),
		AccessKey: getEnv("S3_ACCESS_KEY", "any"),
		SecretKey: getEnv("S3_SECRET_KEY", "any"),
	}
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.OTEL.Enabled && c.OTEL.Endpoint == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED is set")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}
	if c.Progress.DefaultRestDaysPerWeek < 0 || c.Progress.DefaultRestDaysPerWeek > 7 {
		return fmt.Errorf("DEFAULT_REST_DAYS_PER_WEEK must be between 0 and 7")
	}
	if c.Progress.StoreCacheSize < 1 {
		return fmt.Errorf("RECORD_STORE_CACHE_SIZE must be at least 1")
	}
	if _, err := c.Progress.Location(); err != nil {
		return fmt.Errorf("STREAK_TIMEZONE is invalid: %w", err)
	}
	return nil
}

// Location resolves the timezone the daily streak sweep runs in
func (p ProgressConfig) Location() (*time.Location, error) {
	return time.LoadLocation(p.StreakTimezone)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as int64 or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
