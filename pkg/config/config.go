package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port            string
	Env             string        // development, staging, production
	APIWriteTimeout time.Duration // POST /api/backtests 동기 실행 상한

	// Data source
	Data DataConfig

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Result store
	Results ResultsConfig

	// Engine limits
	Engine EngineConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DataConfig selects where market data is read from
type DataConfig struct {
	Source string // csv, postgres, http
	Dir    string // csv 데이터 폴더

	// http 소스 (원격 CSV 폴더)
	URL         string
	RateLimit   float64 // 초당 요청 수, 0 = 제한 없음
	HTTPTimeout time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	ScoreTTL time.Duration // 점수 매트릭스 캐시 TTL
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ResultsConfig holds result store configuration
type ResultsConfig struct {
	Backend   string // local, s3
	Dir       string
	Retention time.Duration
	Precision int // -1 = 최단 정확 표현

	S3 S3Config
}

// S3Config holds S3-compatible object storage configuration
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// EngineConfig holds engine-wide timeouts and parallelism
type EngineConfig struct {
	FetchTimeout time.Duration
	SolveTimeout time.Duration
	ScoreWorkers int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		APIWriteTimeout: getEnvAsDuration("API_WRITE_TIMEOUT", "5m"),

		Data: DataConfig{
			Source: getEnv("DATA_SOURCE", "csv"),
			Dir:    getEnv("DATA_DIR", "data"),

			URL:         getEnv("DATA_URL", ""),
			RateLimit:   getEnvAsFloat("DATA_RATE_LIMIT", 0),
			HTTPTimeout: getEnvAsDuration("DATA_HTTP_TIMEOUT", "30s"),
		},

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "stockbt"),
			User:            getEnv("DB_USER", "stockbt"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			ScoreTTL: getEnvAsDuration("REDIS_SCORE_TTL", "24h"),
		},

		Results: ResultsConfig{
			Backend:   getEnv("RESULT_BACKEND", "local"),
			Dir:       getEnv("RESULTS_DIR", "results"),
			Retention: getEnvAsDuration("RESULT_RETENTION", "720h"),
			Precision: getEnvAsInt("RESULT_PRECISION", -1),
			S3: S3Config{
				Bucket:    getEnv("S3_BUCKET", ""),
				Prefix:    getEnv("S3_PREFIX", "results"),
				Region:    getEnv("S3_REGION", "us-east-1"),
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
			},
		},

		Engine: EngineConfig{
			FetchTimeout: getEnvAsDuration("FETCH_TIMEOUT", "30s"),
			SolveTimeout: getEnvAsDuration("SOLVE_TIMEOUT", "5s"),
			ScoreWorkers: getEnvAsInt("SCORE_WORKERS", 4),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Data.Source {
	case "csv":
		if c.Data.Dir == "" {
			return fmt.Errorf("DATA_DIR is required when DATA_SOURCE=csv")
		}
	case "postgres":
		// Database URL is required only for the postgres source
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE=postgres")
		}
	case "http":
		if c.Data.URL == "" {
			return fmt.Errorf("DATA_URL is required when DATA_SOURCE=http")
		}
		if c.Data.RateLimit < 0 {
			return fmt.Errorf("DATA_RATE_LIMIT must not be negative")
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be one of: csv, postgres, http")
	}

	switch c.Results.Backend {
	case "local":
		if c.Results.Dir == "" {
			return fmt.Errorf("RESULTS_DIR is required when RESULT_BACKEND=local")
		}
	case "s3":
		if c.Results.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when RESULT_BACKEND=s3")
		}
	default:
		return fmt.Errorf("RESULT_BACKEND must be one of: local, s3")
	}

	if c.Results.Precision < -1 || c.Results.Precision > 17 {
		return fmt.Errorf("RESULT_PRECISION must be -1 or between 0 and 17")
	}
	if c.Results.Retention <= 0 {
		return fmt.Errorf("RESULT_RETENTION must be positive")
	}
	if c.Engine.ScoreWorkers < 1 {
		return fmt.Errorf("SCORE_WORKERS must be at least 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
