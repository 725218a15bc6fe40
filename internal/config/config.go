// Package config loads service configuration from DF_* environment
// variables and validates it at startup.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/piyushrajyadav/drop-fade/internal/logging"
)

// Blob backend names accepted by DF_BLOB_BACKEND.
const (
	BackendMemory = "memory"
	BackendMinIO  = "minio"
	BackendRedis  = "redis"
)

const (
	DefaultAddr            = ":8080"
	DefaultMaxFileBytes    = 5 << 20
	DefaultMaxTextBytes    = 1 << 20
	DefaultSweepInterval   = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
)

// Config is the full service configuration.
type Config struct {
	Addr    string
	Version string
	Commit  string

	LogFormat logging.Format
	LogLevel  logging.Level

	MaxFileBytes int64
	MaxTextBytes int64
	// UploadsPerMinute caps uploads per client IP; zero (the default)
	// disables the limit.
	UploadsPerMinute int
	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Only set it behind a reverse proxy that overwrites those headers.
	TrustProxy bool

	SweepInterval   time.Duration
	ShutdownTimeout time.Duration

	BlobBackend string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	Bucket      string
	S3Prefix    string
	RedisURL    string

	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// DatabaseURL enables the Postgres audit trail when set.
	DatabaseURL string
}

// LoadEnvFile loads variables from path into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads configuration from the environment and validates it,
// reporting every problem at once.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	v := NewValidator()
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		Addr:        getDefault(get, "DF_ADDR", DefaultAddr),
		Version:     getDefault(get, "DF_VERSION", "dev"),
		Commit:      getDefault(get, "DF_COMMIT", "unknown"),
		BlobBackend: strings.ToLower(getDefault(get, "DF_BLOB_BACKEND", BackendMemory)),
		S3Endpoint:  get("DF_S3_ENDPOINT"),
		S3AccessKey: get("DF_S3_ACCESS_KEY"),
		S3SecretKey: get("DF_S3_SECRET_KEY"),
		Bucket:      get("DF_BUCKET"),
		S3Prefix:    get("DF_S3_PREFIX"),
		RedisURL:    get("DF_REDIS_URL"),
		DatabaseURL: get("DATABASE_URL"),
	}
	v.Addr("DF_ADDR", cfg.Addr)

	var err error
	if cfg.LogFormat, err = logging.ParseFormat(get("DF_LOG_FORMAT")); err != nil {
		v.AddError("DF_LOG_FORMAT", err.Error())
	}
	if cfg.LogLevel, err = logging.ParseLevel(get("DF_LOG_LEVEL")); err != nil {
		v.AddError("DF_LOG_LEVEL", err.Error())
	}

	cfg.MaxFileBytes = v.PositiveInt("DF_MAX_FILE_BYTES", get("DF_MAX_FILE_BYTES"), DefaultMaxFileBytes)
	cfg.MaxTextBytes = v.PositiveInt("DF_MAX_TEXT_BYTES", get("DF_MAX_TEXT_BYTES"), DefaultMaxTextBytes)
	cfg.SweepInterval = v.Duration("DF_SWEEP_INTERVAL", get("DF_SWEEP_INTERVAL"), DefaultSweepInterval)
	cfg.ShutdownTimeout = v.Duration("DF_SHUTDOWN_TIMEOUT", get("DF_SHUTDOWN_TIMEOUT"), DefaultShutdownTimeout)
	cfg.BreakerFailures = uint32(v.PositiveInt("DF_BREAKER_FAILURES", get("DF_BREAKER_FAILURES"), DefaultBreakerFailures))
	cfg.BreakerTimeout = v.Duration("DF_BREAKER_TIMEOUT", get("DF_BREAKER_TIMEOUT"), DefaultBreakerTimeout)

	if raw := get("DF_UPLOADS_PER_MINUTE"); raw != "" && raw != "0" {
		cfg.UploadsPerMinute = int(v.PositiveInt("DF_UPLOADS_PER_MINUTE", raw, 0))
	}
	cfg.TrustProxy = v.Bool("DF_TRUST_PROXY", get("DF_TRUST_PROXY"), false)

	v.Enum("DF_BLOB_BACKEND", cfg.BlobBackend, []string{BackendMemory, BackendMinIO, BackendRedis})
	switch cfg.BlobBackend {
	case BackendMinIO:
		v.Required("DF_S3_ENDPOINT", cfg.S3Endpoint)
		v.Required("DF_S3_ACCESS_KEY", cfg.S3AccessKey)
		v.Required("DF_S3_SECRET_KEY", cfg.S3SecretKey)
		v.Required("DF_BUCKET", cfg.Bucket)
		// Either host:port or a URL.
		if strings.Contains(cfg.S3Endpoint, "://") {
			v.URL("DF_S3_ENDPOINT", cfg.S3Endpoint, "http", "https")
		}
	case BackendRedis:
		v.URL("DF_REDIS_URL", cfg.RedisURL, "redis", "rediss")
	}

	if cfg.DatabaseURL != "" {
		v.URL("DATABASE_URL", cfg.DatabaseURL, "postgres", "postgresql")
	}

	if err := v.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Warnings lists optional settings worth a look in production.
func (c Config) Warnings() []string {
	var warnings []string
	if c.BlobBackend == BackendMemory {
		warnings = append(warnings, "DF_BLOB_BACKEND is memory - uploaded files are lost on restart")
	}
	if c.DatabaseURL == "" {
		warnings = append(warnings, "DATABASE_URL not set - audit trail disabled")
	}
	if c.LogFormat == logging.FormatText {
		warnings = append(warnings, "DF_LOG_FORMAT is text (consider 'json' for production)")
	}
	return warnings
}

func getDefault(get func(string) string, key, def string) string {
	if v := get(key); v != "" {
		return v
	}
	return def
}
