package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the CloudNest services.
type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	ObjectStore ObjectStoreConfig
	Queue       QueueConfig
	Auth        AuthConfig
	Metrics     MetricsConfig
	Uploads     UploadConfig
	Links       LinkConfig
	Internal    InternalConfig
	Worker      WorkerConfig
	Log         LogConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// Object store drivers.
const (
	DriverMinIO = "minio"
	DriverS3    = "s3"
)

// ObjectStoreConfig carries blob store connection and bucket information.
type ObjectStoreConfig struct {
	Driver          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	// PublicBaseURL prefixes stored object URLs, e.g. http://localhost:9000.
	PublicBaseURL string
}

// Queue drivers.
const (
	QueueNATS   = "nats"
	QueueMemory = "memory"
)

// QueueConfig selects the job transport.
type QueueConfig struct {
	Driver string
	URL    string
	// Group is the NATS queue group shared by worker replicas. Empty means broadcast.
	Group string
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// UploadConfig bounds the presigned upload flow.
type UploadConfig struct {
	URLTTL       time.Duration
	MaxBytes     int64
	OrphanTTL    time.Duration
	ReapInterval time.Duration
}

// LinkConfig parameterizes share links.
type LinkConfig struct {
	PublicBaseURL string
	TokenLength   int
	RedirectTTL   time.Duration
}

// InternalConfig protects the worker callback endpoint.
type InternalConfig struct {
	Token string
}

// WorkerConfig parameterizes the media worker process.
type WorkerConfig struct {
	HTTPPort       int
	Concurrency    int
	JobTimeout     time.Duration
	ToolTimeout    time.Duration
	FileServiceURL string
	ScratchDir     string
	FFmpegPath     string
	FFprobePath    string
	PdftoppmPath   string
	SofficePath    string
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("CLOUDNEST_API_HOST", "0.0.0.0"),
			Port:         getInt("CLOUDNEST_API_PORT", 8080),
			ReadTimeout:  getDuration("CLOUDNEST_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("CLOUDNEST_API_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getDuration("CLOUDNEST_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "cloudnest"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "cloudnest"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		ObjectStore: ObjectStoreConfig{
			Driver:          strings.ToLower(getString("OBJECT_STORE_DRIVER", DriverMinIO)),
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "cloudnest"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "cloudnest"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", "us-east-1"),
			PublicBaseURL:   strings.TrimRight(getString("OBJECT_STORE_PUBLIC_URL", "http://localhost:9000"), "/"),
		},
		Queue: QueueConfig{
			Driver: strings.ToLower(getString("QUEUE_DRIVER", QueueNATS)),
			URL:    getString("NATS_URL", "nats://127.0.0.1:4222"),
			Group:  getString("QUEUE_GROUP", "cloudnest-workers"),
		},
		Auth: loadAuthConfig(),
		Metrics: MetricsConfig{
			PrometheusPath: getString("CLOUDNEST_METRICS_PATH", "/metrics"),
		},
		Uploads: UploadConfig{
			URLTTL:       getDuration("UPLOAD_URL_TTL", 10*time.Minute),
			MaxBytes:     getInt64("MAX_UPLOAD_BYTES", 5*1024*1024*1024),
			OrphanTTL:    getDuration("ORPHAN_TTL", 24*time.Hour),
			ReapInterval: getDuration("ORPHAN_REAP_INTERVAL", time.Hour),
		},
		Links: LinkConfig{
			PublicBaseURL: strings.TrimRight(getString("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			TokenLength:   getInt("LINK_TOKEN_LENGTH", 10),
			RedirectTTL:   getDuration("LINK_REDIRECT_TTL", 15*time.Minute),
		},
		Internal: InternalConfig{
			Token: getString("INTERNAL_TOKEN", ""),
		},
		Worker: WorkerConfig{
			HTTPPort:       getInt("WORKER_HTTP_PORT", 8081),
			Concurrency:    getInt("WORKER_CONCURRENCY", 4),
			JobTimeout:     getDuration("JOB_TIMEOUT", 5*time.Minute),
			ToolTimeout:    getDuration("EXTERNAL_TOOL_TIMEOUT", 60*time.Second),
			FileServiceURL: strings.TrimRight(getString("FILE_SERVICE_URL", "http://localhost:8080"), "/"),
			ScratchDir:     getString("WORKER_SCRATCH_DIR", os.TempDir()),
			FFmpegPath:     getString("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:    getString("FFPROBE_PATH", "ffprobe"),
			PdftoppmPath:   getString("PDFTOPPM_PATH", "pdftoppm"),
			SofficePath:    getString("SOFFICE_PATH", "soffice"),
		},
		Log: LogConfig{
			Level: getString("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error

	switch c.ObjectStore.Driver {
	case DriverMinIO, DriverS3:
	default:
		errs = append(errs, fmt.Errorf("unknown OBJECT_STORE_DRIVER %q", c.ObjectStore.Driver))
	}
	switch c.Queue.Driver {
	case QueueNATS, QueueMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown QUEUE_DRIVER %q", c.Queue.Driver))
	}
	if len(c.Auth.AccessTokenSecret) < 16 {
		errs = append(errs, errors.New("CLOUDNEST_JWT_SECRET must be at least 16 bytes"))
	}
	if c.Uploads.URLTTL <= 0 {
		errs = append(errs, errors.New("UPLOAD_URL_TTL must be positive"))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	if c.Worker.JobTimeout <= 0 || c.Worker.ToolTimeout <= 0 {
		errs = append(errs, errors.New("JOB_TIMEOUT and EXTERNAL_TOOL_TIMEOUT must be positive"))
	}
	if c.Links.RedirectTTL <= 0 {
		errs = append(errs, errors.New("LINK_REDIRECT_TTL must be positive"))
	}

	return errors.Join(errs...)
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig() AuthConfig {
	cost := getInt("CLOUDNEST_AUTH_BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret:  getString("CLOUDNEST_JWT_SECRET", "change-me-to-a-32-byte-secret"),
		RefreshTokenSecret: getString("CLOUDNEST_JWT_REFRESH_SECRET", "change-me-to-a-64-byte-secret"),
		AccessTokenTTL:     getDuration("CLOUDNEST_AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDuration("CLOUDNEST_AUTH_REFRESH_TOKEN_TTL", 720*time.Hour),
		BcryptCost:         cost,
	}
}
