package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	defaultEnv             = "development"
	defaultLogLevel        = "info"
	defaultHTTPHost        = "0.0.0.0"
	defaultHTTPPort        = 8080
	defaultStoreBackend    = BackendCSV
	defaultStorePath       = "data/company_data.csv"
	defaultSourceURL       = "https://www.mse.mk/en"
	defaultSeedCode        = "KMB"
	defaultHTTPTimeout     = 30 * time.Second
	defaultTaskTimeout     = 60 * time.Second
	defaultRetryWait       = 2 * time.Second
	defaultConcurrency     = 10
	defaultLookbackYears   = 10
	defaultWindowDays      = 365
	defaultReservedPrefix  = "E"
	defaultTimezone        = "Europe/Skopje"
	defaultRedisDB         = 0
	defaultCacheTTLSeconds = 30
	defaultInstrumentsTTL  = 6 * time.Hour
	defaultEventsExchange  = "historysync.events"
	defaultRequestExchange = "historysync.requests"
	defaultBatchSize       = 20
	defaultBatchTimeout    = 5 * time.Second
	defaultScheduleAt      = "16:30"
)

const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
)

// Config keeps the runtime configuration for the service.
type Config struct {
	Env      string
	LogLevel string
	HTTP     HTTPConfig
	Store    StoreConfig
	Source   SourceConfig
	Sync     SyncConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Cache    CacheConfig
	RabbitMQ RabbitMQConfig
	Schedule ScheduleConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// StoreConfig selects where the dataset lives.
type StoreConfig struct {
	Backend string
	Path    string
}

// SourceConfig points at the remote history pages.
type SourceConfig struct {
	BaseURL    string
	SeedCode   string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// SyncConfig shapes one synchronization run.
type SyncConfig struct {
	Concurrency     int
	TaskTimeout     time.Duration
	LookbackYears   int
	WindowDays      int
	ReservedPrefix  string
	Timezone        string
	InstrumentsFile string
	Allow           []string
}

// Location resolves Timezone, falling back to UTC.
func (s SyncConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PostgresConfig stores database connection parameters.
type PostgresConfig struct {
	DSN string
}

// RedisConfig stores Redis connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig stores cache behavior.
type CacheConfig struct {
	TTLSeconds     int
	InstrumentsTTL time.Duration
}

// RabbitMQConfig stores broker settings. An empty URL disables messaging.
type RabbitMQConfig struct {
	URL             string
	EventsExchange  string
	RequestExchange string
	Prefetch        int
	BatchSize       int
	BatchTimeout    time.Duration
}

// ScheduleConfig sets the daily run. An empty At disables it.
type ScheduleConfig struct {
	At string
}

// Load builds Config from environment variables, after reading a .env file
// from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	intVar := func(key string, fallback int) int {
		v, err := getInt(key, fallback)
		errs = append(errs, err)
		return v
	}
	durationVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getDuration(key, fallback)
		errs = append(errs, err)
		return v
	}

	cfg := &Config{
		Env:      getString("APP_ENV", defaultEnv),
		LogLevel: getString("LOG_LEVEL", defaultLogLevel),
		HTTP: HTTPConfig{
			Host: getString("HTTP_HOST", defaultHTTPHost),
			Port: intVar("HTTP_PORT", defaultHTTPPort),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getString("STORE_BACKEND", defaultStoreBackend)),
			Path:    getString("STORE_PATH", defaultStorePath),
		},
		Source: SourceConfig{
			BaseURL:    getString("SOURCE_BASE_URL", defaultSourceURL),
			SeedCode:   getString("SOURCE_SEED_CODE", defaultSeedCode),
			Timeout:    durationVar("SOURCE_TIMEOUT", defaultHTTPTimeout),
			RetryCount: intVar("SOURCE_RETRY_COUNT", 0),
			RetryWait:  durationVar("SOURCE_RETRY_WAIT", defaultRetryWait),
		},
		Sync: SyncConfig{
			Concurrency:     intVar("SYNC_CONCURRENCY", defaultConcurrency),
			TaskTimeout:     durationVar("SYNC_TASK_TIMEOUT", defaultTaskTimeout),
			LookbackYears:   intVar("SYNC_LOOKBACK_YEARS", defaultLookbackYears),
			WindowDays:      intVar("SYNC_WINDOW_DAYS", defaultWindowDays),
			ReservedPrefix:  getString("SYNC_RESERVED_PREFIX", defaultReservedPrefix),
			Timezone:        getString("SYNC_TIMEZONE", defaultTimezone),
			InstrumentsFile: os.Getenv("INSTRUMENTS_FILE"),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intVar("REDIS_DB", defaultRedisDB),
		},
		Cache: CacheConfig{
			TTLSeconds:     intVar("CACHE_TTL_SECONDS", defaultCacheTTLSeconds),
			InstrumentsTTL: durationVar("CACHE_INSTRUMENTS_TTL", defaultInstrumentsTTL),
		},
		RabbitMQ: RabbitMQConfig{
			URL:             os.Getenv("RABBITMQ_URL"),
			EventsExchange:  getString("RABBITMQ_EVENTS_EXCHANGE", defaultEventsExchange),
			RequestExchange: getString("RABBITMQ_REQUEST_EXCHANGE", defaultRequestExchange),
			Prefetch:        intVar("RABBITMQ_PREFETCH", 1),
			BatchSize:       intVar("RABBITMQ_BATCH_SIZE", defaultBatchSize),
			BatchTimeout:    durationVar("RABBITMQ_BATCH_TIMEOUT", defaultBatchTimeout),
		},
		Schedule: ScheduleConfig{
			At: getString("SYNC_SCHEDULE_AT", defaultScheduleAt),
		},
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if cfg.Sync.InstrumentsFile != "" {
		allow, err := LoadAllowlist(cfg.Sync.InstrumentsFile)
		if err != nil {
			return nil, err
		}
		cfg.Sync.Allow = allow
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendCSV:
		if c.Store.Path == "" {
			return errors.New("STORE_PATH is required for the csv backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Sync.Concurrency <= 0 {
		return errors.New("SYNC_CONCURRENCY must be positive")
	}
	if c.Sync.WindowDays <= 0 {
		return errors.New("SYNC_WINDOW_DAYS must be positive")
	}
	if c.Sync.LookbackYears <= 0 {
		return errors.New("SYNC_LOOKBACK_YEARS must be positive")
	}
	if c.Source.RetryCount < 0 {
		return errors.New("SOURCE_RETRY_COUNT cannot be negative")
	}
	return nil
}

// Logger builds the process logger.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to duration: %w", key, value, err)
	}
	return parsed, nil
}
