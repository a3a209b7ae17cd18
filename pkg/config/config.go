package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/arbitrage-detector/internal/settings"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Feed WebSocket
	FeedURL                   string
	FeedSources               []string
	FeedInstruments           []string
	FeedDialTimeout           time.Duration
	FeedPongTimeout           time.Duration
	FeedPingInterval          time.Duration
	FeedReconnectInitialDelay time.Duration
	FeedReconnectMaxDelay     time.Duration
	FeedReconnectBackoffMult  float64
	FeedBufferSize            int

	// Detection defaults, used until settings are persisted
	ExecutionDelay         time.Duration
	HistoryMaxSize         int
	ExpirationTime         time.Duration
	MinSpread              decimal.Decimal
	MinPnL                 decimal.Decimal
	MinVolume              decimal.Decimal
	BaseAssets             []string
	IntermediateAssets     []string
	QuoteAsset             string
	Exchanges              []string
	PublicMatrixAssetPairs []string
	PublicMatrixExchanges  map[string]string

	// Matrix history
	MatrixSnapshotInterval time.Duration

	// API cache
	APICacheTTL      time.Duration
	CacheMaxCost     int64
	CacheNumCounters int64

	// Persistence breaker
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	// Storage
	StorageMode  string // "postgres" or "console"
	SettingsFile string
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// S3 blob store for matrix snapshots; disabled when S3Bucket is empty
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3ForcePathStyle bool
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Feed defaults
		FeedURL:                   getEnvOrDefault("FEED_URL", "ws://localhost:9000/ws/orderbooks"),
		FeedSources:               getListOrDefault("FEED_SOURCES", nil),
		FeedInstruments:           getListOrDefault("FEED_INSTRUMENTS", nil),
		FeedDialTimeout:           getDurationOrDefault("FEED_DIAL_TIMEOUT", 10*time.Second),
		FeedPongTimeout:           getDurationOrDefault("FEED_PONG_TIMEOUT", 15*time.Second),
		FeedPingInterval:          getDurationOrDefault("FEED_PING_INTERVAL", 10*time.Second),
		FeedReconnectInitialDelay: getDurationOrDefault("FEED_RECONNECT_INITIAL_DELAY", 1*time.Second),
		FeedReconnectMaxDelay:     getDurationOrDefault("FEED_RECONNECT_MAX_DELAY", 30*time.Second),
		FeedReconnectBackoffMult:  getFloat64OrDefault("FEED_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		FeedBufferSize:            getIntOrDefault("FEED_BUFFER_SIZE", 1000),

		// Detection defaults
		ExecutionDelay:         getDurationOrDefault("EXECUTION_DELAY", time.Second),
		HistoryMaxSize:         getIntOrDefault("HISTORY_MAX_SIZE", 1000),
		ExpirationTime:         getDurationOrDefault("EXPIRATION_TIME", 10*time.Second),
		MinSpread:              getDecimalOrDefault("MIN_SPREAD", decimal.Zero),
		MinPnL:                 getDecimalOrDefault("MIN_PNL", decimal.Zero),
		MinVolume:              getDecimalOrDefault("MIN_VOLUME", decimal.Zero),
		BaseAssets:             getListOrDefault("BASE_ASSETS", []string{"BTC"}),
		IntermediateAssets:     getListOrDefault("INTERMEDIATE_ASSETS", nil),
		QuoteAsset:             getEnvOrDefault("QUOTE_ASSET", "USD"),
		Exchanges:              getListOrDefault("EXCHANGES", nil),
		PublicMatrixAssetPairs: getListOrDefault("PUBLIC_MATRIX_ASSET_PAIRS", nil),
		PublicMatrixExchanges:  getMapOrDefault("PUBLIC_MATRIX_EXCHANGES", nil),

		MatrixSnapshotInterval: getDurationOrDefault("MATRIX_SNAPSHOT_INTERVAL", time.Minute),

		// Cache defaults
		APICacheTTL:      getDurationOrDefault("API_CACHE_TTL", time.Second),
		CacheMaxCost:     int64(getIntOrDefault("CACHE_MAX_COST", 10000)),
		CacheNumCounters: int64(getIntOrDefault("CACHE_NUM_COUNTERS", 100000)),

		BreakerMaxFailures: uint32(getIntOrDefault("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: getDurationOrDefault("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		SettingsFile: os.Getenv("SETTINGS_FILE"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "arbitrage"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "arbitrage123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "arbitrage_detector"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3Region:         getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3ForcePathStyle: getBoolOrDefault("S3_FORCE_PATH_STYLE", true),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.FeedURL == "" {
		return fmt.Errorf("FEED_URL cannot be empty")
	}

	if c.FeedBufferSize <= 0 {
		return fmt.Errorf("FEED_BUFFER_SIZE must be positive, got %d", c.FeedBufferSize)
	}

	if c.ExecutionDelay < time.Millisecond {
		return fmt.Errorf("EXECUTION_DELAY must be at least 1ms, got %s", c.ExecutionDelay)
	}

	if c.HistoryMaxSize <= 0 {
		return fmt.Errorf("HISTORY_MAX_SIZE must be positive, got %d", c.HistoryMaxSize)
	}

	if c.ExpirationTime < time.Second {
		return fmt.Errorf("EXPIRATION_TIME must be at least 1s, got %s", c.ExpirationTime)
	}

	for key, v := range map[string]decimal.Decimal{
		"MIN_SPREAD": c.MinSpread,
		"MIN_PNL":    c.MinPnL,
		"MIN_VOLUME": c.MinVolume,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s cannot be negative, got %s", key, v)
		}
	}

	if len(c.BaseAssets) == 0 {
		return fmt.Errorf("BASE_ASSETS cannot be empty")
	}

	if strings.TrimSpace(c.QuoteAsset) == "" {
		return fmt.Errorf("QUOTE_ASSET cannot be empty")
	}

	if c.MatrixSnapshotInterval <= 0 {
		return fmt.Errorf("MATRIX_SNAPSHOT_INTERVAL must be positive, got %s", c.MatrixSnapshotInterval)
	}

	if c.APICacheTTL < 0 {
		return fmt.Errorf("API_CACHE_TTL cannot be negative, got %s", c.APICacheTTL)
	}

	if c.BreakerMaxFailures == 0 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must be positive")
	}

	if c.StorageMode != "console" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'console' or 'postgres', got %q", c.StorageMode)
	}

	return nil
}

// Settings builds the default detector settings from the environment.
func (c *Config) Settings() settings.Settings {
	s := settings.Settings{
		ExecutionDelayInMilliseconds: int(c.ExecutionDelay / time.Millisecond),
		HistoryMaxSize:               c.HistoryMaxSize,
		ExpirationTimeInSeconds:      int(c.ExpirationTime / time.Second),
		MinimumPnL:                   c.MinPnL,
		MinimumVolume:                c.MinVolume,
		MinSpread:                    c.MinSpread,
		BaseAssets:                   c.BaseAssets,
		IntermediateAssets:           c.IntermediateAssets,
		QuoteAsset:                   c.QuoteAsset,
		Exchanges:                    c.Exchanges,
		PublicMatrixAssetPairs:       c.PublicMatrixAssetPairs,
		PublicMatrixExchanges:        c.PublicMatrixExchanges,
	}

	return s.Normalize()
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getDecimalOrDefault(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}

	return d
}

// getListOrDefault splits a comma separated value, dropping blank entries.
func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var list []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	if len(list) == 0 {
		return defaultValue
	}

	return list
}

// getMapOrDefault parses "key=value" pairs separated by commas. A bare key
// maps to itself.
func getMapOrDefault(key string, defaultValue map[string]string) map[string]string {
	entries := getListOrDefault(key, nil)
	if len(entries) == 0 {
		return defaultValue
	}

	m := make(map[string]string, len(entries))
	for _, entry := range entries {
		k, v, found := strings.Cut(entry, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" {
			continue
		}
		if !found || v == "" {
			v = k
		}
		m[k] = v
	}

	return m
}
