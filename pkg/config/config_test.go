package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "console", cfg.StorageMode)
	assert.Equal(t, time.Second, cfg.ExecutionDelay)
	assert.Equal(t, 10*time.Second, cfg.ExpirationTime)
	assert.Equal(t, []string{"BTC"}, cfg.BaseAssets)
	assert.Equal(t, "USD", cfg.QuoteAsset)
	assert.True(t, cfg.MinSpread.IsZero())
	assert.Equal(t, uint32(5), cfg.BreakerMaxFailures)
	assert.Empty(t, cfg.S3Bucket)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("EXECUTION_DELAY", "250ms")
	t.Setenv("EXPIRATION_TIME", "30s")
	t.Setenv("HISTORY_MAX_SIZE", "50")
	t.Setenv("MIN_SPREAD", "0.15")
	t.Setenv("MIN_PNL", "2.5")
	t.Setenv("BASE_ASSETS", " btc, eth ,,")
	t.Setenv("INTERMEDIATE_ASSETS", "USDT")
	t.Setenv("QUOTE_ASSET", "eur")
	t.Setenv("EXCHANGES", "kraken,binance")
	t.Setenv("PUBLIC_MATRIX_ASSET_PAIRS", "BTC/EUR")
	t.Setenv("PUBLIC_MATRIX_EXCHANGES", "kraken=Kraken, binance")
	t.Setenv("FEED_SOURCES", "kraken,binance")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.ExecutionDelay)
	assert.Equal(t, []string{"btc", "eth"}, cfg.BaseAssets)
	assert.Equal(t, map[string]string{"kraken": "Kraken", "binance": "binance"}, cfg.PublicMatrixExchanges)
	assert.Equal(t, []string{"kraken", "binance"}, cfg.FeedSources)

	s := cfg.Settings()
	assert.Equal(t, 250, s.ExecutionDelayInMilliseconds)
	assert.Equal(t, 30, s.ExpirationTimeInSeconds)
	assert.Equal(t, 50, s.HistoryMaxSize)
	assert.True(t, s.MinSpread.Equal(decimal.RequireFromString("0.15")))
	assert.True(t, s.MinimumPnL.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, []string{"BTC", "ETH"}, s.BaseAssets)
	assert.Equal(t, "EUR", s.QuoteAsset)
	assert.Equal(t, []string{"kraken", "binance"}, s.Exchanges)
	require.NoError(t, s.Validate())
}

func TestLoadFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HISTORY_MAX_SIZE", "many")
	t.Setenv("MIN_SPREAD", "wide")
	t.Setenv("EXECUTION_DELAY", "soon")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.HistoryMaxSize)
	assert.True(t, cfg.MinSpread.IsZero())
	assert.Equal(t, time.Second, cfg.ExecutionDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad-storage-mode", env: map[string]string{"STORAGE_MODE": "redis"}, wantErr: "STORAGE_MODE"},
		{name: "negative-min-pnl", env: map[string]string{"MIN_PNL": "-1"}, wantErr: "MIN_PNL"},
		{name: "zero-history", env: map[string]string{"HISTORY_MAX_SIZE": "0"}, wantErr: "HISTORY_MAX_SIZE"},
		{name: "short-expiration", env: map[string]string{"EXPIRATION_TIME": "500ms"}, wantErr: "EXPIRATION_TIME"},
		{name: "zero-breaker-failures", env: map[string]string{"BREAKER_MAX_FAILURES": "0"}, wantErr: "BREAKER_MAX_FAILURES"},
		{name: "negative-cache-ttl", env: map[string]string{"API_CACHE_TTL": "-1s"}, wantErr: "API_CACHE_TTL"},
		{name: "zero-feed-buffer", env: map[string]string{"FEED_BUFFER_SIZE": "0"}, wantErr: "FEED_BUFFER_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetMapOrDefault(t *testing.T) {
	t.Setenv("TEST_MAP", "a=A, =skip ,b=, c")

	got := getMapOrDefault("TEST_MAP", nil)
	assert.Equal(t, map[string]string{"a": "A", "b": "b", "c": "c"}, got)

	assert.Nil(t, getMapOrDefault("TEST_MAP_UNSET", nil))
}

func TestNewLogger(t *testing.T) {
	t.Run("invalid-level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "loud")

		_, err := NewLogger()
		require.Error(t, err)
	})

	t.Run("writes-log-file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "detector.log")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FILE", path)

		logger, err := NewLogger()
		require.NoError(t, err)

		logger.Info("cycle-slow")
		_ = logger.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), `"msg":"cycle-slow"`))
	})
}
