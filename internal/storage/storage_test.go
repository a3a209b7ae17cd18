package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/internal/arbitrage"
	"github.com/mselser95/arbitrage-detector/internal/circuitbreaker"
	"github.com/mselser95/arbitrage-detector/internal/crossrate"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	domain "github.com/mselser95/arbitrage-detector/pkg/types"
)

var (
	_ Storage = (*ConsoleStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
	_ Storage = (*GuardedStorage)(nil)
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testArbitrage(t *testing.T) *arbitrage.Arbitrage {
	t.Helper()

	pair := domain.MustAssetPair("BTC", "USD")
	ask := &crossrate.SynthOrderBook{
		OrderBook:      domain.OrderBook{Source: "kraken", AssetPair: pair},
		ConversionPath: "kraken-BTCUSD",
	}
	bid := &crossrate.SynthOrderBook{
		OrderBook:      domain.OrderBook{Source: "binance", AssetPair: pair},
		ConversionPath: "binance-BTCUSD",
	}

	arb, err := arbitrage.NewArbitrage(ask,
		domain.NewVolumePrice(decimal.RequireFromString("9000"), decimal.RequireFromString("1")),
		bid,
		domain.NewVolumePrice(decimal.RequireFromString("9050"), decimal.RequireFromString("2")),
		testTime)
	require.NoError(t, err)

	return arb.End(testTime.Add(3 * time.Second))
}

func testMatrix() *matrix.Matrix {
	price := decimal.RequireFromString("9000")
	return &matrix.Matrix{
		ID:        "m-1",
		AssetPair: "BTCUSD",
		Exchanges: []matrix.Exchange{{Name: "Kraken", IsActual: true}},
		Asks:      []*decimal.Decimal{&price},
		Bids:      []*decimal.Decimal{nil},
		Cells:     [][]*matrix.Cell{{nil}},
		DateTime:  testTime,
	}
}

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: make(map[string][]byte)}
}

func (m *memoryBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (m *memoryBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func newMockStorage(t *testing.T, blobs BlobStore) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresStorageWithDB(db, blobs, zap.NewNop()), mock
}

func TestConsoleStorage_StoreArbitrage(t *testing.T) {
	storage := NewConsoleStorage(zap.NewNop(), "")
	var buf bytes.Buffer
	storage.out = &buf

	arb := testArbitrage(t)
	require.NoError(t, storage.StoreArbitrage(context.Background(), arb))

	output := buf.String()
	assert.Contains(t, output, "ARBITRAGE ENDED  BTCUSD")
	assert.Contains(t, output, arb.ConversionPath())
	assert.Contains(t, output, "Lasted:   3s")
}

func TestConsoleStorage_SettingsWithoutFile(t *testing.T) {
	storage := NewConsoleStorage(zap.NewNop(), "")
	ctx := context.Background()

	s := settings.Default()
	require.NoError(t, storage.SaveSettings(ctx, &s))

	loaded, err := storage.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestConsoleStorage_History(t *testing.T) {
	storage := NewConsoleStorage(zap.NewNop(), "")
	ctx := context.Background()

	require.NoError(t, storage.InsertHistory(ctx, testMatrix()))

	_, err := storage.GetHistory(ctx, "BTCUSD", testTime)
	require.ErrorIs(t, err, domain.ErrNotFound)

	deleted, err := storage.DeleteHistory(ctx, "BTCUSD", testTime)
	require.NoError(t, err)
	assert.False(t, deleted)

	times, err := storage.GetDateTimes(ctx, "BTCUSD", testTime.Add(-time.Hour), testTime)
	require.NoError(t, err)
	assert.Empty(t, times)

	require.NoError(t, storage.Close())
}

func TestFileSettings_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	repo := NewFileSettings(path)
	ctx := context.Background()

	loaded, err := repo.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "missing file means nothing stored")

	s := settings.Default()
	s.MinSpread = decimal.RequireFromString("0.25")
	s.IntermediateAssets = []string{"ETH", "USDT"}
	s.PublicMatrixExchanges = map[string]string{"kraken": "Kraken"}
	require.NoError(t, repo.SaveSettings(ctx, &s))

	loaded, err = repo.LoadSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.MinSpread.Equal(s.MinSpread))
	assert.Equal(t, s.IntermediateAssets, loaded.IntermediateAssets)
	assert.Equal(t, s.PublicMatrixExchanges, loaded.PublicMatrixExchanges)
	assert.Equal(t, s.HistoryMaxSize, loaded.HistoryMaxSize)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".settings-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary files are cleaned up")
}

func TestPostgresStorage_StoreArbitrage(t *testing.T) {
	storage, mock := newMockStorage(t, nil)
	arb := testArbitrage(t)

	mock.ExpectExec("INSERT INTO arbitrage_history").
		WithArgs(
			arb.ID,
			"BTCUSD",
			arb.ConversionPath(),
			"kraken",
			"binance",
			"9000",
			"1",
			"9050",
			"2",
			arb.Spread.String(),
			"1",
			"50",
			testTime,
			testTime.Add(3*time.Second),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, storage.StoreArbitrage(context.Background(), arb))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_StoreArbitrageError(t *testing.T) {
	storage, mock := newMockStorage(t, nil)

	mock.ExpectExec("INSERT INTO arbitrage_history").WillReturnError(errors.New("connection reset"))

	err := storage.StoreArbitrage(context.Background(), testArbitrage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert arbitrage")
}

func TestPostgresStorage_Settings(t *testing.T) {
	t.Run("load-missing", func(t *testing.T) {
		storage, mock := newMockStorage(t, nil)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM settings")).
			WithArgs(1).
			WillReturnError(sql.ErrNoRows)

		loaded, err := storage.LoadSettings(context.Background())
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("load-stored", func(t *testing.T) {
		storage, mock := newMockStorage(t, nil)
		raw := []byte(`{"historyMaxSize":5,"quoteAsset":"EUR","baseAssets":["ETH"],"minSpread":"0.5"}`)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM settings")).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(raw))

		loaded, err := storage.LoadSettings(context.Background())
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, 5, loaded.HistoryMaxSize)
		assert.Equal(t, "EUR", loaded.QuoteAsset)
		assert.Equal(t, []string{"ETH"}, loaded.BaseAssets)
		assert.Equal(t, "0.5", loaded.MinSpread.String())
	})

	t.Run("save-upserts", func(t *testing.T) {
		storage, mock := newMockStorage(t, nil)
		mock.ExpectExec("INSERT INTO settings").
			WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		s := settings.Default()
		require.NoError(t, storage.SaveSettings(context.Background(), &s))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStorage_HistoryInline(t *testing.T) {
	storage, mock := newMockStorage(t, nil)
	ctx := context.Background()
	m := testMatrix()
	payload, err := json.Marshal(m)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO matrix_history").
		WithArgs("BTCUSD", testTime, nil, payload).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, storage.InsertHistory(ctx, m))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT blob_key, payload FROM matrix_history")).
		WithArgs("BTCUSD", testTime).
		WillReturnRows(sqlmock.NewRows([]string{"blob_key", "payload"}).AddRow(nil, payload))

	got, err := storage.GetHistory(ctx, "BTCUSD", testTime)
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.ID)
	assert.Equal(t, "Kraken", got.Exchanges[0].Name)
	require.NotNil(t, got.Asks[0])
	assert.Equal(t, "9000", got.Asks[0].String())
	assert.Nil(t, got.Bids[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_HistoryInBlobStore(t *testing.T) {
	blobs := newMemoryBlobs()
	storage, mock := newMockStorage(t, blobs)
	ctx := context.Background()
	key := historyBlobKey("BTCUSD", testTime)

	mock.ExpectExec("INSERT INTO matrix_history").
		WithArgs("BTCUSD", testTime, key, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, storage.InsertHistory(ctx, testMatrix()))
	assert.Contains(t, blobs.objects, key)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT blob_key, payload FROM matrix_history")).
		WithArgs("BTCUSD", testTime).
		WillReturnRows(sqlmock.NewRows([]string{"blob_key", "payload"}).AddRow(key, nil))

	got, err := storage.GetHistory(ctx, "BTCUSD", testTime)
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.ID)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM matrix_history")).
		WithArgs("BTCUSD", testTime).
		WillReturnRows(sqlmock.NewRows([]string{"blob_key"}).AddRow(key))

	deleted, err := storage.DeleteHistory(ctx, "BTCUSD", testTime)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, blobs.objects, key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_HistoryNotFound(t *testing.T) {
	storage, mock := newMockStorage(t, nil)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT blob_key, payload FROM matrix_history")).
		WithArgs("BTCUSD", testTime).
		WillReturnError(sql.ErrNoRows)

	_, err := storage.GetHistory(ctx, "BTCUSD", testTime)
	require.ErrorIs(t, err, domain.ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM matrix_history")).
		WithArgs("BTCUSD", testTime).
		WillReturnError(sql.ErrNoRows)

	deleted, err := storage.DeleteHistory(ctx, "BTCUSD", testTime)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestPostgresStorage_GetDateTimes(t *testing.T) {
	storage, mock := newMockStorage(t, nil)
	from := testTime.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT date_time FROM matrix_history")).
		WithArgs("BTCUSD", from, testTime).
		WillReturnRows(sqlmock.NewRows([]string{"date_time"}).
			AddRow(testTime.Add(-30 * time.Minute)).
			AddRow(testTime))

	times, err := storage.GetDateTimes(context.Background(), "BTCUSD", from, testTime)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{testTime.Add(-30 * time.Minute), testTime}, times)
}

func TestHistoryBlobKey(t *testing.T) {
	key := historyBlobKey("btcusd", testTime.Add(1500*time.Millisecond))
	assert.Equal(t, "matrix-history/BTCUSD/20240301T120001.500Z.json", key)
	assert.True(t, strings.HasSuffix(key, ".json"))
}

type statusErr struct{ code int }

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatusCode() int { return e.code }

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "no-such-key", err: &types.NoSuchKey{}, want: true},
		{name: "not-found", err: fmt.Errorf("head: %w", &types.NotFound{}), want: true},
		{name: "http-404", err: fmt.Errorf("get: %w", statusErr{code: 404}), want: true},
		{name: "http-500", err: statusErr{code: 500}, want: false},
		{name: "plain-error", err: errors.New("timeout"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}

type failingStorage struct {
	*ConsoleStorage
	calls int
}

func (f *failingStorage) StoreArbitrage(context.Context, *arbitrage.Arbitrage) error {
	f.calls++
	return errors.New("database down")
}

func TestGuardedStorage_OpensOnFailures(t *testing.T) {
	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		Name:        "storage-test",
		MaxFailures: 2,
		OpenTimeout: time.Minute,
	})
	require.NoError(t, err)

	inner := &failingStorage{ConsoleStorage: NewConsoleStorage(zap.NewNop(), "")}
	guarded := NewGuardedStorage(inner, breaker)
	ctx := context.Background()
	arb := testArbitrage(t)

	require.Error(t, guarded.StoreArbitrage(ctx, arb))
	require.Error(t, guarded.StoreArbitrage(ctx, arb))
	err = guarded.StoreArbitrage(ctx, arb)
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, inner.calls)

	_, err = guarded.GetDateTimes(ctx, "BTCUSD", testTime, testTime)
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestGuardedStorage_PassesResults(t *testing.T) {
	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		Name:        "storage-pass-test",
		MaxFailures: 1,
		OpenTimeout: time.Minute,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	guarded := NewGuardedStorage(NewConsoleStorage(zap.NewNop(), path), breaker)
	ctx := context.Background()

	s := settings.Default()
	s.QuoteAsset = "EUR"
	require.NoError(t, guarded.SaveSettings(ctx, &s))

	loaded, err := guarded.LoadSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "EUR", loaded.QuoteAsset)

	_, err = guarded.GetHistory(ctx, "BTCUSD", testTime)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "closed", breaker.State())

	require.NoError(t, guarded.Close())
}
