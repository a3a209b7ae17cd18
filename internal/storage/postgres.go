package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/internal/arbitrage"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	"github.com/mselser95/arbitrage-detector/pkg/types"
)

const settingsRowID = 1

// PostgresStorage implements Storage using PostgreSQL. Matrix snapshots are
// indexed in matrix_history; their payload lives in the blob store when one
// is configured and inline otherwise.
type PostgresStorage struct {
	db     *sql.DB
	blobs  BlobStore
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Blobs    BlobStore
	Logger   *zap.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Bool("blob-store", cfg.Blobs != nil))

	return NewPostgresStorageWithDB(db, cfg.Blobs, cfg.Logger), nil
}

// NewPostgresStorageWithDB wraps an open database handle.
func NewPostgresStorageWithDB(db *sql.DB, blobs BlobStore, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		blobs:  blobs,
		logger: logger,
	}
}

// LoadSettings returns nil when no settings row exists.
func (p *PostgresStorage) LoadSettings(ctx context.Context) (*settings.Settings, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE id = $1`, settingsRowID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}

	var s settings.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	return &s, nil
}

// SaveSettings upserts the single settings row.
func (p *PostgresStorage) SaveSettings(ctx context.Context, s *settings.Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	query := `
		INSERT INTO settings (id, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query, settingsRowID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}

	return nil
}

// StoreArbitrage stores an ended arbitrage in PostgreSQL.
func (p *PostgresStorage) StoreArbitrage(ctx context.Context, arb *arbitrage.Arbitrage) error {
	query := `
		INSERT INTO arbitrage_history (
			id, asset_pair, conversion_path, ask_source, bid_source,
			ask_price, ask_volume, bid_price, bid_volume,
			spread, volume, pnl, started_at, ended_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		arb.ID,
		arb.AssetPair.Name(),
		arb.ConversionPath(),
		arb.AskSource,
		arb.BidSource,
		arb.Ask.Price.String(),
		arb.Ask.Volume.String(),
		arb.Bid.Price.String(),
		arb.Bid.Volume.String(),
		arb.Spread.String(),
		arb.Volume.String(),
		arb.PnL.String(),
		arb.StartedAt,
		nullTime(arb.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert arbitrage: %w", err)
	}

	p.logger.Debug("arbitrage-stored",
		zap.String("arbitrage-id", arb.ID),
		zap.String("conversion-path", arb.ConversionPath()))

	return nil
}

// InsertHistory stores m under (asset pair, date time).
func (p *PostgresStorage) InsertHistory(ctx context.Context, m *matrix.Matrix) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode matrix: %w", err)
	}

	at := m.DateTime.UTC()
	var blobKey, inline any
	if p.blobs != nil {
		key := historyBlobKey(m.AssetPair, at)
		if err := p.blobs.Put(ctx, key, payload); err != nil {
			return fmt.Errorf("upload matrix: %w", err)
		}
		blobKey = key
	} else {
		inline = payload
	}

	query := `
		INSERT INTO matrix_history (asset_pair, date_time, blob_key, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_pair, date_time) DO UPDATE SET blob_key = EXCLUDED.blob_key, payload = EXCLUDED.payload
	`

	_, err = p.db.ExecContext(ctx, query, m.AssetPair, at, blobKey, inline)
	if err != nil {
		return fmt.Errorf("insert matrix history: %w", err)
	}

	return nil
}

// GetHistory returns types.ErrNotFound when no snapshot exists.
func (p *PostgresStorage) GetHistory(ctx context.Context, assetPair string, at time.Time) (*matrix.Matrix, error) {
	var (
		blobKey sql.NullString
		payload []byte
	)

	err := p.db.QueryRowContext(ctx,
		`SELECT blob_key, payload FROM matrix_history WHERE asset_pair = $1 AND date_time = $2`,
		assetPair, at.UTC()).Scan(&blobKey, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("matrix %s at %s: %w", assetPair, at.Format(time.RFC3339), types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select matrix history: %w", err)
	}

	if len(payload) == 0 && blobKey.Valid {
		if p.blobs == nil {
			return nil, fmt.Errorf("matrix %s stored in blob store %q: no blob store configured", assetPair, blobKey.String)
		}
		payload, err = p.blobs.Get(ctx, blobKey.String)
		if err != nil {
			return nil, fmt.Errorf("download matrix: %w", err)
		}
	}

	var m matrix.Matrix
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode matrix: %w", err)
	}

	return &m, nil
}

// DeleteHistory reports whether a snapshot was removed.
func (p *PostgresStorage) DeleteHistory(ctx context.Context, assetPair string, at time.Time) (bool, error) {
	var blobKey sql.NullString
	err := p.db.QueryRowContext(ctx,
		`DELETE FROM matrix_history WHERE asset_pair = $1 AND date_time = $2 RETURNING blob_key`,
		assetPair, at.UTC()).Scan(&blobKey)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete matrix history: %w", err)
	}

	if blobKey.Valid && p.blobs != nil {
		if err := p.blobs.Delete(ctx, blobKey.String); err != nil {
			p.logger.Warn("matrix-blob-delete-failed",
				zap.String("key", blobKey.String),
				zap.Error(err))
		}
	}

	return true, nil
}

// GetDateTimes lists snapshot times of assetPair within [from, to], oldest first.
func (p *PostgresStorage) GetDateTimes(ctx context.Context, assetPair string, from, to time.Time) ([]time.Time, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT date_time FROM matrix_history WHERE asset_pair = $1 AND date_time BETWEEN $2 AND $3 ORDER BY date_time`,
		assetPair, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("select matrix history times: %w", err)
	}
	defer rows.Close()

	times := make([]time.Time, 0)
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan matrix history time: %w", err)
		}
		times = append(times, t.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matrix history times: %w", err)
	}

	return times, nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

func historyBlobKey(assetPair string, at time.Time) string {
	return "matrix-history/" + strings.ToUpper(assetPair) + "/" + at.UTC().Format("20060102T150405.000Z") + ".json"
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}
