package matrix

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HistoryRepository persists matrix snapshots keyed by asset pair and time.
// GetHistory returns types.ErrNotFound when no snapshot exists.
type HistoryRepository interface {
	InsertHistory(ctx context.Context, m *Matrix) error
	GetHistory(ctx context.Context, assetPair string, at time.Time) (*Matrix, error)
	DeleteHistory(ctx context.Context, assetPair string, at time.Time) (bool, error)
	GetDateTimes(ctx context.Context, assetPair string, from, to time.Time) ([]time.Time, error)
}

// Source provides the public matrices to snapshot.
type Source interface {
	PublicAssetPairs() []string
	GetPublicMatrix(assetPair string) (*Matrix, error)
}

// Config holds publisher configuration.
type Config struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Publisher periodically stores the public matrices of every listed pair.
type Publisher struct {
	config Config
	logger *zap.Logger
	source Source
	repo   HistoryRepository
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher creates a new matrix publisher.
func NewPublisher(cfg Config, source Source, repo HistoryRepository) *Publisher {
	return &Publisher{
		config: cfg,
		logger: cfg.Logger,
		source: source,
		repo:   repo,
	}
}

// Start begins publishing on every interval tick.
func (p *Publisher) Start(ctx context.Context) error {
	if p.config.Interval <= 0 {
		return fmt.Errorf("start matrix publisher: interval must be positive")
	}

	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("matrix-publisher-starting", zap.Duration("interval", p.config.Interval))

	p.wg.Add(1)
	go p.publishLoop(ctx)

	return nil
}

func (p *Publisher) publishLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("matrix-publisher-stopping")
			return
		case <-ticker.C:
			if err := p.Publish(ctx); err != nil {
				p.logger.Warn("matrix-publish-failed", zap.Error(err))
			}
		}
	}
}

// Publish snapshots every public asset pair concurrently.
func (p *Publisher) Publish(ctx context.Context) error {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, pair := range p.source.PublicAssetPairs() {
		g.Go(func() error {
			m, err := p.source.GetPublicMatrix(pair)
			if err != nil {
				return fmt.Errorf("build matrix %s: %w", pair, err)
			}
			if len(m.Exchanges) == 0 {
				return nil
			}

			if err := p.repo.InsertHistory(gctx, m); err != nil {
				SnapshotsTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("insert matrix %s: %w", pair, err)
			}
			SnapshotsTotal.WithLabelValues("ok").Inc()

			return nil
		})
	}

	err := g.Wait()
	PublishDurationSeconds.Observe(time.Since(start).Seconds())

	return err
}

// Close stops the publisher and waits for the running round.
func (p *Publisher) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("matrix-publisher-closed")

	return nil
}
