package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/internal/arbitrage"
	"github.com/mselser95/arbitrage-detector/internal/circuitbreaker"
	"github.com/mselser95/arbitrage-detector/internal/matrix"
	"github.com/mselser95/arbitrage-detector/internal/orderbook"
	"github.com/mselser95/arbitrage-detector/internal/settings"
	"github.com/mselser95/arbitrage-detector/internal/storage"
	"github.com/mselser95/arbitrage-detector/pkg/cache"
	"github.com/mselser95/arbitrage-detector/pkg/config"
	"github.com/mselser95/arbitrage-detector/pkg/healthprobe"
	"github.com/mselser95/arbitrage-detector/pkg/httpserver"
	"github.com/mselser95/arbitrage-detector/pkg/websocket"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := setupHealthChecker()

	apiCache, err := setupCache(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	store, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		apiCache.Close()
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	settingsService, err := settings.NewService(settings.Config{
		Defaults:   cfg.Settings(),
		Repository: store,
		Logger:     logger,
	})
	if err != nil {
		store.Close()
		apiCache.Close()
		cancel()
		return nil, fmt.Errorf("setup settings: %w", err)
	}

	arbDetector := setupArbitrageDetector(logger, settingsService, store)
	wsManager := setupWebSocketManager(cfg, logger)
	obManager := setupOrderbookManager(logger, wsManager, arbDetector)
	publisher := setupMatrixPublisher(cfg, logger, arbDetector, store)

	healthChecker.AddCheck("feed", func() error {
		if !wsManager.IsConnected() {
			return errors.New("feed disconnected")
		}
		return nil
	})

	httpServer := setupHTTPServer(cfg, logger, healthChecker, arbDetector, store, apiCache)

	return &App{
		cfg:             cfg,
		logger:          logger,
		healthChecker:   healthChecker,
		httpServer:      httpServer,
		wsManager:       wsManager,
		obManager:       obManager,
		settings:        settingsService,
		arbDetector:     arbDetector,
		matrixPublisher: publisher,
		storage:         store,
		apiCache:        apiCache,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// OpenStorage creates the configured backend behind the persistence breaker.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		Name:        "storage-" + cfg.StorageMode,
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
		Logger:      logger,
	})
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("create storage breaker: %w", err)
	}

	return storage.NewGuardedStorage(backend, breaker), nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode != "postgres" {
		return storage.NewConsoleStorage(logger, cfg.SettingsFile), nil
	}

	var blobs storage.BlobStore
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3BlobStore(ctx, storage.S3Config{
			Endpoint:       cfg.S3Endpoint,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 blob store: %w", err)
		}
		blobs = s3Store
	}

	pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		Database: cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
		Blobs:    blobs,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres storage: %w", err)
	}

	return pgStorage, nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupCache(cfg *config.Config, logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: cfg.CacheNumCounters,
		MaxCost:     cfg.CacheMaxCost,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupArbitrageDetector(
	logger *zap.Logger,
	settingsService *settings.Service,
	store storage.Storage,
) *arbitrage.Detector {
	return arbitrage.New(arbitrage.Config{
		Settings: settingsService,
		Storage:  store,
		Logger:   logger,
	})
}

func setupWebSocketManager(cfg *config.Config, logger *zap.Logger) *websocket.Manager {
	return websocket.New(websocket.Config{
		URL:                   cfg.FeedURL,
		Sources:               cfg.FeedSources,
		Instruments:           cfg.FeedInstruments,
		DialTimeout:           cfg.FeedDialTimeout,
		PongTimeout:           cfg.FeedPongTimeout,
		PingInterval:          cfg.FeedPingInterval,
		ReconnectInitialDelay: cfg.FeedReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.FeedReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.FeedReconnectBackoffMult,
		MessageBufferSize:     cfg.FeedBufferSize,
		Logger:                logger,
	})
}

func setupOrderbookManager(
	logger *zap.Logger,
	wsManager *websocket.Manager,
	arbDetector *arbitrage.Detector,
) *orderbook.Manager {
	return orderbook.New(&orderbook.Config{
		Logger:         logger,
		MessageChannel: wsManager.MessageChan(),
		Processor:      arbDetector,
	})
}

func setupMatrixPublisher(
	cfg *config.Config,
	logger *zap.Logger,
	arbDetector *arbitrage.Detector,
	store storage.Storage,
) *matrix.Publisher {
	return matrix.NewPublisher(matrix.Config{
		Interval: cfg.MatrixSnapshotInterval,
		Logger:   logger,
	}, arbDetector, store)
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	arbDetector *arbitrage.Detector,
	store storage.Storage,
	apiCache cache.Cache,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Detector:      arbDetector,
		MatrixHistory: store,
		Cache:         cache.NewAside(apiCache, cfg.APICacheTTL),
	})
}
