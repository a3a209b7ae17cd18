package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/internal/arbitrage"
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

// App is the main application orchestrator.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	healthChecker   *healthprobe.HealthChecker
	httpServer      *httpserver.Server
	wsManager       *websocket.Manager
	obManager       *orderbook.Manager
	settings        *settings.Service
	arbDetector     *arbitrage.Detector
	matrixPublisher *matrix.Publisher
	storage         storage.Storage
	apiCache        cache.Cache
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}
