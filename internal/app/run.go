package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Strings("feed-sources", a.cfg.FeedSources),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		a.cancel()
		return err
	}

	// Mark as ready
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("feed-url", a.cfg.FeedURL))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	// Persisted settings win over env defaults; a failing store keeps the defaults.
	err := a.settings.Load(a.ctx)
	if err != nil {
		a.logger.Warn("settings-load-failed-using-defaults", zap.Error(err))
	}

	err = a.arbDetector.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start arbitrage detector: %w", err)
	}

	err = a.obManager.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start orderbook manager: %w", err)
	}

	err = a.wsManager.Start()
	if err != nil {
		return fmt.Errorf("start websocket manager: %w", err)
	}

	err = a.matrixPublisher.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start matrix publisher: %w", err)
	}

	a.wg.Add(1)
	go a.runHTTPServer()

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
		a.cancel()
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
