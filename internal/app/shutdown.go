package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops components in reverse start order within a 10s budget.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	err = a.wsManager.Close()
	if err != nil {
		a.logger.Error("websocket-manager-close-error", zap.Error(err))
	}

	err = a.obManager.Close()
	if err != nil {
		a.logger.Error("orderbook-manager-close-error", zap.Error(err))
	}

	err = a.matrixPublisher.Close()
	if err != nil {
		a.logger.Error("matrix-publisher-close-error", zap.Error(err))
	}

	// The detector finishes its running cycle and drains ended arbitrages
	// into storage before returning, so storage closes after it.
	err = a.arbDetector.Close()
	if err != nil {
		a.logger.Error("arbitrage-detector-close-error", zap.Error(err))
	}

	err = a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.apiCache.Close()

	// Cancel context to release anything still waiting on it
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("shutdown-timeout-exceeded")
	}

	a.logger.Info("application-shutdown-complete")

	return nil
}
