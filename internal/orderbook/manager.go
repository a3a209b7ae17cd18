// Package orderbook turns feed messages into order books and hands them to
// the detector.
package orderbook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// Processor ingests one order book. The detector implements it.
type Processor interface {
	Process(ob *types.OrderBook)
}

// Manager consumes the feed channel and forwards converted books.
type Manager struct {
	logger    *zap.Logger
	msgChan   <-chan *types.OrderBookMessage
	processor Processor
	clock     func() time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Config holds orderbook manager configuration.
type Config struct {
	Logger         *zap.Logger
	MessageChannel <-chan *types.OrderBookMessage
	Processor      Processor
	// Clock stamps messages that carry no timestamp. Defaults to time.Now.
	Clock func() time.Time
}

// New creates a new orderbook manager.
func New(cfg *Config) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Manager{
		logger:    cfg.Logger,
		msgChan:   cfg.MessageChannel,
		processor: cfg.Processor,
		clock:     clock,
	}
}

// Start starts the orderbook manager.
func (m *Manager) Start(ctx context.Context) error {
	if m.processor == nil {
		return fmt.Errorf("start orderbook manager: processor is nil")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.logger.Info("orderbook-manager-starting")

	m.wg.Add(1)
	go m.processMessages(ctx)

	return nil
}

func (m *Manager) processMessages(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("orderbook-manager-stopping")
			return
		case msg, ok := <-m.msgChan:
			if !ok {
				m.logger.Info("message-channel-closed")
				return
			}

			m.handleMessage(msg)
		}
	}
}

// handleMessage converts msg and forwards it. Malformed messages are
// dropped; ingestion never fails the feed.
func (m *Manager) handleMessage(msg *types.OrderBookMessage) {
	timer := prometheus.NewTimer(ProcessingDuration)
	defer timer.ObserveDuration()

	ob, err := ToOrderBook(msg, m.clock())
	if err != nil {
		ConversionErrorsTotal.WithLabelValues(errorReason(err)).Inc()
		m.logger.Debug("orderbook-message-dropped", zap.Error(err))
		return
	}

	UpdatesTotal.WithLabelValues(ob.Source).Inc()
	m.processor.Process(ob)
}

// ToOrderBook converts a feed message. Messages without a timestamp are
// stamped with receivedAt.
func ToOrderBook(msg *types.OrderBookMessage, receivedAt time.Time) (*types.OrderBook, error) {
	if msg == nil {
		return nil, fmt.Errorf("convert order book: nil message")
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = receivedAt
	}

	ob, err := types.NewOrderBook(msg.Source, msg.Asset, ts, toLevels(msg.Asks), toLevels(msg.Bids))
	if err != nil {
		return nil, fmt.Errorf("convert order book: %w", err)
	}

	return ob, nil
}

func toLevels(levels []types.PriceLevel) []types.VolumePrice {
	out := make([]types.VolumePrice, len(levels))
	for i, l := range levels {
		out[i] = types.NewVolumePrice(l.Price, l.Volume)
	}

	return out
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, types.ErrEmptySource):
		return "empty_source"
	case errors.Is(err, types.ErrEmptyAssetPair):
		return "empty_asset"
	default:
		return "invalid"
	}
}

// Close stops consuming and waits for the in-flight message.
func (m *Manager) Close() error {
	m.logger.Info("closing-orderbook-manager")

	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	return nil
}
