package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// Manager manages a single WebSocket connection to the order-book feed.
type Manager struct {
	url             string
	conn            *websocket.Conn
	logger          *zap.Logger
	reconnectMgr    *ReconnectManager
	config          Config
	messageChan     chan *types.OrderBookMessage
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	writeMu         sync.Mutex
	sources         map[string]bool
	instruments     map[string]bool
	connected       atomic.Bool
	lastPongTime    atomic.Int64
	connectionStart atomic.Int64 // Unix timestamp of connection start
}

// Config holds WebSocket manager configuration.
type Config struct {
	URL                   string
	Sources               []string
	Instruments           []string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

// subscription is the control message understood by the feed. Empty lists
// mean every source or instrument.
type subscription struct {
	Type        string   `json:"type"`
	Sources     []string `json:"sources"`
	Instruments []string `json:"instruments"`
}

// envelope detects control frames such as subscription acknowledgements.
type envelope struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// New creates a new WebSocket manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	m := &Manager{
		url:          cfg.URL,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		config:       cfg,
		messageChan:  make(chan *types.OrderBookMessage, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
		sources:      make(map[string]bool),
		instruments:  make(map[string]bool),
	}
	for _, s := range cfg.Sources {
		m.sources[s] = true
	}
	for _, i := range cfg.Instruments {
		m.instruments[i] = true
	}

	return m
}

// Start connects, sends the configured subscription and starts the read,
// ping and reconnect loops.
func (m *Manager) Start() error {
	m.logger.Info("feed-manager-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	err = m.resubscribeAll()
	if err != nil {
		return fmt.Errorf("initial subscription: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

// connect establishes a WebSocket connection.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	m.logger.Info("connecting-to-feed", zap.String("url", m.url))

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return nil
	})

	m.mu.Lock()
	previous := m.conn
	m.conn = conn
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectionStart.Store(now.Unix())
	ActiveConnections.Set(1)

	m.logger.Info("feed-connected")

	return nil
}

// Subscribe adds sources and instruments to the subscription. Entries that
// are already subscribed are not sent again.
func (m *Manager) Subscribe(sources, instruments []string) error {
	m.mu.Lock()
	newSources := addNew(m.sources, sources)
	newInstruments := addNew(m.instruments, instruments)
	m.mu.Unlock()

	if len(newSources) == 0 && len(newInstruments) == 0 {
		m.logger.Debug("feed-already-subscribed")
		return nil
	}

	err := m.send(subscription{Type: "subscribe", Sources: newSources, Instruments: newInstruments})
	if err != nil {
		m.mu.Lock()
		for _, s := range newSources {
			delete(m.sources, s)
		}
		for _, i := range newInstruments {
			delete(m.instruments, i)
		}
		m.mu.Unlock()
		m.updateSubscriptionCount()

		return fmt.Errorf("write subscribe message: %w", err)
	}

	m.updateSubscriptionCount()

	m.logger.Info("feed-subscribed",
		zap.Strings("sources", newSources),
		zap.Strings("instruments", newInstruments))

	return nil
}

// Unsubscribe removes sources and instruments from the subscription.
func (m *Manager) Unsubscribe(sources, instruments []string) error {
	m.mu.Lock()
	oldSources := removeExisting(m.sources, sources)
	oldInstruments := removeExisting(m.instruments, instruments)
	m.mu.Unlock()

	if len(oldSources) == 0 && len(oldInstruments) == 0 {
		return nil
	}

	err := m.send(subscription{Type: "unsubscribe", Sources: oldSources, Instruments: oldInstruments})
	if err != nil {
		m.mu.Lock()
		addNew(m.sources, oldSources)
		addNew(m.instruments, oldInstruments)
		m.mu.Unlock()
		m.updateSubscriptionCount()

		return fmt.Errorf("write unsubscribe message: %w", err)
	}

	m.updateSubscriptionCount()

	m.logger.Info("feed-unsubscribed",
		zap.Strings("sources", oldSources),
		zap.Strings("instruments", oldInstruments))

	return nil
}

// send writes one JSON frame. gorilla connections allow a single writer.
func (m *Manager) send(msg any) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return errors.New("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames until the connection fails.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() == nil {
				m.logger.Warn("feed-read-error", zap.Error(err))
			}

			startTime := m.connectionStart.Load()
			if startTime > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			m.connected.Store(false)
			ActiveConnections.Set(0)
			return
		}

		msgs, err := decodeFrame(message)
		if err != nil {
			previewLen := min(len(message), 100)
			m.logger.Debug("feed-unparseable-message",
				zap.Error(err),
				zap.Int("bytes", len(message)),
				zap.String("preview", string(message[:previewLen])))
			MessagesDroppedTotal.WithLabelValues("unparseable").Inc()
			continue
		}

		for _, msg := range msgs {
			MessagesReceivedTotal.WithLabelValues(msg.Source).Inc()

			select {
			case m.messageChan <- msg:
			default:
				m.logger.Warn("message-channel-full", zap.String("source", msg.Source))
				MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
			}
		}
	}
}

// decodeFrame accepts one order-book message or an array of them. Control
// frames and heartbeats decode to nothing.
func decodeFrame(frame []byte) ([]*types.OrderBookMessage, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var msgs []*types.OrderBookMessage
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("decode message array: %w", err)
		}
		return slices.DeleteFunc(msgs, func(m *types.OrderBookMessage) bool { return m == nil }), nil

	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		if env.Source == "" && env.Type != "" {
			return nil, nil
		}

		var msg types.OrderBookMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		return []*types.OrderBookMessage{&msg}, nil

	default:
		return nil, fmt.Errorf("unexpected frame starting with %q", trimmed[0])
	}
}

// pingLoop sends periodic PING messages and drops connections whose pongs
// stopped arriving.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			lastPong := time.Unix(m.lastPongTime.Load(), 0)
			if m.config.PongTimeout > 0 && time.Since(lastPong) > m.config.PongTimeout {
				m.logger.Warn("feed-pong-timeout", zap.Time("last-pong", lastPong))
				conn.Close()
				continue
			}

			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop handles reconnection when connection drops.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		m.logger.Warn("feed-connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		err = m.resubscribeAll()
		if err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.connected.Store(false)
			continue
		}

		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

// resubscribeAll sends the full subscription on a fresh connection.
func (m *Manager) resubscribeAll() error {
	m.mu.RLock()
	msg := subscription{
		Type:        "subscribe",
		Sources:     sortedKeys(m.sources),
		Instruments: sortedKeys(m.instruments),
	}
	m.mu.RUnlock()

	err := m.send(msg)
	if err != nil {
		return fmt.Errorf("write resubscribe message: %w", err)
	}

	m.updateSubscriptionCount()

	m.logger.Info("feed-resubscribed",
		zap.Int("sources", len(msg.Sources)),
		zap.Int("instruments", len(msg.Instruments)))

	return nil
}

func (m *Manager) updateSubscriptionCount() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	SubscriptionCount.WithLabelValues("source").Set(float64(len(m.sources)))
	SubscriptionCount.WithLabelValues("instrument").Set(float64(len(m.instruments)))
}

// IsConnected reports whether the feed connection is up.
func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

// MessageChan returns the channel for receiving order-book messages.
func (m *Manager) MessageChan() <-chan *types.OrderBookMessage {
	return m.messageChan
}

// Close gracefully closes the WebSocket manager.
func (m *Manager) Close() error {
	m.logger.Info("closing-feed-manager")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	close(m.messageChan)

	ActiveConnections.Set(0)

	m.logger.Info("feed-manager-closed")

	return nil
}

func addNew(set map[string]bool, values []string) []string {
	added := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || set[v] {
			continue
		}
		set[v] = true
		added = append(added, v)
	}

	return added
}

func removeExisting(set map[string]bool, values []string) []string {
	removed := make([]string, 0, len(values))
	for _, v := range values {
		if !set[v] {
			continue
		}
		delete(set, v)
		removed = append(removed, v)
	}

	return removed
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
