package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mselser95/arbitrage-detector/pkg/types"
)

// ErrOpen is returned when a call is rejected without being attempted.
var ErrOpen = errors.New("circuit breaker open")

// Breaker trips after MaxFailures consecutive failures and rejects calls for
// OpenTimeout before letting a single probe through.
type Breaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker[any]
	logger *zap.Logger
}

// Config holds circuit breaker configuration.
type Config struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

// New creates a new circuit breaker with the given configuration.
func New(cfg *Config) (*Breaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if cfg.MaxFailures == 0 {
		return nil, fmt.Errorf("max failures must be positive")
	}
	if cfg.OpenTimeout <= 0 {
		return nil, fmt.Errorf("open timeout must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Breaker{name: cfg.Name, logger: logger}

	maxFailures := cfg.MaxFailures
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful:  isSuccessful,
		OnStateChange: b.onStateChange,
	})

	BreakerState.WithLabelValues(cfg.Name).Set(stateValue(gobreaker.StateClosed))

	return b, nil
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	_, err := Call(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})

	return err
}

// Call runs fn through b and returns its result.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			BreakerRejectedTotal.WithLabelValues(b.name).Inc()
			return zero, fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		return zero, err
	}

	v, _ := res.(T)
	return v, nil
}

// State returns the current state name: closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Name returns the breaker name used in logs and metrics.
func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	BreakerState.WithLabelValues(name).Set(stateValue(to))

	if to == gobreaker.StateOpen {
		b.logger.Warn("circuit-breaker-opened",
			zap.String("breaker", name),
			zap.String("from", from.String()))
		return
	}

	b.logger.Info("circuit-breaker-state-changed",
		zap.String("breaker", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// isSuccessful counts not-found answers as successes.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, types.ErrNotFound)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
