package settings

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Repository persists settings. Load returns nil when nothing is stored.
type Repository interface {
	LoadSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error
}

// Service publishes the current settings as an immutable snapshot and
// mirrors every change to the repository after the snapshot is swapped.
// Writers are serialized by a mutex; readers never lock.
type Service struct {
	mu      sync.Mutex
	current atomic.Pointer[Settings]
	repo    Repository
	logger  *zap.Logger
}

// Config holds service configuration.
type Config struct {
	// Defaults seed the service until Load finds persisted settings.
	Defaults   Settings
	Repository Repository
	Logger     *zap.Logger
}

// NewService creates a service holding cfg.Defaults.
func NewService(cfg Config) (*Service, error) {
	defaults := cfg.Defaults.Normalize()
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("validate default settings: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &Service{
		repo:   cfg.Repository,
		logger: logger,
	}
	svc.current.Store(&defaults)

	return svc, nil
}

// Load replaces the current settings with the persisted ones. When the
// repository is empty the current settings are saved as the initial value.
func (s *Service) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	stored, err := s.repo.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if stored == nil {
		initial := s.Get()
		if err := s.repo.SaveSettings(ctx, &initial); err != nil {
			return fmt.Errorf("save initial settings: %w", err)
		}
		s.logger.Info("settings-initialized")
		return nil
	}

	loaded := stored.Normalize()
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("validate stored settings: %w", err)
	}

	s.mu.Lock()
	s.current.Store(&loaded)
	s.mu.Unlock()

	s.logger.Info("settings-loaded",
		zap.Strings("base-assets", loaded.BaseAssets),
		zap.String("quote-asset", loaded.QuoteAsset),
		zap.Int("expiration-seconds", loaded.ExpirationTimeInSeconds))

	return nil
}

// Get returns a copy of the current settings.
func (s *Service) Get() Settings {
	return s.current.Load().Clone()
}

// Snapshot returns the current settings without copying. The value is
// shared and must not be modified.
func (s *Service) Snapshot() *Settings {
	return s.current.Load()
}

// Set merges update into the current settings and reports whether the
// detector state must be reset. Persistence failures are logged only.
func (s *Service) Set(ctx context.Context, update *Settings) (bool, error) {
	s.mu.Lock()
	merged, restart, err := Merge(*s.current.Load(), update)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	published := merged.Clone()
	s.current.Store(&published)
	s.mu.Unlock()

	s.logger.Info("settings-updated",
		zap.Bool("restart-needed", restart),
		zap.Strings("base-assets", merged.BaseAssets),
		zap.String("quote-asset", merged.QuoteAsset))

	if s.repo != nil {
		saved := merged.Clone()
		if err := s.repo.SaveSettings(ctx, &saved); err != nil {
			s.logger.Warn("settings-save-failed", zap.Error(err))
		}
	}

	return restart, nil
}
