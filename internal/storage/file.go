package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mselser95/arbitrage-detector/internal/settings"
)

// FileSettings keeps settings in a YAML file. Writes go to a temporary file
// in the same directory and are renamed over the target.
type FileSettings struct {
	path string
	mu   sync.Mutex
}

// NewFileSettings creates a settings repository at path.
func NewFileSettings(path string) *FileSettings {
	return &FileSettings{path: path}
}

// LoadSettings returns nil when the file does not exist yet.
func (f *FileSettings) LoadSettings(_ context.Context) (*settings.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var s settings.Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode settings file %s: %w", f.path, err)
	}

	return &s, nil
}

// SaveSettings writes s as YAML through a temp file and rename.
func (f *FileSettings) SaveSettings(_ context.Context, s *settings.Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	return nil
}
