package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mzyy94/cs108ctl/internal/reader"
)

// Store persists the reader settings across restarts in a JSON file.
type Store struct {
	mu       sync.RWMutex
	settings reader.Settings
	path     string
}

// NewStore creates a Store that persists settings to dataDir/settings.json.
// If the file does not exist or is invalid, defaults are used.
func NewStore(dataDir string, defaults reader.Settings) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	s := &Store{
		path:     filepath.Join(dataDir, "settings.json"),
		settings: defaults,
	}
	s.load()
	return s, nil
}

// NewMemoryStore creates a Store without file persistence.
func NewMemoryStore(defaults reader.Settings) *Store {
	return &Store{settings: defaults}
}

// Get returns a copy of the current settings.
func (s *Store) Get() reader.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update replaces the settings and persists them.
func (s *Store) Update(settings reader.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.save()
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return // missing file: defaults
	}
	var stored reader.Settings
	if err := json.Unmarshal(data, &stored); err != nil {
		slog.Warn("invalid settings file, using defaults", "path", s.path, "err", err)
		return
	}
	// Run the stored values through the same checks as an API update.
	epc, power, prefix := stored.TargetEPC, stored.Power, stored.BarcodePrefix
	merged, err := s.settings.Apply(reader.SettingsPatch{TargetEPC: &epc, Power: &power, BarcodePrefix: &prefix})
	if err != nil {
		slog.Warn("invalid stored settings, using defaults", "path", s.path, "err", err)
		return
	}
	s.settings = merged
}

func (s *Store) save() error {
	if s.path == "" {
		return nil // memory-only
	}
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
