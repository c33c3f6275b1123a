// Package device provides device-level utilities shared by the concrete
// device backends.
package device

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AliasStore maps device serials to user-chosen display names, persisted
// as a JSON file with replace-on-save.
type AliasStore struct {
	path    string
	mu      sync.Mutex
	aliases map[string]string
}

func NewAliasStore(dataDir string) (*AliasStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	s := &AliasStore{
		path:    filepath.Join(dataDir, "device_aliases.json"),
		aliases: make(map[string]string),
	}
	s.load()
	return s, nil
}

func (s *AliasStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &s.aliases); err != nil {
		slog.Warn("alias: failed to load aliases", "error", err)
		s.aliases = make(map[string]string)
	}
}

func (s *AliasStore) save() error {
	data, err := json.MarshalIndent(s.aliases, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Get returns the alias for a serial, empty when none is set.
func (s *AliasStore) Get(serial string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliases[serial]
}

// Set stores an alias; an empty alias removes the entry.
func (s *AliasStore) Set(serial, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alias == "" {
		delete(s.aliases, serial)
	} else {
		s.aliases[serial] = alias
	}
	return s.save()
}

func (s *AliasStore) Delete(serial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.aliases[serial]; !ok {
		return nil
	}
	delete(s.aliases, serial)
	return s.save()
}

// All returns a copy of the serial → alias map.
func (s *AliasStore) All() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out
}
