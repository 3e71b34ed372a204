package sso

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mrveiss/AutoBot-AI-sub025/pkg/observability"
)

// ProviderStore persists provider records to durable storage.
type ProviderStore interface {
	// Save writes a provider record, overwriting any prior record with the
	// same ID.
	Save(provider *Provider) error

	// LoadAll returns every stored provider. Malformed records are skipped,
	// not fatal.
	LoadAll() ([]*Provider, error)

	// Delete removes a provider record. Deleting a missing record is not an
	// error.
	Delete(providerID string) error
}

// FileProviderStore stores one JSON file per provider under a directory.
// Writes go through a temp file followed by rename so a crash mid-write never
// corrupts a previously stored record.
type FileProviderStore struct {
	dir    string
	mu     sync.Mutex
	logger *observability.Logger
}

// NewFileProviderStore creates the store directory if needed.
func NewFileProviderStore(dir string, logger *observability.Logger) (*FileProviderStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create provider store directory: %w", err)
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &FileProviderStore{dir: dir, logger: logger}, nil
}

// Dir returns the directory backing the store.
func (s *FileProviderStore) Dir() string {
	return s.dir
}

// Save serializes the provider to <dir>/<id>.json with atomic replace.
func (s *FileProviderStore) Save(provider *Provider) error {
	if provider == nil || provider.ID == "" {
		return fmt.Errorf("provider ID is required")
	}

	data, err := json.MarshalIndent(provider, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal provider %s: %w", provider.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	final := s.path(provider.ID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write provider %s: %w", provider.ID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace provider %s: %w", provider.ID, err)
	}
	return nil
}

// LoadAll reads every .json file in the directory. Unreadable or malformed
// records are logged and skipped.
func (s *FileProviderStore) LoadAll() ([]*Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider store directory: %w", err)
	}

	var providers []*Provider
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.WithError(err).WithField("file", entry.Name()).Warn("skipping unreadable provider record")
			continue
		}
		var p Provider
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.WithError(err).WithField("file", entry.Name()).Warn("skipping malformed provider record")
			continue
		}
		if p.ID == "" || !p.Protocol.Valid() {
			s.logger.WithField("file", entry.Name()).Warn("skipping provider record with missing id or protocol")
			continue
		}
		providers = append(providers, &p)
	}
	return providers, nil
}

// Delete removes the record file for a provider.
func (s *FileProviderStore) Delete(providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(providerID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete provider %s: %w", providerID, err)
	}
	return nil
}

// Load reads a single provider record by ID.
func (s *FileProviderStore) Load(providerID string) (*Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(providerID))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider %s: %w", providerID, err)
	}
	var p Provider
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider %s: %w", providerID, err)
	}
	return &p, nil
}

func (s *FileProviderStore) path(providerID string) string {
	// Provider IDs are generated UUIDs, but sanitize anyway so a crafted ID
	// cannot escape the store directory.
	safe := strings.ReplaceAll(filepath.Base(providerID), string(os.PathSeparator), "_")
	return filepath.Join(s.dir, safe+".json")
}
