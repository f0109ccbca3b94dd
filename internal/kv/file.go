package kv

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is the name of the store file inside the data directory.
const DefaultFileName = "store.json"

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// FileStore is a Store persisted as a single JSON object on local disk.
// Every mutation rewrites the file through a temp file and rename, so a crash
// leaves either the old or the new content, never a torn write.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	items  map[string]string
	logger *slog.Logger
}

// OpenFileStore opens the store file under dir, creating dir if needed.
// A missing file yields an empty store. An unparsable file is logged and
// treated as empty; it is overwritten on the next mutation.
func OpenFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, fmt.Errorf("kv: data directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("kv: create data directory: %w", err)
	}

	s := &FileStore{
		path:   filepath.Join(dir, DefaultFileName),
		items:  make(map[string]string),
		logger: logger,
	}

	raw, err := os.ReadFile(s.path) // #nosec G304 - path is built from configured data dir
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("kv: read store file: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.items); err != nil {
			logger.Warn("discarding unparsable store file",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
			s.items = make(map[string]string)
		}
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores value under key and flushes the file.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.items[key]
	s.items[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.items[key] = prev
		} else {
			delete(s.items, key)
		}
		return err
	}
	return nil
}

// Remove deletes key and flushes the file.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.items[key]
	if !had {
		return nil
	}
	delete(s.items, key)
	if err := s.flush(); err != nil {
		s.items[key] = prev
		return err
	}
	return nil
}

// Keys returns all keys in ascending order.
func (s *FileStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.items)
}

// flush writes the whole map to disk. Callers hold s.mu.
func (s *FileStore) flush() error {
	// encoding/json sorts map keys, so equal contents give equal bytes.
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("kv: marshal store: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(s.path), DefaultFileName+"_*")
	if err != nil {
		return fmt.Errorf("kv: create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("kv: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("kv: close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("kv: replace store file: %w", err)
	}
	return nil
}
