// Package history keeps the bounded, most-recent-first log of submitted jobs
// per provider in the local key-value store.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/videogen/internal/kv"
	"github.com/maauso/videogen/internal/provider"
)

// DefaultCapacity is the maximum number of entries kept per provider.
const DefaultCapacity = 100

// Entry is the persisted snapshot of a job at its last known status.
type Entry struct {
	ID          string            `json:"id"`
	Prompt      string            `json:"prompt"`
	Status      string            `json:"status,omitempty"`
	VideoURL    string            `json:"videoUrl,omitempty"`
	Error       string            `json:"error,omitempty"`
	FirstImage  string            `json:"firstImage,omitempty"`
	AspectRatio string            `json:"aspectRatio,omitempty"`
	Orientation string            `json:"orientation,omitempty"`
	Settings    provider.Settings `json:"settings"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Key returns the store key holding a provider's history.
func Key(p provider.Name) string {
	return fmt.Sprintf("%s_history", p)
}

// Store reads and writes history sequences.
type Store struct {
	kv       kv.Store
	capacity int
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a history store over store.
func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:       store,
		capacity: DefaultCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity returns the per-provider entry limit.
func (s *Store) Capacity() int {
	return s.capacity
}

// Load returns the stored history for p, most recent first.
// Missing or unparsable data yields an empty sequence.
func (s *Store) Load(p provider.Name) []Entry {
	raw, ok := s.kv.Get(Key(p))
	if !ok || raw == "" {
		return []Entry{}
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("ignoring unparsable history",
			slog.String("provider", string(p)),
			slog.String("error", err.Error()),
		)
		return []Entry{}
	}
	if entries == nil {
		return []Entry{}
	}
	return entries
}

// Save writes entries for p, truncated to the capacity.
// Saving the same sequence twice produces the same bytes.
func (s *Store) Save(p provider.Name, entries []Entry) error {
	if len(entries) > s.capacity {
		entries = entries[:s.capacity]
	}
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := s.kv.Set(Key(p), string(data)); err != nil {
		return fmt.Errorf("history: save %s: %w", p, err)
	}
	return nil
}

// Prepend inserts e at the front of p's history and saves the result,
// evicting the oldest entries beyond the capacity.
func (s *Store) Prepend(p provider.Name, e Entry) error {
	current := s.Load(p)
	next := make([]Entry, 0, len(current)+1)
	next = append(next, e)
	next = append(next, current...)
	return s.Save(p, next)
}

// Clear removes p's whole history.
func (s *Store) Clear(p provider.Name) error {
	if err := s.kv.Remove(Key(p)); err != nil {
		return fmt.Errorf("history: clear %s: %w", p, err)
	}
	return nil
}

// Find returns the entry of p with the given job id.
func (s *Store) Find(p provider.Name, id string) (Entry, bool) {
	for _, e := range s.Load(p) {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Sourced is an Entry tagged with the provider it came from.
type Sourced struct {
	Entry
	Source provider.Name `json:"source"`
}

// Unified concatenates the histories of providers in the given order,
// tagging each entry with its source. When filter is non-empty only that
// provider's entries are returned.
func (s *Store) Unified(providers []provider.Name, filter provider.Name) []Sourced {
	out := []Sourced{}
	for _, p := range providers {
		if filter != "" && filter != p {
			continue
		}
		for _, e := range s.Load(p) {
			out = append(out, Sourced{Entry: e, Source: p})
		}
	}
	return out
}
