// Package datactx holds the named data sources available to analysis.
package datactx

import (
	"errors"
	"fmt"
	"sync"

	"github.com/user/vernacular/internal/types"
)

// ErrNotFound is returned by Get for an unknown source name.
var ErrNotFound = errors.New("data source not found")

// Store keeps data sources in insertion order. Re-ingesting a name replaces
// its content in place.
type Store struct {
	mu       sync.RWMutex
	sources  map[string]*types.DataSource
	order    []string
	ingested int
}

func NewStore() *Store {
	return &Store{sources: make(map[string]*types.DataSource)}
}

// Validate reports whether name and count are acceptable for Ingest.
func Validate(name string, count int) error {
	if name == "" {
		return fmt.Errorf("ingest source: empty name")
	}
	if count < 0 {
		return fmt.Errorf("ingest source %q: negative record count %d", name, count)
	}
	return nil
}

// Ingest adds or replaces a source and adds count to the running total.
func (s *Store) Ingest(name, raw string, count int) (replaced bool, err error) {
	if err := Validate(name, count); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if src, ok := s.sources[name]; ok {
		src.RawContent = raw
		src.RecordCount = count
		replaced = true
	} else {
		s.sources[name] = &types.DataSource{Name: name, RawContent: raw, RecordCount: count}
		s.order = append(s.order, name)
	}
	s.ingested += count
	return replaced, nil
}

// Evict removes name. It reports whether anything was removed.
func (s *Store) Evict(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[name]; !ok {
		return false
	}
	delete(s.sources, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[name]
	if !ok {
		return "", fmt.Errorf("get %q: %w", name, ErrNotFound)
	}
	return src.RawContent, nil
}

// Sources returns copies of every source in insertion order.
func (s *Store) Sources() []types.DataSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.DataSource, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, *s.sources[n])
	}
	return out
}

// Snapshot returns name -> raw content. The map is a copy.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.sources))
	for n, src := range s.sources {
		out[n] = src.RawContent
	}
	return out
}

// RecordsIngested is the sum of every ingested count. Eviction never lowers it.
func (s *Store) RecordsIngested() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ingested
}
