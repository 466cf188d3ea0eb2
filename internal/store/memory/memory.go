package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/majidshakoor42/rozanahisab/internal/store"
)

type Store struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

func New() *Store {
	return &Store{values: make(map[string]string)}
}

// NewSeeded returns a store preloaded with raw collection values.
func NewSeeded(values map[string]string) *Store {
	s := New()
	maps.Copy(s.values, values)
	return s
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, store.ErrClosed
	}
	val, ok := s.values[key]
	return val, ok, nil
}

func (s *Store) SetMany(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	maps.Copy(s.values, values)
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.values = make(map[string]string)
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Snapshot returns a copy of every stored value.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
