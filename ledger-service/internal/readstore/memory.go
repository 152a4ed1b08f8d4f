package readstore

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var errNoOwnerIndex = errors.New("store has no owner index")

// MemoryStore keeps rows in process memory.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	rows    map[string]T
	owner   Owner[T]
	byOwner map[string]map[string]struct{}
}

// NewMemoryStore builds a store. owner may be nil when rows are never listed
// by owner.
func NewMemoryStore[T any](owner Owner[T]) *MemoryStore[T] {
	return &MemoryStore[T]{
		rows:    make(map[string]T),
		owner:   owner,
		byOwner: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore[T]) Get(_ context.Context, id string) (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	return row, ok, nil
}

func (s *MemoryStore[T]) Upsert(_ context.Context, id string, row T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = row
	if s.owner != nil {
		key := s.owner(row)
		if s.byOwner[key] == nil {
			s.byOwner[key] = make(map[string]struct{})
		}
		s.byOwner[key][id] = struct{}{}
	}
	return nil
}

func (s *MemoryStore[T]) Query(_ context.Context, filter func(T) bool) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	return s.collect(ids, filter), nil
}

func (s *MemoryStore[T]) ListBy(_ context.Context, owner string) ([]T, error) {
	if s.owner == nil {
		return nil, errNoOwnerIndex
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byOwner[owner]))
	for id := range s.byOwner[owner] {
		ids = append(ids, id)
	}
	return s.collect(ids, nil), nil
}

// collect must be called with the lock held.
func (s *MemoryStore[T]) collect(ids []string, filter func(T) bool) []T {
	sort.Strings(ids)
	var out []T
	for _, id := range ids {
		if row := s.rows[id]; filter == nil || filter(row) {
			out = append(out, row)
		}
	}
	return out
}
