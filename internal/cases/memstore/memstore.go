// Package memstore provides an in-memory implementation of cases.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/medtriage/internal/cases"
)

// Store holds triage cases in memory. Suitable for dev/testing.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*cases.Case // case ID -> case
	seen map[string]string      // image fingerprint -> case ID (dedup)
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		byID: make(map[string]*cases.Case),
		seen: make(map[string]string),
	}
}

// Get retrieves a case by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*cases.Case, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

// GetByFingerprint retrieves a case by image fingerprint, for deduplication. Returns a copy.
func (s *Store) GetByFingerprint(_ context.Context, fp string) (*cases.Case, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.seen[fp]
	if !ok {
		return nil, false, nil
	}
	c := s.byID[id]
	cp := *c
	return &cp, true, nil
}

// Put stores a copy of the case.
func (s *Store) Put(_ context.Context, c *cases.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.byID[c.ID] = &cp
	s.seen[c.Fingerprint] = c.ID
	return nil
}
