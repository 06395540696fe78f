package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/stratadb/strata/internal/layer"
)

type memEntry struct {
	parent layer.ID
	data   []byte
}

// Memory is an in-process Store used by tests.
type Memory struct {
	mu     sync.RWMutex
	layers map[layer.ID]memEntry
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{layers: make(map[layer.ID]memEntry)}
}

// Put implements Store.
func (s *Memory) Put(ctx context.Context, id layer.ID, parent layer.ID, data []byte) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if layer.Hash(data) != id {
		return PutMismatch, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[id]; ok {
		return PutAlreadyPresent, nil
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.layers[id] = memEntry{parent: parent, data: stored}
	return PutOK, nil
}

// Get implements Store.
func (s *Memory) Get(ctx context.Context, id layer.ID) (layer.ID, []byte, error) {
	if err := ctx.Err(); err != nil {
		return layer.Zero, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.layers[id]
	if !ok {
		return layer.Zero, nil, fmt.Errorf("layer %s: %w", id, ErrNotFound)
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return e.parent, data, nil
}

// Parent implements Store.
func (s *Memory) Parent(ctx context.Context, id layer.ID) (layer.ID, error) {
	if err := ctx.Err(); err != nil {
		return layer.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.layers[id]
	if !ok {
		return layer.Zero, fmt.Errorf("layer %s: %w", id, ErrNotFound)
	}
	return e.parent, nil
}

// Has implements Store.
func (s *Memory) Has(ctx context.Context, id layer.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.layers[id]
	return ok, nil
}

// Close implements Store.
func (s *Memory) Close() error {
	return nil
}

// Len returns the number of stored layers.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers)
}
