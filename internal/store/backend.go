package store

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Backend persists serialized collection documents under string keys.
type Backend interface {
	// Read returns the document stored under key, or ok=false if none exists.
	Read(ctx context.Context, key string) (data []byte, ok bool, err error)
	// Write stores every document in docs atomically. A nil document deletes its key.
	Write(ctx context.Context, docs map[string][]byte) error
	// Keys lists the keys that currently hold a document.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryBackend keeps documents in process memory.
type MemoryBackend struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

// Read implements Backend.
func (m *MemoryBackend) Read(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	data, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

// Write implements Backend.
func (m *MemoryBackend) Write(_ context.Context, docs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for key, data := range docs {
		if data == nil {
			delete(m.docs, key)
			continue
		}
		m.docs[key] = slices.Clone(data)
	}
	return nil
}

// Keys implements Backend.
func (m *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return slices.Sorted(maps.Keys(m.docs)), nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
