package blobstore

import (
	"context"
	"sync"
)

// MemorySink is an in-process BlobSink used by tests and by local
// development when no object-store credentials are configured.
type MemorySink struct {
	mu      sync.Mutex
	objects map[string][]byte
	base    string
}

// NewMemorySink returns an empty MemorySink whose URLs are rooted at base.
func NewMemorySink(base string) *MemorySink {
	return &MemorySink{objects: make(map[string][]byte), base: base}
}

// Put stores data under key.
func (m *MemorySink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = stored
	return nil
}

// URL resolves key against the configured base.
func (m *MemorySink) URL(key string) string {
	return joinBase(m.base, key)
}

// Get returns the bytes stored under key, for test assertions.
func (m *MemorySink) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}
