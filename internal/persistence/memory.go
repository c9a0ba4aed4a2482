package persistence

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend keeps values in process memory. State does not survive a restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Load(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	raw, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return parseHP(raw)
}

func (m *MemoryBackend) Save(ctx context.Context, key string, hp int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.values[key] = formatHP(hp)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
