package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryCounter is a process-local fixed-window counter. Each key lives in the cache
// for exactly one window; the cache janitor drops expired keys.
type MemoryCounter struct {
	windows *cache.Cache
}

// NewMemoryCounter creates an empty MemoryCounter. cleanupInterval <= 0 disables the
// janitor; expired windows are then only replaced on the next hit.
func NewMemoryCounter(cleanupInterval time.Duration) *MemoryCounter {
	return &MemoryCounter{windows: cache.New(cache.NoExpiration, cleanupInterval)}
}

// Incr implements Counter.
func (m *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	// Add fails while the window is live; IncrementInt64 keeps its original expiry.
	// A window can expire between the two calls, hence the retry.
	for attempt := 0; attempt < 3; attempt++ {
		if err := m.windows.Add(key, int64(1), window); err == nil {
			return 1, nil
		}
		if n, err := m.windows.IncrementInt64(key, 1); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("ratelimit: window for %s kept expiring", key)
}

// DeleteExpired drops windows that have already ended.
func (m *MemoryCounter) DeleteExpired() {
	m.windows.DeleteExpired()
}

// Len returns the number of tracked keys, including expired ones not yet dropped.
func (m *MemoryCounter) Len() int {
	return m.windows.ItemCount()
}
