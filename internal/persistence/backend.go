// Package persistence stores the boss hit points behind a pluggable backend.
//
// The in-memory combat state is authoritative; backends are a write-behind
// mirror that lets a restarted daemon resume from the last known value.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned by Load when the key has never been written.
	ErrNotFound = errors.New("persistence: key not found")
	// ErrUnknownBackend is returned by Open for an unregistered backend name.
	ErrUnknownBackend = errors.New("persistence: unknown backend")
)

// Backend persists a single hit-point value per key as a decimal string.
// All implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the registered backend name.
	Name() string
	// Load returns the stored value or an error wrapping ErrNotFound.
	Load(ctx context.Context, key string) (int, error)
	// Save overwrites the stored value.
	Save(ctx context.Context, key string, hp int) error
	// Close releases resources owned by the backend.
	Close() error
}

// Deps carries shared clients a backend factory may need.
type Deps struct {
	Redis redis.Cmdable
}

// Factory builds a backend from its decoded options.
type Factory func(options map[string]any, deps Deps) (Backend, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a backend available under name. Registering a name twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("persistence: backend %q already registered", name))
	}
	factories[name] = factory
}

// Open builds the backend registered under name.
func Open(name string, options map[string]any, deps Deps) (Backend, error) {
	registryMu.RLock()
	factory, ok := factories[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownBackend, name, strings.Join(Backends(), ", "))
	}
	backend, err := factory(options, deps)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", name, err)
	}
	return backend, nil
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("memory", func(map[string]any, Deps) (Backend, error) { return NewMemoryBackend(), nil })
	Register("file", newFileBackendFromOptions)
	Register("redis", newRedisBackendFromOptions)
	Register("sqlite", newSQLiteBackendFromOptions)
}

// decodeOptions decodes a loosely typed option map into a backend option struct.
func decodeOptions(options map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

func formatHP(hp int) string {
	return strconv.Itoa(hp)
}

func parseHP(raw string) (int, error) {
	hp, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("persistence: stored value %q is not a decimal integer: %w", raw, err)
	}
	return hp, nil
}
