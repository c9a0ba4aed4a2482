package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileOptions configures FileBackend.
type FileOptions struct {
	Dir string `mapstructure:"dir"`
}

// FileBackend stores each key as a small text file under a directory.
// Writes use temp-file + atomic rename to stay crash safe.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a FileBackend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("file backend requires 'dir' option")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file backend: create directory %q: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func newFileBackendFromOptions(options map[string]any, _ Deps) (Backend, error) {
	var opts FileOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewFileBackend(opts.Dir)
}

func (f *FileBackend) Name() string { return "file" }

// Load reads the decimal value stored for key.
func (f *FileBackend) Load(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return 0, fmt.Errorf("file backend: read %q: %w", key, err)
	}
	return parseHP(string(data))
}

// Save atomically writes hp using a unique temp file + rename.
func (f *FileBackend) Save(ctx context.Context, key string, hp int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(f.dir, "."+fileName(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("file backend: create temp file for %q: %w", key, err)
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.WriteString(formatHP(hp)); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("file backend: write temp file for %q: %w", key, err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file backend: close temp file for %q: %w", key, err)
	}

	final := f.path(key)
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file backend: rename temp -> %q: %w", final, err)
	}

	slog.Debug("combat state persisted", "backend", "file", "key", key, "hp", hp)
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.dir, fileName(key))
}

// fileName maps a key such as "boss:hp" to a portable file name.
func fileName(key string) string {
	r := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return r.Replace(key)
}
