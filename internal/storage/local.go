package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fileforge/internal/config"
	"fileforge/internal/faults"
)

// Local stores objects on the filesystem under the configured storage
// directory. Content types live in a sidecar file next to each object.
type Local struct {
	root string
}

const metaSuffix = ".meta"

// NewLocal initializes filesystem-backed storage rooted at the configured
// storage directory.
func NewLocal(cfg *config.Config) (*Local, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return &Local{root: cfg.Paths.StorageDir}, nil
}

func (l *Local) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", faults.Wrap(faults.ErrValidation, "storage", "resolve", "invalid object key: "+key, nil)
	}
	return filepath.Join(l.root, cleaned), nil
}

// Put stores data under key, replacing any existing object.
func (l *Local) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if contentType != "" {
		if err := os.WriteFile(path+metaSuffix, []byte(contentType), 0o644); err != nil {
			return fmt.Errorf("write object metadata: %w", err)
		}
	}
	return nil
}

// Get returns the object bytes and recorded content type.
func (l *Local) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path, err := l.resolve(key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", faults.Wrap(faults.ErrNotFound, "storage", "get", "no object for key "+key, nil)
		}
		return nil, "", fmt.Errorf("read object: %w", err)
	}
	contentType := "application/octet-stream"
	if meta, err := os.ReadFile(path + metaSuffix); err == nil && len(meta) > 0 {
		contentType = string(meta)
	}
	return data, contentType, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := os.Remove(path + metaSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object metadata: %w", err)
	}
	return nil
}

// Exists reports whether an object is stored under key.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}
