// Package local provides a local file system implementation of the storage
// backend.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	storageAdapter "github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

func init() {
	storageAdapter.RegisterBackend(storageAdapter.TypeLocal, func(_ context.Context, cfg storageAdapter.Config) (storageAdapter.Backend, error) {
		return NewBackend(cfg)
	})
}

type localBackend struct {
	baseDir string
}

var _ storageAdapter.Backend = (*localBackend)(nil)

// NewBackend creates a local storage backend rooted at cfg.BaseDir, creating
// the directory if it does not exist.
func NewBackend(cfg storageAdapter.Config) (storageAdapter.Backend, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage backend: base_dir must be specified in configuration")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("local storage backend: failed to stat base_dir '%s': %w", cfg.BaseDir, err)
		}
		if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("local storage backend: failed to create base_dir '%s': %w", cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage backend: base_dir '%s' is not a directory", cfg.BaseDir)
	}
	return &localBackend{baseDir: cfg.BaseDir}, nil
}

func (b *localBackend) Close() error {
	return nil
}

func (b *localBackend) Type() string {
	return storageAdapter.TypeLocal
}

func (b *localBackend) Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error {
	fullPath, err := b.resolvePath(objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for upload: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", filepath.Dir(fullPath), err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", fullPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("failed to write data to file '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded object '%s' (local backend).", objectName)
	return nil
}

func (b *localBackend) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	fullPath, err := b.resolvePath(objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

func (b *localBackend) ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error {
	err := filepath.WalkDir(b.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		objectName, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for '%s': %w", path, err)
		}
		objectName = filepath.ToSlash(objectName)
		if prefix != "" && !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("failed to list objects with prefix '%s': %w", prefix, err)
	}
	return nil
}

func (b *localBackend) DeleteObject(ctx context.Context, objectName string) error {
	fullPath, err := b.resolvePath(objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for delete: %w", err)
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("Attempted to delete non-existent object '%s' (local backend).", objectName)
			return nil
		}
		return fmt.Errorf("failed to delete file '%s': %w", fullPath, err)
	}
	return nil
}

// resolvePath resolves an object name under baseDir and rejects paths that
// escape it.
func (b *localBackend) resolvePath(objectName string) (string, error) {
	fullPath := filepath.Join(b.baseDir, filepath.FromSlash(objectName))

	absBaseDir, err := filepath.Abs(b.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for base_dir '%s': %w", b.baseDir, err)
	}
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", fullPath, err)
	}
	if !strings.HasPrefix(absFullPath, absBaseDir) {
		return "", fmt.Errorf("resolved path '%s' is outside of base_dir '%s'", fullPath, b.baseDir)
	}
	return fullPath, nil
}
