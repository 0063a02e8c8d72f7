// Package storage abstracts the object store holding model artifacts and
// parquet exports, with local file system and GCS backends selected by
// configuration.
package storage

import (
	"context"
	"fmt"
	"io"
)

// Backend type identifiers.
const (
	TypeLocal = "local"
	TypeGCS   = "gcs"
)

// Config holds the settings of one storage backend.
type Config struct {
	Type string `yaml:"type"`
	// BaseDir is the root directory of the local backend.
	BaseDir string `yaml:"base_dir"`
	// Bucket is the GCS bucket of the gcs backend.
	Bucket string `yaml:"bucket"`
	// CredentialsFile optionally points at a service account key for the gcs
	// backend; empty means application default credentials.
	CredentialsFile string `yaml:"credentials_file"`
}

// Backend defines generic object store operations over a single configured
// bucket or directory.
type Backend interface {
	// Upload writes data under objectName. contentType is the MIME type of the
	// data; local backends may ignore it.
	Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error
	// Download opens the object for reading. The returned ReadCloser must be
	// closed by the caller.
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object name under prefix. Returning an
	// error from fn stops the walk.
	ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error
	// DeleteObject removes the object. Deleting a non-existent object is not an
	// error.
	DeleteObject(ctx context.Context, objectName string) error
	// Close releases backend resources.
	Close() error
	// Type returns the backend type identifier.
	Type() string
}

// BackendFactory creates a Backend from a Config.
type BackendFactory func(ctx context.Context, cfg Config) (Backend, error)

var backendRegistry = make(map[string]BackendFactory)

// RegisterBackend registers a BackendFactory for the given backend type.
// Importing a backend subpackage registers its factory.
func RegisterBackend(backendType string, factory BackendFactory) {
	backendRegistry[backendType] = factory
}

// NewBackend creates the Backend selected by cfg.Type.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	factory, ok := backendRegistry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for type: %s", cfg.Type)
	}
	return factory(ctx, cfg)
}
