// Package gcs provides a Google Cloud Storage implementation of the storage
// backend.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

func init() {
	storageAdapter.RegisterBackend(storageAdapter.TypeGCS, func(ctx context.Context, cfg storageAdapter.Config) (storageAdapter.Backend, error) {
		return NewBackend(ctx, cfg)
	})
}

type gcsBackend struct {
	client *gcs.Client
	bucket string
}

var _ storageAdapter.Backend = (*gcsBackend)(nil)

// NewBackend creates a GCS storage backend for cfg.Bucket. With
// cfg.CredentialsFile empty the client uses application default credentials.
func NewBackend(ctx context.Context, cfg storageAdapter.Config) (storageAdapter.Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs storage backend: bucket must be specified in configuration")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage backend: failed to create client: %w", err)
	}
	return &gcsBackend{client: client, bucket: cfg.Bucket}, nil
}

func (b *gcsBackend) Close() error {
	return b.client.Close()
}

func (b *gcsBackend) Type() string {
	return storageAdapter.TypeGCS
}

func (b *gcsBackend) Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error {
	w := b.client.Bucket(b.bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write object 'gs://%s/%s': %w", b.bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object 'gs://%s/%s': %w", b.bucket, objectName, err)
	}
	logger.Debugf("Uploaded object 'gs://%s/%s'.", b.bucket, objectName)
	return nil
}

func (b *gcsBackend) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(b.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object 'gs://%s/%s': %w", b.bucket, objectName, err)
	}
	return r, nil
}

func (b *gcsBackend) ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error {
	it := b.client.Bucket(b.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects in 'gs://%s' with prefix '%s': %w", b.bucket, prefix, err)
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (b *gcsBackend) DeleteObject(ctx context.Context, objectName string) error {
	err := b.client.Bucket(b.bucket).Object(objectName).Delete(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			logger.Warnf("Attempted to delete non-existent object 'gs://%s/%s'.", b.bucket, objectName)
			return nil
		}
		return fmt.Errorf("failed to delete object 'gs://%s/%s': %w", b.bucket, objectName, err)
	}
	return nil
}
