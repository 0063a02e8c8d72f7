// Package registry versions trained model artifacts in the object store. A
// model is a named directory of files (the serialized model plus its
// evaluation images) stored under models/<name>/<version>/; inference always
// resolves the newest version of a name.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

const moduleName = "registry"

const (
	modelPrefix      = "models"
	metadataFileName = "metadata.json"
)

// ModelName derives the registry name of a per-source, per-section model.
func ModelName(source, section string) string {
	return fmt.Sprintf("%s_gbdt_model_%s", source, strings.ToLower(section))
}

// Metadata describes one registered model version.
type Metadata struct {
	Name        string             `json:"name"`
	Version     int                `json:"version"`
	Description string             `json:"description"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Registry stores and resolves model versions through a storage backend.
type Registry struct {
	backend storage.Backend
}

// NewRegistry creates a Registry over a storage backend.
func NewRegistry(backend storage.Backend) *Registry {
	return &Registry{backend: backend}
}

// Save registers a new model version: every file under localDir is uploaded
// to the version's prefix, followed by the metadata document. The version is
// the successor of the newest registered version of the name, starting at 1.
func (r *Registry) Save(ctx context.Context, name string, meta Metadata, localDir string) (int, error) {
	version, err := r.LatestVersion(ctx, name)
	if err != nil && !exception.IsModelNotFound(err) {
		return 0, err
	}
	version++

	prefix := path.Join(modelPrefix, name, strconv.Itoa(version))
	err = filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		file, err := os.Open(p)
		if err != nil {
			return err
		}
		defer file.Close()
		objectName := path.Join(prefix, filepath.ToSlash(rel))
		return r.backend.Upload(ctx, objectName, file, contentTypeOf(rel))
	})
	if err != nil {
		return 0, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to upload artifacts for model '%s' v%d", name, version), err, true)
	}

	meta.Name = name
	meta.Version = version
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	doc, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return 0, exception.NewPipelineError(moduleName, "failed to encode model metadata", err, false)
	}
	if err := r.backend.Upload(ctx, path.Join(prefix, metadataFileName), bytes.NewReader(doc), "application/json"); err != nil {
		return 0, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to upload metadata for model '%s' v%d", name, version), err, true)
	}

	logger.Infof("Registered model '%s' v%d (%d metric(s)).", name, version, len(meta.Metrics))
	return version, nil
}

// LatestVersion resolves the newest registered version of a model name, or an
// error wrapping exception.ErrModelNotFound when the name has no versions.
func (r *Registry) LatestVersion(ctx context.Context, name string) (int, error) {
	prefix := path.Join(modelPrefix, name) + "/"
	latest := 0
	err := r.backend.ListObjects(ctx, prefix, func(objectName string) error {
		rest := strings.TrimPrefix(objectName, prefix)
		idx := strings.IndexByte(rest, '/')
		if idx <= 0 {
			return nil
		}
		if v, err := strconv.Atoi(rest[:idx]); err == nil && v > latest {
			latest = v
		}
		return nil
	})
	if err != nil {
		return 0, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to list versions of model '%s'", name), err, true)
	}
	if latest == 0 {
		return 0, exception.NewPipelineError(moduleName,
			fmt.Sprintf("model '%s' has no registered versions", name), exception.ErrModelNotFound, false)
	}
	return latest, nil
}

// Download fetches every artifact of the model version into destDir,
// recreating the artifact layout. version <= 0 resolves the newest version.
// It returns the resolved version.
func (r *Registry) Download(ctx context.Context, name string, version int, destDir string) (int, error) {
	if version <= 0 {
		v, err := r.LatestVersion(ctx, name)
		if err != nil {
			return 0, err
		}
		version = v
	}

	prefix := path.Join(modelPrefix, name, strconv.Itoa(version)) + "/"
	var objects []string
	err := r.backend.ListObjects(ctx, prefix, func(objectName string) error {
		objects = append(objects, objectName)
		return nil
	})
	if err != nil {
		return 0, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to list artifacts of model '%s' v%d", name, version), err, true)
	}
	if len(objects) == 0 {
		return 0, exception.NewPipelineError(moduleName,
			fmt.Sprintf("model '%s' v%d has no artifacts", name, version), exception.ErrModelNotFound, false)
	}
	sort.Strings(objects)

	for _, objectName := range objects {
		if err := r.downloadObject(ctx, objectName, prefix, destDir); err != nil {
			return 0, err
		}
	}
	logger.Debugf("Downloaded model '%s' v%d (%d artifact(s)) to %s", name, version, len(objects), destDir)
	return version, nil
}

// GetMetadata fetches the metadata document of a model version. version <= 0
// resolves the newest version.
func (r *Registry) GetMetadata(ctx context.Context, name string, version int) (Metadata, error) {
	if version <= 0 {
		v, err := r.LatestVersion(ctx, name)
		if err != nil {
			return Metadata{}, err
		}
		version = v
	}
	objectName := path.Join(modelPrefix, name, strconv.Itoa(version), metadataFileName)
	rc, err := r.backend.Download(ctx, objectName)
	if err != nil {
		return Metadata{}, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to download metadata of model '%s' v%d", name, version), err, true)
	}
	defer rc.Close()

	var meta Metadata
	if err := json.NewDecoder(rc).Decode(&meta); err != nil {
		return Metadata{}, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to decode metadata of model '%s' v%d", name, version), err, false)
	}
	return meta, nil
}

func (r *Registry) downloadObject(ctx context.Context, objectName, prefix, destDir string) error {
	rc, err := r.backend.Download(ctx, objectName)
	if err != nil {
		return exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to download artifact '%s'", objectName), err, true)
	}
	defer rc.Close()

	rel := strings.TrimPrefix(objectName, prefix)
	destPath := filepath.Join(destDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to create artifact directory for '%s'", destPath), err, false)
	}
	file, err := os.Create(destPath)
	if err != nil {
		return exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to create artifact file '%s'", destPath), err, false)
	}
	defer file.Close()
	if _, err := io.Copy(file, rc); err != nil {
		return exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to write artifact file '%s'", destPath), err, false)
	}
	return nil
}

func contentTypeOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
