package local_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/adapter/storage/local"
)

func newBackend(t *testing.T) storageAdapter.Backend {
	t.Helper()
	backend, err := local.NewBackend(storageAdapter.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return backend
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	err := backend.Upload(ctx, "models/solar/1/model.json", strings.NewReader(`{"trees": []}`), "application/json")
	require.NoError(t, err)

	rc, err := backend.Download(ctx, "models/solar/1/model.json")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"trees": []}`, string(data))
}

func TestUploadOverwritesExistingObject(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "a.txt", strings.NewReader("first"), "text/plain"))
	require.NoError(t, backend.Upload(ctx, "a.txt", strings.NewReader("second"), "text/plain"))

	rc, err := backend.Download(ctx, "a.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "second", string(data))
}

func TestListObjectsFiltersByPrefix(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	for _, name := range []string{"models/a/1/m.json", "models/a/2/m.json", "charts/SE_1/x.png"} {
		require.NoError(t, backend.Upload(ctx, name, strings.NewReader("x"), ""))
	}

	var got []string
	err := backend.ListObjects(ctx, "models/a/", func(objectName string) error {
		got = append(got, objectName)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"models/a/1/m.json", "models/a/2/m.json"}, got)
}

func TestDeleteObjectIsIdempotent(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.Upload(ctx, "tmp/obj", strings.NewReader("x"), ""))
	require.NoError(t, backend.DeleteObject(ctx, "tmp/obj"))

	// Deleting again must not fail.
	require.NoError(t, backend.DeleteObject(ctx, "tmp/obj"))

	_, err := backend.Download(ctx, "tmp/obj")
	assert.Error(t, err)
}

func TestRejectsPathEscapingBaseDir(t *testing.T) {
	backend := newBackend(t)
	err := backend.Upload(context.Background(), "../escape.txt", strings.NewReader("x"), "")
	assert.Error(t, err)
}

func TestRequiresBaseDir(t *testing.T) {
	_, err := local.NewBackend(storageAdapter.Config{})
	assert.Error(t, err)
}
