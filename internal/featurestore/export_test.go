package featurestore_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/adapter/storage/local"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/featurestore"
)

func newExporterBackend(t *testing.T) storageAdapter.Backend {
	t.Helper()
	backend, err := local.NewBackend(storageAdapter.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return backend
}

func newGenerationExporter(t *testing.T, backend storageAdapter.Backend) *featurestore.Exporter[entity.GenerationExport] {
	t.Helper()
	exporter, err := featurestore.NewExporter(
		featurestore.ExporterConfig{OutputBaseDir: "exports/generation", CompressionType: "SNAPPY"},
		backend,
		&entity.GenerationExport{},
		func(r entity.GenerationExport) string { return featurestore.DailyPartition(r.Timestamp) },
	)
	require.NoError(t, err)
	return exporter
}

func TestDailyPartition(t *testing.T) {
	ts := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "dt=2024-03-01", featurestore.DailyPartition(ts))

	// One minute later rolls into the next partition.
	assert.Equal(t, "dt=2024-03-02", featurestore.DailyPartition(ts+60_000))
}

func TestExporterFlushWritesOneFilePerPartition(t *testing.T) {
	backend := newExporterBackend(t)
	exporter := newGenerationExporter(t, backend)

	day1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	exporter.Add([]entity.GenerationExport{
		{Timestamp: day1.UnixMilli(), Section: "SE_1", Solar: 10, Wind: 100},
		{Timestamp: day1.Add(time.Hour).UnixMilli(), Section: "SE_1", Solar: 12, Wind: 110},
		{Timestamp: day2.UnixMilli(), Section: "SE_1", Solar: 14, Wind: 120},
	})
	require.NoError(t, exporter.Flush(context.Background()))

	perPartition := map[string]int{}
	err := backend.ListObjects(context.Background(), "exports/generation/", func(objectName string) error {
		assert.True(t, strings.HasSuffix(objectName, ".parquet"))
		switch {
		case strings.Contains(objectName, "dt=2024-03-01"):
			perPartition["dt=2024-03-01"]++
		case strings.Contains(objectName, "dt=2024-03-02"):
			perPartition["dt=2024-03-02"]++
		default:
			t.Fatalf("unexpected object name %q", objectName)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"dt=2024-03-01": 1, "dt=2024-03-02": 1}, perPartition)
}

func TestExporterFlushClearsBuffer(t *testing.T) {
	backend := newExporterBackend(t)
	exporter := newGenerationExporter(t, backend)

	exporter.Add([]entity.GenerationExport{
		{Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), Section: "SE_2"},
	})
	require.NoError(t, exporter.Flush(context.Background()))

	// A second flush has nothing buffered and writes nothing new.
	require.NoError(t, exporter.Flush(context.Background()))
	count := 0
	err := backend.ListObjects(context.Background(), "exports/generation/", func(string) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExporterEmptyFlushIsNoop(t *testing.T) {
	backend := newExporterBackend(t)
	exporter := newGenerationExporter(t, backend)
	require.NoError(t, exporter.Flush(context.Background()))
}

func TestNewExporterValidatesConfig(t *testing.T) {
	backend := newExporterBackend(t)

	_, err := featurestore.NewExporter(
		featurestore.ExporterConfig{},
		backend,
		&entity.GenerationExport{},
		func(r entity.GenerationExport) string { return "dt=x" },
	)
	assert.Error(t, err)

	_, err = featurestore.NewExporter(
		featurestore.ExporterConfig{OutputBaseDir: "exports", CompressionType: "ZSTD"},
		backend,
		&entity.GenerationExport{},
		func(r entity.GenerationExport) string { return "dt=x" },
	)
	assert.Error(t, err)
}
