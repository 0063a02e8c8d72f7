package featurestore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

// ExporterConfig holds the settings of a parquet export.
type ExporterConfig struct {
	// OutputBaseDir is the base directory within the storage backend for
	// exported files (e.g. "exports/weather").
	OutputBaseDir string `yaml:"output_base_dir"`
	// CompressionType is the parquet compression codec ("SNAPPY", "GZIP",
	// "NONE"). Empty defaults to SNAPPY.
	CompressionType string `yaml:"compression_type"`
}

// Exporter buffers records by partition key and flushes each partition as one
// parquet file under a Hive-style path
// (OutputBaseDir/dt=YYYY-MM-DD/data_<ts>_<id>.parquet). Partitions fail
// independently: a flush returns the aggregate of per-partition errors while
// still writing every partition it can.
type Exporter[T any] struct {
	cfg     ExporterConfig
	backend storage.Backend
	// prototype is a pointer to a zero-value instance of the record type, used
	// for parquet schema reflection.
	prototype    *T
	partitionKey func(T) string

	buffered map[string][]T
	total    int64
}

// NewExporter creates an Exporter writing through the given storage backend.
func NewExporter[T any](cfg ExporterConfig, backend storage.Backend, prototype *T, partitionKey func(T) string) (*Exporter[T], error) {
	if cfg.OutputBaseDir == "" {
		return nil, exception.NewPipelineErrorf(moduleName, "parquet exporter requires output_base_dir")
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	if _, err := compressionCodec(cfg.CompressionType); err != nil {
		return nil, exception.NewPipelineError(moduleName, "invalid parquet compression type", err, false)
	}
	return &Exporter[T]{
		cfg:          cfg,
		backend:      backend,
		prototype:    prototype,
		partitionKey: partitionKey,
		buffered:     make(map[string][]T),
	}, nil
}

// DailyPartition derives the Hive-style partition key of a millisecond
// timestamp.
func DailyPartition(millis int64) string {
	return "dt=" + time.UnixMilli(millis).UTC().Format("2006-01-02")
}

// Add buffers records for the next Flush.
func (e *Exporter[T]) Add(records []T) {
	for _, r := range records {
		key := e.partitionKey(r)
		e.buffered[key] = append(e.buffered[key], r)
		e.total++
	}
}

// Flush writes every buffered partition to the storage backend and clears the
// buffer. Failed partitions are aggregated into the returned error; their
// records are dropped with the rest of the buffer, matching at-least-once
// semantics of the surrounding upsert-based pipelines.
func (e *Exporter[T]) Flush(ctx context.Context) error {
	if e.total == 0 {
		logger.Debugf("Parquet exporter: no records buffered, skipping flush.")
		return nil
	}
	codec, err := compressionCodec(e.cfg.CompressionType)
	if err != nil {
		return exception.NewPipelineError(moduleName, "invalid parquet compression type", err, false)
	}

	var multiErr error
	for partition, records := range e.buffered {
		if err := e.flushPartition(ctx, partition, records, codec); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}

	e.buffered = make(map[string][]T)
	e.total = 0
	return multiErr
}

func (e *Exporter[T]) flushPartition(ctx context.Context, partition string, records []T, codec parquet.CompressionCodec) (err error) {
	// The parquet writer panics on some schema errors; convert to an error so
	// one bad partition cannot take down the flush.
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewPipelineErrorf(moduleName, "parquet writer panicked for partition '%s': %v", partition, r)
		}
	}()

	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, e.prototype, int64(len(records)))
	if err != nil {
		return exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to create parquet writer for partition '%s'", partition), err, false)
	}
	pw.CompressionType = codec

	for _, r := range records {
		if err := pw.Write(r); err != nil {
			return exception.NewPipelineError(moduleName,
				fmt.Sprintf("failed to write record to partition '%s'", partition), err, false)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to finalize parquet file for partition '%s'", partition), err, false)
	}

	fileName := fmt.Sprintf("data_%s_%s.parquet",
		time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])
	objectName := path.Join(e.cfg.OutputBaseDir, partition, fileName)

	if err := e.backend.Upload(ctx, objectName, buf, "application/octet-stream"); err != nil {
		return exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to upload parquet file '%s'", objectName), err, true)
	}
	logger.Infof("Exported %d records of partition '%s' to %s", len(records), partition, objectName)
	return nil
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
