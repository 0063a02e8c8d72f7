package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/gridcast/internal/support/exception"
)

func TestNewPipelineError(t *testing.T) {
	originalErr := errors.New("connection refused")
	pe := exception.NewPipelineError("featurestore", "failed to upsert rows", originalErr, true)

	assert.Equal(t, "featurestore", pe.Module)
	assert.Equal(t, "failed to upsert rows", pe.Message)
	assert.Equal(t, originalErr, pe.Unwrap())
	assert.True(t, pe.IsRetryable())
	assert.Contains(t, pe.Error(), "[featurestore] failed to upsert rows: connection refused")
	assert.NotEmpty(t, pe.StackTrace)
}

func TestNewPipelineErrorf(t *testing.T) {
	pe := exception.NewPipelineErrorf("registry", "model '%s' has no versions", "solar_gbdt_model_se_3")
	assert.False(t, pe.IsRetryable())
	assert.Nil(t, pe.Unwrap())
	assert.Contains(t, pe.Error(), "model 'solar_gbdt_model_se_3' has no versions")

	// A trailing error argument is extracted and wrapped.
	wrapped := errors.New("io failure")
	pe2 := exception.NewPipelineErrorf("registry", "download of '%s' failed", "model.json", wrapped)
	assert.Equal(t, wrapped, pe2.Unwrap())
	assert.Contains(t, pe2.Error(), "download of 'model.json' failed")
}

func TestSentinelClassification(t *testing.T) {
	schemaErr := exception.NewPipelineError("regress", "column order drift", exception.ErrFeatureSchemaMismatch, false)
	assert.True(t, exception.IsSchemaError(schemaErr))
	assert.True(t, errors.Is(schemaErr, exception.ErrFeatureSchemaMismatch))

	missingErr := exception.NewPipelineError("feature", "field absent", exception.ErrMissingField, false)
	assert.True(t, exception.IsSchemaError(missingErr))

	notFound := exception.NewPipelineError("registry", "no such model", exception.ErrModelNotFound, false)
	assert.True(t, exception.IsModelNotFound(notFound))
	assert.False(t, exception.IsSchemaError(notFound))

	noData := fmt.Errorf("outer: %w", exception.ErrNoData)
	assert.True(t, exception.IsNoData(noData))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, exception.IsRetryable(errors.New("plain")))
	assert.False(t, exception.IsRetryable(nil))
	assert.True(t, exception.IsRetryable(exception.NewPipelineError("openmeteo", "status 502", nil, true)))

	// Wrapped retryable errors stay retryable through fmt wrapping.
	wrapped := fmt.Errorf("outer: %w", exception.NewPipelineError("entsoe", "status 503", nil, true))
	assert.True(t, exception.IsRetryable(wrapped))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "plain failure", exception.ExtractErrorMessage(errors.New("plain failure")))

	pe := exception.NewPipelineError("pipeline", "area ingest failed", errors.New("detail"), false)
	assert.Equal(t, "area ingest failed", exception.ExtractErrorMessage(pe))
}
