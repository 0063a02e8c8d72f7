// Package exception provides the error types shared by the gridcast pipelines.
// It standardizes errors into the categories the orchestrators care about:
// provider errors (retryable, non-fatal to the batch), schema errors (fatal at
// the point of model invocation), missing-artifact errors (skip and continue)
// and configuration errors (fatal at startup).
package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// Sentinel errors for the pipeline error taxonomy. Callers match them with
// errors.Is through the PipelineError wrapper.
var (
	// ErrMissingField indicates a declared input feature column is absent from
	// a raw weather series. Silent NaN-filling would change trained feature
	// semantics, so this must surface loudly.
	ErrMissingField = errors.New("missing declared input field")

	// ErrFeatureSchemaMismatch indicates the feature columns handed to a model
	// do not match the ordered schema the model was trained with.
	ErrFeatureSchemaMismatch = errors.New("feature schema mismatch")

	// ErrModelNotFound indicates the requested model name/version does not
	// exist in the registry. Orchestrators skip the region/source and continue.
	ErrModelNotFound = errors.New("model not found in registry")

	// ErrNoData indicates a provider returned an empty series for the requested
	// window. Treated as "no data for this cycle", never fatal to the batch.
	ErrNoData = errors.New("no data for requested window")
)

// PipelineError is the error type raised by gridcast components. It carries the
// module where the error occurred, a message, the wrapped original error and a
// flag indicating whether the operation may be retried at the collaborator
// boundary.
type PipelineError struct {
	// Module indicates the component where the error occurred
	// (e.g. "feature", "openmeteo", "featurestore", "registry").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewPipelineError creates a new PipelineError instance.
func NewPipelineError(module, message string, originalErr error, isRetryable bool) *PipelineError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &PipelineError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		StackTrace:  string(buf[:n]),
	}
}

// NewPipelineErrorf creates a new non-retryable PipelineError with a formatted
// message. An error as the final argument is extracted and wrapped.
func NewPipelineErrorf(module, format string, a ...interface{}) *PipelineError {
	var originalErr error
	args := a
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	return NewPipelineError(module, fmt.Sprintf(format, args...), originalErr, false)
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *PipelineError) IsRetryable() bool {
	return e.isRetryable
}

// IsRetryable reports whether err (or any error it wraps) is marked retryable.
// Non-PipelineError values are considered not retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

// IsSchemaError reports whether err belongs to the schema error class
// (missing input field or feature order/name mismatch). Schema errors are
// fatal at the point of model invocation.
func IsSchemaError(err error) bool {
	return errors.Is(err, ErrMissingField) || errors.Is(err, ErrFeatureSchemaMismatch)
}

// IsModelNotFound reports whether err indicates a missing registry model.
// Orchestrators treat it as "skip this region/source and continue".
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}

// IsNoData reports whether err indicates an empty provider series for the
// requested window.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}

// ExtractErrorMessage extracts the concise message from an error.
// For PipelineError it returns the Message field, otherwise Error().
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
