// Package pipeline implements the batch orchestrators: historical backfill,
// scheduled ingestion, model training and batch inference. Every run works
// area by area and source by source, records an outcome per unit, and
// continues past failures; one failing area must not block the others.
package pipeline

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

// Outcome is the result of one unit of pipeline work, typically one area or
// one (area, source) pair.
type Outcome struct {
	Section string
	Source  string
	Rows    int64
	Err     error
}

// Unit names the work unit for logs.
func (o Outcome) Unit() string {
	if o.Source != "" {
		return fmt.Sprintf("%s/%s", o.Section, o.Source)
	}
	return o.Section
}

// Result aggregates the outcomes of one pipeline run.
type Result struct {
	RunID    string
	Pipeline string
	Outcomes []Outcome
}

// Record appends an outcome, logging failures as they occur.
func (r *Result) Record(o Outcome) {
	if o.Err != nil {
		logger.Errorf("%s run %s: %s failed: %v", r.Pipeline, r.RunID, o.Unit(), o.Err)
	} else {
		logger.Infof("%s run %s: %s completed (%d rows).", r.Pipeline, r.RunID, o.Unit(), o.Rows)
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Failed counts failed outcomes.
func (r *Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Err aggregates the errors of failed outcomes, nil when every unit
// succeeded. A run with zero outcomes is not an error.
func (r *Result) Err() error {
	var multiErr error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			multiErr = multierror.Append(multiErr, fmt.Errorf("%s: %s", o.Unit(), exception.ExtractErrorMessage(o.Err)))
		}
	}
	return multiErr
}

// Status summarizes the run for metrics labels: "ok", "partial" or "failed".
func (r *Result) Status() string {
	failed := r.Failed()
	switch {
	case failed == 0:
		return "ok"
	case failed < len(r.Outcomes):
		return "partial"
	default:
		return "failed"
	}
}
