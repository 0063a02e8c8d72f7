// Package frame implements the column-oriented time-series container shared by
// the feature transform, the hindcast reconciler and the dashboard, together
// with the alignment primitives (deduplication, windowing, joins, stitching)
// that reconcile series sampled at different rates by different providers.
package frame

import (
	"fmt"
	"time"
)

// Frame is an ordered collection of float64 columns sharing one timestamp
// index. Row order is the timestamp order; column order is insertion order and
// is significant (the model feature schema is an ordered column list).
type Frame struct {
	times   []time.Time
	order   []string
	columns map[string][]float64
}

// New creates a Frame over the given timestamp index. The index is not copied.
func New(times []time.Time) *Frame {
	return &Frame{
		times:   times,
		columns: make(map[string][]float64),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.times)
}

// Times returns the timestamp index. Callers must not mutate it.
func (f *Frame) Times() []time.Time {
	return f.times
}

// Time returns the timestamp of row i.
func (f *Frame) Time(i int) time.Time {
	return f.times[i]
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns the values of the named column.
func (f *Frame) Column(name string) ([]float64, bool) {
	vals, ok := f.columns[name]
	return vals, ok
}

// Value returns the value of the named column at row i.
func (f *Frame) Value(name string, i int) (float64, bool) {
	vals, ok := f.columns[name]
	if !ok || i < 0 || i >= len(vals) {
		return 0, false
	}
	return vals[i], true
}

// SetColumn adds or replaces a column. The value count must match the row
// count.
func (f *Frame) SetColumn(name string, values []float64) error {
	if len(values) != len(f.times) {
		return fmt.Errorf("column %q has %d values for %d rows", name, len(values), len(f.times))
	}
	if _, exists := f.columns[name]; !exists {
		f.order = append(f.order, name)
	}
	f.columns[name] = values
	return nil
}

// DropColumn removes a column if present.
func (f *Frame) DropColumn(name string) {
	if _, ok := f.columns[name]; !ok {
		return
	}
	delete(f.columns, name)
	for i, n := range f.order {
		if n == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Select returns a new Frame sharing this Frame's index but containing only
// the requested columns, in the requested order. A missing column is an error.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := New(f.times)
	for _, name := range names {
		vals, ok := f.columns[name]
		if !ok {
			return nil, fmt.Errorf("column %q not present in frame", name)
		}
		if err := out.SetColumn(name, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Matrix returns the row-major value matrix of the requested columns in the
// requested order. This is the shape the regressor consumes; column order here
// is the model's feature order.
func (f *Frame) Matrix(names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		vals, ok := f.columns[name]
		if !ok {
			return nil, fmt.Errorf("column %q not present in frame", name)
		}
		cols[j] = vals
	}
	rows := make([][]float64, f.Len())
	for i := range rows {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}
	return rows, nil
}

// Copy returns a deep copy of the Frame.
func (f *Frame) Copy() *Frame {
	times := make([]time.Time, len(f.times))
	copy(times, f.times)
	out := New(times)
	for _, name := range f.order {
		vals := make([]float64, len(f.columns[name]))
		copy(vals, f.columns[name])
		out.order = append(out.order, name)
		out.columns[name] = vals
	}
	return out
}

// pick returns a new Frame containing the rows at the given indices, in order.
func (f *Frame) pick(idx []int) *Frame {
	times := make([]time.Time, len(idx))
	for i, j := range idx {
		times[i] = f.times[j]
	}
	out := New(times)
	for _, name := range f.order {
		src := f.columns[name]
		vals := make([]float64, len(idx))
		for i, j := range idx {
			vals[i] = src[j]
		}
		out.order = append(out.order, name)
		out.columns[name] = vals
	}
	return out
}
