// Package dashboard serves the hindcast dashboard: a JSON API over the stored
// predictions and actual outcomes plus the embedded single-page UI that plots
// them. All views derive from one Selection value, re-clamped against the
// current data bounds on every request.
package dashboard

import (
	"time"

	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/frame"
)

// Selection is the single source of truth for what the dashboard shows: one
// bidding area, one energy source and one time window. Handlers normalize a
// request's selection before reading any data, so a stale window from an
// earlier page load can never escape the currently available bounds.
type Selection struct {
	Area   string
	Source string
	Start  time.Time
	End    time.Time
}

// Normalize returns a Selection valid against the given area codes and data
// bounds. Unknown or empty area and source fall back to the first area and to
// solar. A zero window means the full bounds; a reversed window is swapped;
// both endpoints are clamped into [min, max]. Zero bounds resolve area and
// source only, leaving a requested window untouched for a later clamp.
func (s Selection) Normalize(areas []string, min, max time.Time) Selection {
	out := s

	known := false
	for _, a := range areas {
		if a == out.Area {
			known = true
			break
		}
	}
	if !known && len(areas) > 0 {
		out.Area = areas[0]
	}

	switch out.Source {
	case entity.SourceSolar, entity.SourceWind:
	default:
		out.Source = entity.SourceSolar
	}

	if out.Start.IsZero() {
		out.Start = min
	}
	if out.End.IsZero() {
		out.End = max
	}
	if out.End.Before(out.Start) {
		out.Start, out.End = out.End, out.Start
	}
	out.Start, out.End = frame.ClampWindow(out.Start, out.End, min, max)
	return out
}
