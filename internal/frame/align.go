package frame

import (
	"math"
	"sort"
	"time"
)

// SortDedup returns a new Frame sorted ascending by timestamp with duplicate
// timestamps removed, keeping the last occurrence. The last occurrence is
// treated as the most up-to-date correction of an earlier ingested value.
// Applied at ingestion of any raw series before alignment; idempotent.
func SortDedup(f *Frame) *Frame {
	n := f.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// Stable sort keeps original order among equal timestamps, so the later
	// ingested row stays behind the earlier one and wins the keep-last pass.
	sort.SliceStable(idx, func(a, b int) bool {
		return f.times[idx[a]].Before(f.times[idx[b]])
	})

	kept := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i+1 < n && f.times[idx[i]].Equal(f.times[idx[i+1]]) {
			continue
		}
		kept = append(kept, idx[i])
	}
	return f.pick(kept)
}

// FilterWindow returns the rows whose timestamp falls inside [start, end],
// inclusive on both bounds.
func FilterWindow(f *Frame, start, end time.Time) *Frame {
	kept := make([]int, 0, f.Len())
	for i, t := range f.times {
		if t.Before(start) || t.After(end) {
			continue
		}
		kept = append(kept, i)
	}
	return f.pick(kept)
}

// Bounds returns the observed [min, max] of the Frame's timestamp index.
// ok is false for an empty frame.
func Bounds(f *Frame) (min, max time.Time, ok bool) {
	if f.Len() == 0 {
		return time.Time{}, time.Time{}, false
	}
	min, max = f.times[0], f.times[0]
	for _, t := range f.times[1:] {
		if t.Before(min) {
			min = t
		}
		if t.After(max) {
			max = t
		}
	}
	return min, max, true
}

// ClampWindow clamps a requested [start, end] range to the observed
// [min, max] bounds. Both endpoints are clamped independently so a previously
// chosen window stays valid after the underlying data's bounds change. Zero
// bounds mean no observed data yet; the requested range is returned unchanged
// so it can be clamped later, once bounds are known.
func ClampWindow(start, end, min, max time.Time) (time.Time, time.Time) {
	if min.IsZero() && max.IsZero() {
		return start, end
	}
	start = clampInstant(start, min, max)
	end = clampInstant(end, min, max)
	return start, end
}

func clampInstant(t, min, max time.Time) time.Time {
	if t.Before(min) {
		return min
	}
	if t.After(max) {
		return max
	}
	return t
}

// InnerJoin joins two frames on timestamp, keeping only rows present in both.
// Columns of a precede columns of b; a column name present in both frames is
// taken from a. Output is ascending by timestamp. Used when reconciling
// prediction against actual: only compare where both exist.
func InnerJoin(a, b *Frame) *Frame {
	bIdx := make(map[int64]int, b.Len())
	for i, t := range b.times {
		bIdx[t.UnixNano()] = i
	}

	var aKept, bKept []int
	for i, t := range a.times {
		if j, ok := bIdx[t.UnixNano()]; ok {
			aKept = append(aKept, i)
			bKept = append(bKept, j)
		}
	}

	joined := a.pick(aKept)
	picked := b.pick(bKept)
	for _, name := range picked.order {
		if joined.HasColumn(name) {
			continue
		}
		vals, _ := picked.Column(name)
		joined.order = append(joined.order, name)
		joined.columns[name] = vals
	}
	return SortDedup(joined)
}

// OuterJoin joins value series on timestamp over the union of all timestamps.
// Each input frame contributes the column named by its label, taken from its
// valueCol column; timestamps a series does not cover hold NaN. Gaps are
// rendered as such downstream, never interpolated. Used to overlay multiple
// predicted series for display.
func OuterJoin(labels []string, frames []*Frame, valueCol string) *Frame {
	union := make(map[int64]time.Time)
	for _, f := range frames {
		for _, t := range f.times {
			union[t.UnixNano()] = t
		}
	}
	times := make([]time.Time, 0, len(union))
	for _, t := range union {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	out := New(times)
	for k, f := range frames {
		vals := make([]float64, len(times))
		for i := range vals {
			vals[i] = math.NaN()
		}
		src, ok := f.Column(valueCol)
		if ok {
			pos := make(map[int64]int, len(times))
			for i, t := range times {
				pos[t.UnixNano()] = i
			}
			for i, t := range f.times {
				if j, found := pos[t.UnixNano()]; found {
					vals[j] = src[i]
				}
			}
		}
		out.SetColumn(labels[k], vals)
	}
	return out
}

// Stitch combines an actual series and a forecast series indexed by timestamp
// into one continuous line, preferring actual values and falling back to
// forecast where actual is absent. The combined series is split at the last
// timestamp holding an actual value into a confirmed segment (timestamps at or
// before the split) and a projected segment (timestamps at or after the split,
// overlapping the confirmed segment by exactly the split point) so the two can
// be rendered solid vs dashed. When no actual values exist the confirmed
// segment is empty and the whole combined series is projected.
func Stitch(actual *Frame, actualCol string, forecast *Frame, forecastCol string) (confirmed, projected *Frame) {
	type entry struct {
		t        time.Time
		v        float64
		isActual bool
	}
	merged := make(map[int64]entry)

	if fv, ok := forecast.Column(forecastCol); ok {
		for i, t := range forecast.times {
			merged[t.UnixNano()] = entry{t: t, v: fv[i]}
		}
	}
	if av, ok := actual.Column(actualCol); ok {
		for i, t := range actual.times {
			merged[t.UnixNano()] = entry{t: t, v: av[i], isActual: true}
		}
	}

	entries := make([]entry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].t.Before(entries[j].t) })

	var split time.Time
	hasActual := false
	for _, e := range entries {
		if e.isActual {
			split = e.t
			hasActual = true
		}
	}

	var confTimes, projTimes []time.Time
	var confVals, projVals []float64
	for _, e := range entries {
		if hasActual && !e.t.After(split) {
			confTimes = append(confTimes, e.t)
			confVals = append(confVals, e.v)
		}
		if !hasActual || !e.t.Before(split) {
			projTimes = append(projTimes, e.t)
			projVals = append(projVals, e.v)
		}
	}

	confirmed = New(confTimes)
	confirmed.SetColumn("value", confVals)
	projected = New(projTimes)
	projected.SetColumn("value", projVals)
	return confirmed, projected
}
