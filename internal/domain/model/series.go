// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// TimeSeries is an immutable sequence of (timestamp, value) pairs with
// strictly increasing timestamps.
type TimeSeries struct {
	dates  []time.Time
	values []float64
}

// NewTimeSeries validates and copies the given columns.
func NewTimeSeries(dates []time.Time, values []float64) (TimeSeries, error) {
	if len(dates) != len(values) {
		return TimeSeries{}, fmt.Errorf("%w: %d dates, %d values", ErrLengthMismatch, len(dates), len(values))
	}
	for i := 1; i < len(dates); i++ {
		switch {
		case dates[i].Equal(dates[i-1]):
			return TimeSeries{}, fmt.Errorf("%w: %s at index %d", ErrDuplicateTimestamp, dates[i].Format(time.DateOnly), i)
		case dates[i].Before(dates[i-1]):
			return TimeSeries{}, fmt.Errorf("%w: index %d", ErrUnsortedSeries, i)
		}
	}
	ts := TimeSeries{
		dates:  make([]time.Time, len(dates)),
		values: make([]float64, len(values)),
	}
	copy(ts.dates, dates)
	copy(ts.values, values)
	return ts, nil
}

// Len returns the number of observations.
func (ts TimeSeries) Len() int { return len(ts.values) }

// Dates returns a copy of the timestamps.
func (ts TimeSeries) Dates() []time.Time {
	out := make([]time.Time, len(ts.dates))
	copy(out, ts.dates)
	return out
}

// Values returns a copy of the observations.
func (ts TimeSeries) Values() []float64 {
	out := make([]float64, len(ts.values))
	copy(out, ts.values)
	return out
}

// At returns the i-th observation.
func (ts TimeSeries) At(i int) (time.Time, float64) { return ts.dates[i], ts.values[i] }

// DateAt returns the timestamp of the i-th observation.
func (ts TimeSeries) DateAt(i int) time.Time { return ts.dates[i] }

// IndexOf returns the position of date, or -1 when absent.
func (ts TimeSeries) IndexOf(date time.Time) int {
	i := sort.Search(len(ts.dates), func(i int) bool { return !ts.dates[i].Before(date) })
	if i < len(ts.dates) && ts.dates[i].Equal(date) {
		return i
	}
	return -1
}

// Window returns the first and last index whose timestamps fall inside
// [from, to]. ok is false when no observation does. A zero from or to leaves
// that side open.
func (ts TimeSeries) Window(from, to time.Time) (first, last int, ok bool) {
	first = 0
	if !from.IsZero() {
		first = sort.Search(len(ts.dates), func(i int) bool { return !ts.dates[i].Before(from) })
	}
	last = len(ts.dates) - 1
	if !to.IsZero() {
		last = sort.Search(len(ts.dates), func(i int) bool { return ts.dates[i].After(to) }) - 1
	}
	if first > last || first >= len(ts.dates) || last < 0 {
		return 0, 0, false
	}
	return first, last, true
}

// Slice returns a copy of the values in [from, to), clipped to the series
// bounds. It never indexes past either end.
func (ts TimeSeries) Slice(from, to int) []float64 {
	from = max(from, 0)
	to = min(to, len(ts.values))
	if from >= to {
		return nil
	}
	out := make([]float64, to-from)
	copy(out, ts.values[from:to])
	return out
}

// DropMissing returns the series without NaN or infinite observations.
func (ts TimeSeries) DropMissing() TimeSeries {
	out := TimeSeries{
		dates:  make([]time.Time, 0, len(ts.dates)),
		values: make([]float64, 0, len(ts.values)),
	}
	for i, v := range ts.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.dates = append(out.dates, ts.dates[i])
		out.values = append(out.values, v)
	}
	return out
}

// LogReturns derives consecutive log-differences. The return at index i is
// ln(v[i+1]) - ln(v[i]) and carries the timestamp of v[i+1].
func (ts TimeSeries) LogReturns() (LogReturnSeries, error) {
	if len(ts.values) < 2 {
		return LogReturnSeries{}, fmt.Errorf("%w: need at least 2 prices, got %d", ErrDataInsufficient, len(ts.values))
	}
	r := LogReturnSeries{
		dates:  make([]time.Time, len(ts.values)-1),
		values: make([]float64, len(ts.values)-1),
	}
	for i := 1; i < len(ts.values); i++ {
		prev, cur := ts.values[i-1], ts.values[i]
		if prev <= 0 || cur <= 0 {
			return LogReturnSeries{}, fmt.Errorf("%w: non-positive price at index %d", ErrDataInsufficient, i)
		}
		r.dates[i-1] = ts.dates[i]
		r.values[i-1] = math.Log(cur) - math.Log(prev)
	}
	return r, nil
}

// LogReturnSeries holds log-returns derived from a TimeSeries. It is one
// element shorter than its source.
type LogReturnSeries struct {
	dates  []time.Time
	values []float64
}

// NewLogReturnSeries builds a return series directly, e.g. from a stored
// column or a synthetic generator.
func NewLogReturnSeries(dates []time.Time, values []float64) (LogReturnSeries, error) {
	ts, err := NewTimeSeries(dates, values)
	if err != nil {
		return LogReturnSeries{}, err
	}
	return LogReturnSeries(ts), nil
}

// Len returns the number of returns.
func (r LogReturnSeries) Len() int { return len(r.values) }

// Dates returns a copy of the timestamps.
func (r LogReturnSeries) Dates() []time.Time { return TimeSeries(r).Dates() }

// Values returns a copy of the returns.
func (r LogReturnSeries) Values() []float64 { return TimeSeries(r).Values() }

// DateAt returns the timestamp of the i-th return.
func (r LogReturnSeries) DateAt(i int) time.Time { return r.dates[i] }

// Slice returns a copy of the returns in [from, to), clipped to the series.
func (r LogReturnSeries) Slice(from, to int) []float64 { return TimeSeries(r).Slice(from, to) }

// Series exposes the returns as a plain TimeSeries.
func (r LogReturnSeries) Series() TimeSeries { return TimeSeries(r) }
