// Package dataset reads price and event tables from CSV and writes analysis
// artifacts.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/okian/volregime/internal/domain/model"
)

// defaultLayouts are the date formats seen in commodity price exports.
var defaultLayouts = []string{ //nolint:gochecknoglobals // read-only table
	time.DateOnly,
	"02-Jan-06",
	"02-Jan-2006",
	"Jan 2, 2006",
	"1/2/2006",
	time.RFC3339,
}

// eventNameColumns and eventCategoryColumns are matched case-insensitively.
var (
	eventNameColumns     = []string{"event", "name"}                 //nolint:gochecknoglobals // read-only table
	eventCategoryColumns = []string{"event type", "category", "type"} //nolint:gochecknoglobals // read-only table
)

type table struct {
	header []string
	rows   [][]string
	lines  []int
}

func readTable(r io.Reader, o options) (table, error) {
	cr := csv.NewReader(r)
	cr.Comma = o.comma
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return table{}, fmt.Errorf("%w: empty input", model.ErrDataInsufficient)
		}
		return table{}, fmt.Errorf("read header: %w", err)
	}
	t := table{header: make([]string, len(header))}
	for i, h := range header {
		t.header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return table{}, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)
		t.rows = append(t.rows, rec)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

// column returns the index of the first header matching any name.
func (t table) column(names ...string) int {
	for _, name := range names {
		for i, h := range t.header {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// ParseDate parses s with the first matching layout.
func ParseDate(s string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseValue parses a price, reporting false for a missing value.
func parseValue(s string) (float64, bool, error) {
	s = strings.ReplaceAll(s, ",", "")
	switch strings.ToLower(s) {
	case "", ".", "na", "nan", "null":
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, nil
	}
	return v, true, nil
}

// ReadPrices reads a dated price column. Rows with missing prices are
// skipped, rows are sorted by date and duplicate dates are rejected.
func ReadPrices(r io.Reader, opts ...Option) (model.TimeSeries, error) {
	o := newOptions(opts)
	t, err := readTable(r, o)
	if err != nil {
		return model.TimeSeries{}, fmt.Errorf("dataset: %w", err)
	}
	di, vi := t.column(o.dateColumn), t.column(o.valueColumn)
	if di < 0 || vi < 0 {
		return model.TimeSeries{}, fmt.Errorf("dataset: %w: need %q and %q in %v", ErrMissingColumn, o.dateColumn, o.valueColumn, t.header)
	}

	type point struct {
		date  time.Time
		value float64
	}
	points := make([]point, 0, len(t.rows))
	for n, rec := range t.rows {
		date, err := ParseDate(field(rec, di), o.layouts)
		if err != nil {
			return model.TimeSeries{}, fmt.Errorf("dataset: %w: line %d: %w", ErrMalformedRow, t.lines[n], err)
		}
		v, ok, err := parseValue(field(rec, vi))
		if err != nil {
			return model.TimeSeries{}, fmt.Errorf("dataset: %w: line %d: %w", ErrMalformedRow, t.lines[n], err)
		}
		if ok {
			points = append(points, point{date: date, value: v})
		}
	}
	slices.SortStableFunc(points, func(a, b point) int { return a.date.Compare(b.date) })

	dates := make([]time.Time, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		dates[i], values[i] = p.date, p.value
	}
	ts, err := model.NewTimeSeries(dates, values)
	if err != nil {
		return model.TimeSeries{}, fmt.Errorf("dataset: %w", err)
	}
	return ts, nil
}

// ReadEvents reads an event timeline. The date column is required; an
// "Event" column fills Name, an "Event Type" column fills Category, and
// every other column lands in Attributes. Events are sorted by date.
func ReadEvents(r io.Reader, opts ...Option) ([]model.Event, error) {
	o := newOptions(opts)
	t, err := readTable(r, o)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	di := t.column(o.dateColumn)
	if di < 0 {
		return nil, fmt.Errorf("dataset: %w: need %q in %v", ErrMissingColumn, o.dateColumn, t.header)
	}
	ni, ci := t.column(eventNameColumns...), t.column(eventCategoryColumns...)

	out := make([]model.Event, 0, len(t.rows))
	for n, rec := range t.rows {
		date, err := ParseDate(field(rec, di), o.layouts)
		if err != nil {
			return nil, fmt.Errorf("dataset: %w: line %d: %w", ErrMalformedRow, t.lines[n], err)
		}
		e := model.Event{Date: date, Name: field(rec, ni), Category: field(rec, ci)}
		for i, h := range t.header {
			if i == di || i == ni || i == ci {
				continue
			}
			if v := field(rec, i); v != "" {
				if e.Attributes == nil {
					e.Attributes = make(map[string]string)
				}
				e.Attributes[h] = v
			}
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b model.Event) int { return a.Date.Compare(b.Date) })
	return out, nil
}

// ReadPricesFile opens path and reads it with ReadPrices.
func ReadPricesFile(path string, opts ...Option) (model.TimeSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.TimeSeries{}, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()
	return ReadPrices(f, opts...)
}

// ReadEventsFile opens path and reads it with ReadEvents.
func ReadEventsFile(path string, opts ...Option) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()
	return ReadEvents(f, opts...)
}
