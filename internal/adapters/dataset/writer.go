package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	service "github.com/okian/volregime/internal/app"
	"github.com/okian/volregime/internal/domain/events"
	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/regime"
	"github.com/okian/volregime/internal/domain/segment"
)

// Artifact file names.
const (
	ReportFile        = "report.json"
	SummaryFile       = "posterior_summary.csv"
	TraceFile         = "trace.csv"
	VolatilityFile    = "volatility_by_regime.csv"
	ChangePointsFile  = "change_points.csv"
	MatchedEventsFile = "matched_events.csv"
	SegmentationFile  = "segmentation.json"
	RollingFile       = "rolling_stats.csv"
	dirPerm           = 0o755
	filePerm          = 0o644
	dateLayout        = time.DateOnly
)

// Writer writes analysis artifacts into one directory.
type Writer struct {
	dir string
}

// NewWriter creates dir when needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("dataset: ensure dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Path returns the location of an artifact.
func (w *Writer) Path(name string) string { return filepath.Join(w.dir, name) }

// WriteReport writes report.json and the CSV tables of a run.
func (w *Writer) WriteReport(r *service.Report) error {
	if err := w.WriteJSON(ReportFile, newReportJSON(r)); err != nil {
		return err
	}
	tables := []struct {
		name string
		rows [][]string
	}{
		{SummaryFile, summaryRows(r)},
		{TraceFile, traceRows(r)},
		{VolatilityFile, volatilityRows(r.Volatility)},
		{ChangePointsFile, changePointRows(r)},
		{MatchedEventsFile, matchRows(r.Matches)},
		{RollingFile, rollingRows(r.Rolling)},
	}
	for _, t := range tables {
		if err := w.WriteCSV(t.name, t.rows); err != nil {
			return err
		}
	}
	return nil
}

// WriteSegmentation writes the result of a segmentation-only run.
func (w *Writer) WriteSegmentation(seg segment.Segmentation, dates []time.Time) error {
	return w.WriteJSON(SegmentationFile, newSegmentationJSON(seg, dates))
}

// WritePrices writes a Date,Price table readable by ReadPrices.
func (w *Writer) WritePrices(name string, ts model.TimeSeries) error {
	rows := make([][]string, 0, ts.Len()+1)
	rows = append(rows, []string{"Date", "Price"})
	for i := range ts.Len() {
		d, v := ts.At(i)
		rows = append(rows, []string{d.Format(dateLayout), formatFloat(v)})
	}
	return w.WriteCSV(name, rows)
}

// WriteEvents writes an event table readable by ReadEvents. Attribute
// columns are the sorted union over all events.
func (w *Writer) WriteEvents(name string, evts []model.Event) error {
	attrs := map[string]struct{}{}
	for _, e := range evts {
		for k := range e.Attributes {
			attrs[k] = struct{}{}
		}
	}
	keys := slices.Sorted(maps.Keys(attrs))

	rows := make([][]string, 0, len(evts)+1)
	rows = append(rows, append([]string{"Date", "Event", "Event Type"}, keys...))
	for _, e := range evts {
		row := []string{e.Date.Format(dateLayout), e.Name, e.Category}
		for _, k := range keys {
			row = append(row, e.Attributes[k])
		}
		rows = append(rows, row)
	}
	return w.WriteCSV(name, rows)
}

// WriteJSON writes v as indented JSON.
func (w *Writer) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("dataset: marshal %s: %w", name, err)
	}
	path := w.Path(name)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("dataset: write file %s: %w", path, err)
	}
	return nil
}

// WriteCSV writes rows, the first being the header.
func (w *Writer) WriteCSV(name string, rows [][]string) error {
	path := w.Path(name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: create file %s: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("dataset: write %s: %w", path, err)
	}
	return nil
}

// formatFloat renders NaN and infinities as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// num maps non-finite values to JSON null.
func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nums(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = num(v)
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatDates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = formatDate(t)
	}
	return out
}

type segmentationJSON struct {
	N           int      `json:"n"`
	Penalty     float64  `json:"penalty"`
	Objective   *float64 `json:"objective"`
	Breakpoints []int    `json:"breakpoints"`
	Dates       []string `json:"dates"`
}

func newSegmentationJSON(seg segment.Segmentation, dates []time.Time) segmentationJSON {
	bkps := seg.Breakpoints
	if bkps == nil {
		bkps = []int{}
	}
	return segmentationJSON{
		N:           seg.N,
		Penalty:     seg.Penalty,
		Objective:   num(seg.Objective),
		Breakpoints: bkps,
		Dates:       formatDates(dates),
	}
}

type chainJSON struct {
	ID             int        `json:"id"`
	Seed           uint64     `json:"seed"`
	TuneAcceptance []*float64 `json:"tune_acceptance"`
	Acceptance     []*float64 `json:"acceptance"`
	StepSizes      []*float64 `json:"step_sizes"`
	Degenerate     []string   `json:"degenerate,omitempty"`
}

type samplingJSON struct {
	Names  []string    `json:"names"`
	Draws  int         `json:"draws"`
	Tune   int         `json:"tune"`
	Seeds  []uint64    `json:"seeds"`
	Chains []chainJSON `json:"chains"`
}

type parameterJSON struct {
	Name     string   `json:"name"`
	Discrete bool     `json:"discrete"`
	Mean     *float64 `json:"mean"`
	SD       *float64 `json:"sd"`
	HDILow   *float64 `json:"hdi_low"`
	HDIHigh  *float64 `json:"hdi_high"`
	Mode     *float64 `json:"mode,omitempty"`
	ESS      *float64 `json:"ess"`
	RHat     *float64 `json:"r_hat"`
}

type volatilityJSON struct {
	Label      string   `json:"label"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	StartDate  string   `json:"start_date,omitempty"`
	EndDate    string   `json:"end_date,omitempty"`
	N          int      `json:"n"`
	Volatility *float64 `json:"volatility"`
	Annualized *float64 `json:"annualized"`
}

type matchJSON struct {
	Date             string            `json:"date"`
	Name             string            `json:"event"`
	Category         string            `json:"category"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	ChangePoint      string            `json:"change_point"`
	ChangeIndex      int               `json:"change_index"`
	ChangeDate       string            `json:"change_date"`
	DaysFromChange   int               `json:"days_from_change"`
	VolatilityBefore *float64          `json:"volatility_before"`
	VolatilityAfter  *float64          `json:"volatility_after"`
	PriceBefore      *float64          `json:"price_before"`
	PriceAfter       *float64          `json:"price_after"`
	PriceChangePct   *float64          `json:"price_change_pct"`
}

type reportJSON struct {
	RunID           string           `json:"run_id"`
	Observations    int              `json:"observations"`
	Segmentation    segmentationJSON `json:"segmentation"`
	Bounds          []regime.Bound   `json:"bounds"`
	Sampling        *samplingJSON    `json:"sampling,omitempty"`
	HDIProb         float64          `json:"hdi_prob"`
	Summary         []parameterJSON  `json:"summary"`
	Breakpoints     []int            `json:"breakpoints"`
	BreakpointDates []string         `json:"breakpoint_dates"`
	Volatility      []volatilityJSON `json:"volatility"`
	Matches         []matchJSON      `json:"matched_events"`
	EventShares     []events.Share   `json:"event_shares"`
	Warnings        []string         `json:"warnings,omitempty"`
}

func newReportJSON(r *service.Report) reportJSON {
	out := reportJSON{
		RunID:           r.RunID.String(),
		Observations:    r.Observations,
		Segmentation:    newSegmentationJSON(r.Segmentation, r.ChangeDates),
		Bounds:          r.Bounds,
		HDIProb:         r.Summary.HDIProb,
		Breakpoints:     r.Breakpoints,
		BreakpointDates: formatDates(r.BreakpointDates),
		Summary:         make([]parameterJSON, 0, len(r.Summary.Parameters)),
		Volatility:      make([]volatilityJSON, 0, len(r.Volatility)),
		Matches:         make([]matchJSON, 0, len(r.Matches)),
		EventShares:     r.EventShares,
		Warnings:        r.Warnings,
	}
	if out.Breakpoints == nil {
		out.Breakpoints = []int{}
	}
	if out.EventShares == nil {
		out.EventShares = []events.Share{}
	}
	if t := r.Trace; t != nil {
		s := &samplingJSON{Names: t.Names, Draws: t.Draws, Tune: t.Tune, Seeds: t.Seeds}
		for _, c := range t.Chains {
			s.Chains = append(s.Chains, chainJSON{
				ID:             c.ID,
				Seed:           c.Seed,
				TuneAcceptance: nums(c.TuneAcceptance),
				Acceptance:     nums(c.Acceptance),
				StepSizes:      nums(c.StepSizes),
				Degenerate:     c.Degenerate,
			})
		}
		out.Sampling = s
	}
	for _, p := range r.Summary.Parameters {
		pj := parameterJSON{
			Name:     p.Name,
			Discrete: p.Discrete,
			Mean:     num(p.Mean),
			SD:       num(p.SD),
			HDILow:   num(p.HDILow),
			HDIHigh:  num(p.HDIHigh),
			ESS:      num(p.ESS),
			RHat:     num(p.RHat),
		}
		if p.Discrete {
			pj.Mode = num(p.Mode)
		}
		out.Summary = append(out.Summary, pj)
	}
	for _, v := range r.Volatility {
		out.Volatility = append(out.Volatility, volatilityJSON{
			Label:      v.Label,
			Start:      v.Start,
			End:        v.End,
			StartDate:  formatDate(v.StartDate),
			EndDate:    formatDate(v.EndDate),
			N:          v.N,
			Volatility: num(v.Volatility),
			Annualized: num(v.Annualized),
		})
	}
	for _, m := range r.Matches {
		out.Matches = append(out.Matches, matchJSON{
			Date:             formatDate(m.Date),
			Name:             m.Name,
			Category:         m.Category,
			Attributes:       m.Attributes,
			ChangePoint:      m.ChangePoint,
			ChangeIndex:      m.ChangeIndex,
			ChangeDate:       formatDate(m.ChangeDate),
			DaysFromChange:   m.DaysFromChange,
			VolatilityBefore: num(m.VolatilityBefore),
			VolatilityAfter:  num(m.VolatilityAfter),
			PriceBefore:      num(m.PriceBefore),
			PriceAfter:       num(m.PriceAfter),
			PriceChangePct:   num(m.PriceChangePct),
		})
	}
	return out
}

func summaryRows(r *service.Report) [][]string {
	rows := [][]string{{"parameter", "discrete", "mean", "sd", "hdi_low", "hdi_high", "mode", "ess", "r_hat"}}
	for _, p := range r.Summary.Parameters {
		rows = append(rows, []string{
			p.Name,
			strconv.FormatBool(p.Discrete),
			formatFloat(p.Mean),
			formatFloat(p.SD),
			formatFloat(p.HDILow),
			formatFloat(p.HDIHigh),
			formatFloat(p.Mode),
			formatFloat(p.ESS),
			formatFloat(p.RHat),
		})
	}
	return rows
}

func traceRows(r *service.Report) [][]string {
	t := r.Trace
	if t == nil {
		return [][]string{{"chain", "draw"}}
	}
	rows := make([][]string, 0, 1+len(t.Chains)*t.Draws)
	rows = append(rows, append([]string{"chain", "draw"}, t.Names...))
	for _, c := range t.Chains {
		for d, sample := range c.Samples {
			row := make([]string, 0, 2+len(sample))
			row = append(row, strconv.Itoa(c.ID), strconv.Itoa(d))
			for _, v := range sample {
				row = append(row, formatFloat(v))
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func volatilityRows(vs []service.RegimeReport) [][]string {
	rows := [][]string{{"regime", "start", "end", "start_date", "end_date", "n", "volatility", "annualized"}}
	for _, v := range vs {
		rows = append(rows, []string{
			v.Label,
			strconv.Itoa(v.Start),
			strconv.Itoa(v.End),
			formatDate(v.StartDate),
			formatDate(v.EndDate),
			strconv.Itoa(v.N),
			formatFloat(v.Volatility),
			formatFloat(v.Annualized),
		})
	}
	return rows
}

func changePointRows(r *service.Report) [][]string {
	rows := [][]string{{"source", "index", "date"}}
	for i, b := range r.Segmentation.Breakpoints {
		var d time.Time
		if i < len(r.ChangeDates) {
			d = r.ChangeDates[i]
		}
		rows = append(rows, []string{"segmentation", strconv.Itoa(b), formatDate(d)})
	}
	for i, b := range r.Breakpoints {
		var d time.Time
		if i < len(r.BreakpointDates) {
			d = r.BreakpointDates[i]
		}
		rows = append(rows, []string{"posterior", strconv.Itoa(b), formatDate(d)})
	}
	return rows
}

func matchRows(ms []model.MatchedEvent) [][]string {
	rows := [][]string{{
		"change_point", "change_date", "event_date", "event", "category", "days_from_change",
		"volatility_before", "volatility_after", "price_before", "price_after", "price_change_pct",
	}}
	for _, m := range ms {
		rows = append(rows, []string{
			m.ChangePoint,
			formatDate(m.ChangeDate),
			formatDate(m.Date),
			m.Name,
			m.Category,
			strconv.Itoa(m.DaysFromChange),
			formatFloat(m.VolatilityBefore),
			formatFloat(m.VolatilityAfter),
			formatFloat(m.PriceBefore),
			formatFloat(m.PriceAfter),
			formatFloat(m.PriceChangePct),
		})
	}
	return rows
}

func rollingRows(ps []service.RollingPoint) [][]string {
	rows := make([][]string, 0, len(ps)+1)
	rows = append(rows, []string{"date", "price", "rolling_mean", "rolling_std"})
	for _, p := range ps {
		rows = append(rows, []string{formatDate(p.Date), formatFloat(p.Price), formatFloat(p.Mean), formatFloat(p.StdDev)})
	}
	return rows
}
