// Package events joins estimated change points with an external event
// timeline and measures the market impact around each change.
package events

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/regime"
	"github.com/okian/volregime/internal/domain/volatility"
	"github.com/okian/volregime/pkg/logger"
	"github.com/okian/volregime/pkg/metrics"
	"gonum.org/v1/gonum/stat"
)

// Default correlation configuration constants.
const (
	defaultWindowDays   = 60
	defaultImpactWindow = 30
	hoursPerDay         = 24
	percent             = 100
)

// Correlator matches events to change points.
type Correlator struct {
	windowDays   int
	impactWindow int
	logger       logger.Logger
}

// NewCorrelator creates a correlator with a 60 day match window and a 30
// observation impact window.
func NewCorrelator(opts ...Option) *Correlator {
	c := &Correlator{
		windowDays:   defaultWindowDays,
		impactWindow: defaultImpactWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.OrNop("events")
	}
	return c
}

// impact holds the metrics of one change point.
type impact struct {
	date        time.Time
	volBefore   float64
	volAfter    float64
	priceBefore float64
	priceAfter  float64
	pctChange   float64
}

// Correlate returns one row per (change point, event) pair whose event date
// lies within the match window of the change date, inclusive. bkps index
// returns; prices must contain the dates of returns. Rows are ordered by
// change point, then by event date. Change points without events add no
// rows, and no matches at all is an empty result rather than an error.
func (c *Correlator) Correlate(ctx context.Context, prices model.TimeSeries, returns model.LogReturnSeries, bkps []int, evts []model.Event) ([]model.MatchedEvent, error) {
	for j, idx := range bkps {
		if idx < 0 || idx >= returns.Len() {
			return nil, fmt.Errorf("events: %w: %s=%d outside [0, %d)", model.ErrIndexOutOfRange, regime.TauName(j), idx, returns.Len())
		}
	}

	sorted := slices.Clone(evts)
	slices.SortStableFunc(sorted, func(a, b model.Event) int { return a.Date.Compare(b.Date) })

	out := []model.MatchedEvent{}
	for j, idx := range bkps {
		im := c.impactAt(prices, returns, idx)
		from := im.date.AddDate(0, 0, -c.windowDays)
		to := im.date.AddDate(0, 0, c.windowDays)
		matched := 0
		for _, e := range sorted {
			if e.Date.Before(from) || e.Date.After(to) {
				continue
			}
			e.Attributes = maps.Clone(e.Attributes)
			out = append(out, model.MatchedEvent{
				Event:            e,
				ChangePoint:      regime.TauName(j),
				ChangeIndex:      idx,
				ChangeDate:       im.date,
				WindowStart:      from,
				WindowEnd:        to,
				DaysFromChange:   int(math.Round(e.Date.Sub(im.date).Hours() / hoursPerDay)),
				VolatilityBefore: im.volBefore,
				VolatilityAfter:  im.volAfter,
				PriceBefore:      im.priceBefore,
				PriceAfter:       im.priceAfter,
				PriceChangePct:   im.pctChange,
			})
			matched++
		}
		c.logger.Debug(ctx, "change point correlated",
			logger.String("change_point", regime.TauName(j)),
			logger.String("date", im.date.Format(time.DateOnly)),
			logger.Int("events", matched),
		)
	}
	metrics.RecordEventsMatched(len(bkps), len(out))
	return out, nil
}

// impactAt computes the before/after metrics of the change at idx. Slices
// are truncated at the series bounds.
func (c *Correlator) impactAt(prices model.TimeSeries, returns model.LogReturnSeries, idx int) impact {
	im := impact{date: returns.DateAt(idx)}
	im.volBefore, _ = volatility.StdDev(returns.Slice(idx-c.impactWindow, idx))
	im.volAfter, _ = volatility.StdDev(returns.Slice(idx, idx+c.impactWindow))

	p := prices.IndexOf(im.date)
	if p < 0 {
		// Fall back to the first price on or after the change date.
		first, _, ok := prices.Window(im.date, time.Time{})
		if !ok {
			im.priceBefore, im.priceAfter, im.pctChange = math.NaN(), math.NaN(), math.NaN()
			return im
		}
		p = first
	}
	im.priceBefore = mean(prices.Slice(p-c.impactWindow, p))
	im.priceAfter = mean(prices.Slice(p, p+c.impactWindow))
	im.pctChange = math.NaN()
	if !math.IsNaN(im.priceBefore) && im.priceBefore != 0 {
		im.pctChange = (im.priceAfter - im.priceBefore) / im.priceBefore * percent
	}
	return im
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// Share is the proportion of one event category.
type Share struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Percent  float64 `json:"percent"` // rounded to two decimals
}

// EventTypeShares returns the percentage of events in each category,
// largest first and then by name. Events without a category count as
// "Unknown".
func EventTypeShares(evts []model.Event) []Share {
	counts := make(map[string]int)
	for _, e := range evts {
		cat := e.Category
		if cat == "" {
			cat = "Unknown"
		}
		counts[cat]++
	}
	out := make([]Share, 0, len(counts))
	for cat, n := range counts {
		pct := float64(n) / float64(len(evts)) * percent
		out = append(out, Share{Category: cat, Count: n, Percent: math.Round(pct*percent) / percent})
	}
	slices.SortFunc(out, func(a, b Share) int {
		if d := cmp.Compare(b.Count, a.Count); d != 0 {
			return d
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out
}
