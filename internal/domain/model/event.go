package model

import "time"

// Event is an entry of the external event timeline.
type Event struct {
	Date       time.Time         // day the event happened
	Name       string            // short description, e.g. "Arab Spring"
	Category   string            // event type, e.g. "Geopolitical"
	Attributes map[string]string // remaining free-form columns
}

// MatchedEvent is an event annotated with the change point it fell near and
// the impact metrics of that change point.
type MatchedEvent struct {
	Event

	ChangePoint    string    // parameter label, e.g. "tau_1"
	ChangeIndex    int       // index into the log-return series
	ChangeDate     time.Time // timestamp of the change index
	WindowStart    time.Time // change date minus the match window
	WindowEnd      time.Time // change date plus the match window
	DaysFromChange int       // signed distance, negative when the event precedes the change

	VolatilityBefore float64 // std of returns immediately before the change, NaN when undefined
	VolatilityAfter  float64 // std of returns from the change on, NaN when undefined
	PriceBefore      float64 // mean price before the change
	PriceAfter       float64 // mean price from the change on
	PriceChangePct   float64 // (after - before) / before * 100
}

// RegimeVolatility is the realized volatility of one regime slice.
type RegimeVolatility struct {
	Label      string    // "before tau_1", "between tau_1 and tau_2", "after tau_2"
	Start      int       // first index, inclusive
	End        int       // last index, exclusive
	StartDate  time.Time // timestamp at Start, zero for an empty slice
	EndDate    time.Time // timestamp at End-1, zero for an empty slice
	N          int       // number of returns in the slice
	Volatility float64   // sample standard deviation, NaN when Defined is false
	Defined    bool      // false for slices shorter than two observations
}
