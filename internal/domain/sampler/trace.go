package sampler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/volregime/internal/domain/model"
)

// Chain holds the retained draws and tuning diagnostics of one chain.
type Chain struct {
	ID             int         `json:"id"`
	Seed           uint64      `json:"seed"`
	Samples        [][]float64 `json:"-"`               // Samples[draw][param]
	TuneAcceptance []float64   `json:"tune_acceptance"` // per parameter, during tuning
	Acceptance     []float64   `json:"acceptance"`      // per parameter, during draws
	StepSizes      []float64   `json:"step_sizes"`      // frozen proposal scales
	Degenerate     []string    `json:"degenerate,omitempty"`
}

// Trace is the complete output of a sampling run. Chains are indexed by
// chain ID, so the layout does not depend on scheduling.
type Trace struct {
	RunID    uuid.UUID `json:"run_id"`
	Names    []string  `json:"names"`
	Discrete []bool    `json:"discrete"` // breakpoint parameters, parallel to Names
	Draws    int       `json:"draws"`
	Tune     int       `json:"tune"`
	Seeds    []uint64  `json:"seeds"`
	Chains   []Chain   `json:"chains"`
}

// Index returns the position of the named parameter, or -1.
func (t *Trace) Index(name string) int { return slices.Index(t.Names, name) }

// Param returns the draws of one parameter, one slice per chain. It returns
// nil for an unknown name.
func (t *Trace) Param(name string) [][]float64 {
	i := t.Index(name)
	if i < 0 {
		return nil
	}
	out := make([][]float64, len(t.Chains))
	for c, ch := range t.Chains {
		col := make([]float64, len(ch.Samples))
		for d, row := range ch.Samples {
			col[d] = row[i]
		}
		out[c] = col
	}
	return out
}

// Pooled returns the draws of one parameter from every chain, concatenated
// in chain order.
func (t *Trace) Pooled(name string) []float64 {
	var out []float64
	for _, col := range t.Param(name) {
		out = append(out, col...)
	}
	return out
}

// Degenerate lists the parameters that never accepted a proposal during
// tuning in at least one chain.
func (t *Trace) Degenerate() []string {
	var out []string
	for _, ch := range t.Chains {
		for _, name := range ch.Degenerate {
			if !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
	}
	return out
}

// Err reports model.ErrSamplingDegenerate when any chain failed to move a
// parameter during tuning. The trace itself remains usable.
func (t *Trace) Err() error {
	if d := t.Degenerate(); len(d) > 0 {
		return fmt.Errorf("%w: zero tuning acceptances for %s", model.ErrSamplingDegenerate, strings.Join(d, ", "))
	}
	return nil
}
