// Package sampler draws posterior samples of a regime model with
// Metropolis-within-Gibbs.
//
// Every chain owns its parameter vector, random stream and tuning state.
// Chains are queued as jobs and executed by a worker pool; each writes only
// its own slot of the trace, and the trace is read after all of them have
// joined. Breakpoints move by a symmetric integer random walk, the mean by a
// Gaussian random walk and the scales by a random walk on log scale. Step
// sizes are tuned during the tuning phase and frozen afterwards.
package sampler

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/volregime/internal/adapters/mq/queue"
	"github.com/okian/volregime/internal/adapters/mq/worker"
	"github.com/okian/volregime/internal/domain/model"
	"github.com/okian/volregime/internal/domain/regime"
	"github.com/okian/volregime/pkg/logger"
	"github.com/okian/volregime/pkg/metrics"
)

// Default sampler configuration constants.
const (
	defaultDraws         = 2000
	defaultTune          = 1000
	defaultChains        = 4
	defaultSeed          = 42
	defaultAdaptInterval = 100
)

// runNamespace scopes run identifiers of this package.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("volregime/sampler")) //nolint:gochecknoglobals // constant namespace

// Sampler runs MCMC chains for one model.
type Sampler struct {
	model         *regime.Model
	draws         int
	tune          int
	chains        int
	seed          uint64
	seeds         []uint64
	workers       int
	adaptInterval int
	logger        logger.Logger
}

// New creates a sampler with 4 chains of 2000 draws after 1000 tuning
// iterations, seeded from 42.
func New(m *regime.Model, opts ...Option) (*Sampler, error) {
	if m == nil {
		return nil, fmt.Errorf("sampler: %w: nil model", model.ErrModelMisspecified)
	}
	s := &Sampler{
		model:         m,
		draws:         defaultDraws,
		tune:          defaultTune,
		chains:        defaultChains,
		seed:          defaultSeed,
		adaptInterval: defaultAdaptInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.OrNop("sampler")
	}
	if s.draws < 1 || s.tune < 0 || s.chains < 1 {
		return nil, fmt.Errorf("sampler: %w: draws=%d tune=%d chains=%d", ErrInvalidCount, s.draws, s.tune, s.chains)
	}
	if s.seeds == nil {
		s.seeds = make([]uint64, s.chains)
		for c := range s.seeds {
			s.seeds[c] = s.seed + uint64(c)
		}
	}
	if len(s.seeds) != s.chains {
		return nil, fmt.Errorf("sampler: %w: %d seeds for %d chains", ErrInvalidSeeds, len(s.seeds), s.chains)
	}
	if s.workers == 0 {
		s.workers = min(s.chains, runtime.NumCPU())
	}
	return s, nil
}

// Seeds returns the per-chain seeds.
func (s *Sampler) Seeds() []uint64 { return append([]uint64(nil), s.seeds...) }

// Sample draws from the posterior given the observed log-returns. A
// cancelled run returns a nil trace and the context error; partial chains
// are discarded. Zero tuning acceptances do not fail the run, they are
// reported by Trace.Err.
func (s *Sampler) Sample(ctx context.Context, returns []float64) (*Trace, error) {
	if len(returns) != s.model.N() {
		return nil, fmt.Errorf("sampler: %w: model expects %d observations, got %d",
			model.ErrLengthMismatch, s.model.N(), len(returns))
	}
	obs, err := regime.NewObservations(returns)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}
	if lp := s.model.LogProb(s.model.Initial(obs), obs); math.IsInf(lp, -1) || math.IsNaN(lp) {
		return nil, fmt.Errorf("sampler: %w: initial point has zero density", model.ErrModelMisspecified)
	}

	trace := &Trace{
		RunID:    s.runID(returns),
		Names:    s.model.Names(),
		Discrete: make([]bool, s.model.Dim()),
		Draws:    s.draws,
		Tune:     s.tune,
		Seeds:    s.Seeds(),
		Chains:   make([]Chain, s.chains),
	}
	for i := range trace.Discrete {
		trace.Discrete[i] = s.model.IsDiscrete(i)
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(s.chains))
	for c, seed := range s.seeds {
		if !q.Enqueue(ctx, queue.Job{ChainID: c, Seed: seed}) {
			_ = q.Close()
			if err := ctx.Err(); err != nil {
				metrics.RecordChainCancelled()
				return nil, fmt.Errorf("sampler: %w", err)
			}
			return nil, fmt.Errorf("sampler: could not enqueue chain %d", c)
		}
	}
	_ = q.Close()

	start := time.Now()
	runner := worker.RunnerFunc(func(ctx context.Context, job worker.Job) error {
		res, err := s.runChain(ctx, obs, job)
		if err != nil {
			return err
		}
		trace.Chains[job.ChainID] = res
		return nil
	})
	pool := worker.NewPool(min(s.workers, s.chains), q, runner, worker.WithLogger(s.logger))
	pool.Start(ctx)
	if err := pool.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			metrics.RecordChainCancelled()
			s.logger.Warn(ctx, "sampling cancelled", logger.String("run_id", trace.RunID.String()))
		}
		return nil, fmt.Errorf("sampler: %w", err)
	}

	for _, name := range trace.Degenerate() {
		metrics.RecordSamplerDegenerate(name)
		s.logger.Warn(ctx, "parameter never moved during tuning", logger.String("parameter", name))
	}
	s.logger.Info(ctx, "sampling finished",
		logger.String("run_id", trace.RunID.String()),
		logger.Int("chains", s.chains),
		logger.Int("draws", s.draws),
		logger.Int("tune", s.tune),
		logger.Duration("elapsed", time.Since(start)),
	)
	return trace, nil
}

func (s *Sampler) runChain(ctx context.Context, obs regime.Observations, job worker.Job) (Chain, error) {
	start := time.Now()
	c := newChain(s.model, obs, job.Seed)
	res, err := c.run(ctx, job.ChainID, job.Seed, s.tune, s.draws, s.adaptInterval)
	if err != nil {
		return Chain{}, err
	}

	metrics.RecordSamplerIterations("tune", s.tune)
	metrics.RecordSamplerIterations("draw", s.draws)
	metrics.RecordChainCompleted(float64(time.Since(start).Milliseconds()))
	id := strconv.Itoa(job.ChainID)
	fields := []logger.Field{logger.Int("chain", job.ChainID), logger.Uint64("seed", job.Seed)}
	for i, name := range s.model.Names() {
		metrics.UpdateChainParameter(id, name, res.Acceptance[i], res.StepSizes[i])
		fields = append(fields, logger.Float64("accept_"+name, res.Acceptance[i]))
	}
	s.logger.Debug(ctx, "chain finished", fields...)
	return res, nil
}

// runID derives a deterministic identifier from everything that determines
// the draws.
func (s *Sampler) runID(returns []float64) uuid.UUID {
	buf := make([]byte, 0, 8*(len(returns)+len(s.seeds)+8))
	buf = fmt.Appendf(buf, "%s|%d|%d|%d|", s.model, s.draws, s.tune, s.adaptInterval)
	for _, seed := range s.seeds {
		buf = binary.LittleEndian.AppendUint64(buf, seed)
	}
	for _, r := range returns {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(r))
	}
	return uuid.NewSHA1(runNamespace, buf)
}
