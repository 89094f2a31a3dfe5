package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"

	"mcs-engine/internal/distribution"
	"mcs-engine/internal/metrics"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Engine resolves parameters and runs simulations. It owns the random source,
// so an Engine is not safe for concurrent use; fan-out work runs on child
// engines forked from it before the goroutines start.
type Engine struct {
	rng     *rand.Rand
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed makes the engine deterministic.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.SetSeed(seed) }
}

// WithWorkers bounds concurrent fan-out tasks. Values < 1 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rng:     distribution.NewSource(0),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSeed sets the seed for the random number generator.
func (e *Engine) SetSeed(seed uint64) {
	e.rng = distribution.NewSource(seed)
}

// Workers returns the fan-out concurrency limit.
func (e *Engine) Workers() int {
	return e.workers
}

// fork derives an independent child engine from the parent's stream.
func (e *Engine) fork() *Engine {
	return &Engine{rng: rand.New(rand.NewPCG(e.rng.Uint64(), e.rng.Uint64())), workers: e.workers}
}

// Resolve turns a parameter into exactly n per-trial values.
func (e *Engine) Resolve(ctx context.Context, p Parameter, n int) ([]float64, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil parameter", ErrInvalidParameter)
	}
	if n <= 0 {
		return nil, paramErr(p.Name(), fmt.Errorf("%w: sample count must be positive, got %d", ErrInvalidParameter, n))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		values []float64
		err    error
	)
	switch p := p.(type) {
	case *Constant:
		values = e.resolveConstant(p, n)
	case *Discrete:
		values = e.resolveDiscrete(p.thresholds, func(i int) float64 { return p.outcomes[i].Value }, n)
	case *Distribution:
		values, err = e.resolveDistribution(p, n)
	case *DistributionFunction:
		values, err = e.resolveDistributionFunction(ctx, p, n)
	case *Precomputed:
		values, err = e.resolvePrecomputed(p, n)
	case *Conditional:
		values, err = e.resolveConditional(ctx, p, n)
	case *RandomBag:
		values, err = e.resolveRandomBag(p, n)
	case *NestedSimulation:
		values, err = e.resolveNested(ctx, p, n)
	case *DependentSimulationParameter:
		values, err = e.resolveDependentParameter(ctx, p, n)
	case *QualitativeInterpretation:
		values, err = e.resolveQualitativeInterpretation(ctx, p, n)
	default:
		err = fmt.Errorf("%w: unsupported parameter type %T", ErrInvalidParameter, p)
	}
	if err != nil {
		return nil, paramErr(p.Name(), err)
	}
	if len(values) != n {
		return nil, paramErr(p.Name(), fmt.Errorf("%w: resolved %d values, expected %d", ErrInvalidParameter, len(values), n))
	}

	metrics.ResolutionsTotal.WithLabelValues(p.Kind()).Inc()
	return values, nil
}

// ResolveQualitative turns a categorical parameter into exactly n values.
func (e *Engine) ResolveQualitative(ctx context.Context, q QualitativeParameter, n int) ([]string, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: nil qualitative parameter", ErrInvalidParameter)
	}
	if n <= 0 {
		return nil, paramErr(q.Name(), fmt.Errorf("%w: sample count must be positive, got %d", ErrInvalidParameter, n))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch q := q.(type) {
	case *QualitativeConstant:
		out := make([]string, n)
		for i := range out {
			out[i] = q.value
		}
		return out, nil
	case *QualitativeDiscrete:
		idx := e.pickIndices(q.thresholds, n)
		out := make([]string, n)
		for i, j := range idx {
			out[i] = q.outcomes[j].Value
		}
		return out, nil
	case *QualitativePrecomputed:
		if len(q.values) != n {
			return nil, paramErr(q.Name(), fmt.Errorf("%w: have %d values, need %d", ErrPrecomputedValueCount, len(q.values), n))
		}
		return slices.Clone(q.values), nil
	}
	return nil, paramErr(q.Name(), fmt.Errorf("%w: unsupported qualitative parameter type %T", ErrInvalidParameter, q))
}

// fanOut runs task once per index on a bounded worker pool. Each index gets a
// child engine derived up front, so seeded runs are reproducible regardless
// of scheduling, and each result lands in its own pre-sized slot.
func (e *Engine) fanOut(ctx context.Context, n int, task func(ctx context.Context, child *Engine) (float64, error)) ([]float64, error) {
	children := make([]*Engine, n)
	for i := range children {
		children[i] = e.fork()
	}

	out := make([]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := task(gctx, children[i])
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// repair applies c to every index of values, redrawing through redraw.
func repair(name string, c *Constraint, values []float64, redraw func() (float64, error)) error {
	if c == nil {
		return nil
	}
	repaired := 0
	for i, v := range values {
		fixed, changed, err := c.Apply(v, redraw)
		if err != nil {
			return err
		}
		if changed {
			values[i] = fixed
			repaired++
		}
	}
	if repaired > 0 {
		metrics.ConstraintRepairsTotal.WithLabelValues(c.Policy.String()).Add(float64(repaired))
		log.Debug().
			Str("parameter", name).
			Str("constraint", c.String()).
			Int("repaired", repaired).
			Int("samples", len(values)).
			Msg("Constraint repairs applied")
	}
	return nil
}
