package simulation

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"mcs-engine/internal/expression"
	"mcs-engine/internal/metrics"
	"mcs-engine/internal/stats"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SensitivityOptions selects the sweep strategy.
type SensitivityOptions struct {
	// Exhaustive sweeps the Cartesian product of all factors. Otherwise the
	// factors are swept together and must share one length.
	Exhaustive bool
	// Parallel runs scenarios concurrently. Keys are then sorted
	// lexicographically, which may differ from declaration order.
	Parallel bool
}

// scenario is one substituted parameter set and its key.
type scenario struct {
	key    string
	params []Parameter
}

// Sensitivity runs one simulation per combination of the precomputed
// (factor) parameters of sim, each factor substituted by a Constant.
func (e *Engine) Sensitivity(ctx context.Context, sim *Simulation, n int, opts SensitivityOptions) (*SensitivityResults, error) {
	if sim == nil {
		return nil, fmt.Errorf("%w: nil simulation", ErrInvalidParameter)
	}
	start := time.Now()
	res, err := e.sensitivity(ctx, sim.expression, sim.parameters, n, opts)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.SimulationsTotal.WithLabelValues("sensitivity").Inc()
	metrics.TrialsTotal.Add(float64(n * res.Len()))
	metrics.SimulationDuration.WithLabelValues("sensitivity").Observe(elapsed.Seconds())
	log.Info().
		Str("expression", sim.expression.String()).
		Int("scenarios", res.Len()).
		Int("samples", n).
		Bool("exhaustive", opts.Exhaustive).
		Bool("parallel", opts.Parallel).
		Int("workers", e.Workers()).
		Dur("elapsed", elapsed).
		Msg("Sensitivity analysis completed")
	return res, nil
}

func (e *Engine) sensitivity(ctx context.Context, expr *expression.Expression, params []Parameter, n int, opts SensitivityOptions) (*SensitivityResults, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive, got %d", ErrInvalidParameter, n)
	}
	if err := validateParameters(params); err != nil {
		return nil, err
	}
	scenarios, err := buildScenarios(params, opts.Exhaustive)
	if err != nil {
		return nil, err
	}
	// Factors are substituted before precheck, so the remaining parameters
	// are checked against n once here rather than per scenario.
	if err := precheck(&Simulation{expression: expr, parameters: scenarios[0].params}, n); err != nil {
		return nil, err
	}

	log.Debug().
		Int("scenarios", len(scenarios)).
		Bool("exhaustive", opts.Exhaustive).
		Bool("parallel", opts.Parallel).
		Msg("Running sensitivity scenarios")

	var (
		keys    []string
		results map[string]*Results
	)
	if opts.Parallel {
		keys, results, err = e.runScenariosParallel(ctx, expr, scenarios, n)
	} else {
		keys, results, err = e.runScenarios(ctx, expr, scenarios, n)
	}
	if err != nil {
		return nil, err
	}
	metrics.ScenariosTotal.Add(float64(len(keys)))

	return &SensitivityResults{
		engine:      e,
		expression:  expr,
		parameters:  slices.Clone(params),
		sampleCount: n,
		options:     opts,
		keys:        keys,
		scenarios:   results,
	}, nil
}

func (e *Engine) runScenarios(ctx context.Context, expr *expression.Expression, scenarios []scenario, n int) ([]string, map[string]*Results, error) {
	keys := make([]string, 0, len(scenarios))
	results := make(map[string]*Results, len(scenarios))
	for _, sc := range scenarios {
		res, err := e.run(ctx, &Simulation{expression: expr, parameters: sc.params}, n)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %q: %w", sc.key, err)
		}
		keys = append(keys, sc.key)
		results[sc.key] = res
	}
	return keys, results, nil
}

func (e *Engine) runScenariosParallel(ctx context.Context, expr *expression.Expression, scenarios []scenario, n int) ([]string, map[string]*Results, error) {
	children := make([]*Engine, len(scenarios))
	for i := range children {
		children[i] = e.fork()
	}

	var mu sync.Mutex
	results := make(map[string]*Results, len(scenarios))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, sc := range scenarios {
		g.Go(func() error {
			params := slices.Clone(sc.params)
			res, err := children[i].run(gctx, &Simulation{expression: expr, parameters: params}, n)
			if err != nil {
				return fmt.Errorf("scenario %q: %w", sc.key, err)
			}
			mu.Lock()
			results[sc.key] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, results, nil
}

// buildScenarios enumerates factor combinations in declaration order, the
// last factor varying fastest.
func buildScenarios(params []Parameter, exhaustive bool) ([]scenario, error) {
	var factors []int
	for i, p := range params {
		if f, ok := p.(*Precomputed); ok {
			if f.Len() == 0 {
				return nil, paramErr(f.Name(), fmt.Errorf("%w: factor has no values", ErrPrecomputedValueCount))
			}
			factors = append(factors, i)
		}
	}
	if len(factors) == 0 {
		return nil, ErrMissingPrecomputedParameter
	}

	var combos [][]int
	if exhaustive && len(factors) > 1 {
		combos = cartesian(params, factors)
	} else {
		first := params[factors[0]].(*Precomputed)
		for _, i := range factors[1:] {
			if f := params[i].(*Precomputed); f.Len() != first.Len() {
				return nil, paramErr(f.Name(), fmt.Errorf("%w: factor has %d values, %q has %d", ErrPrecomputedValueCount, f.Len(), first.Name(), first.Len()))
			}
		}
		for v := range first.Len() {
			combo := make([]int, len(factors))
			for j := range combo {
				combo[j] = v
			}
			combos = append(combos, combo)
		}
	}

	scenarios := make([]scenario, len(combos))
	seen := make(map[string]bool, len(combos))
	for c, combo := range combos {
		sub := slices.Clone(params)
		pairs := make([]string, len(factors))
		for j, i := range factors {
			f := params[i].(*Precomputed)
			v := f.values[combo[j]]
			sub[i] = NewConstant(f.Name(), v)
			pairs[j] = f.Name() + " = " + strconv.FormatFloat(v, 'g', -1, 64)
		}
		key := strings.Join(pairs, "; ")
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate scenario %q", ErrInvalidParameter, key)
		}
		seen[key] = true
		scenarios[c] = scenario{key: key, params: sub}
	}
	return scenarios, nil
}

func cartesian(params []Parameter, factors []int) [][]int {
	total := 1
	for _, i := range factors {
		total *= params[i].(*Precomputed).Len()
	}
	combos := make([][]int, total)
	combo := make([]int, len(factors))
	for c := range combos {
		combos[c] = slices.Clone(combo)
		for j := len(factors) - 1; j >= 0; j-- {
			combo[j]++
			if combo[j] < params[factors[j]].(*Precomputed).Len() {
				break
			}
			combo[j] = 0
		}
	}
	return combos
}

// SensitivityResults maps scenario keys to the results of each scenario.
// Like Results it is immutable; mutations return a new value.
type SensitivityResults struct {
	engine      *Engine
	expression  *expression.Expression
	parameters  []Parameter
	sampleCount int
	options     SensitivityOptions
	keys        []string
	scenarios   map[string]*Results
}

// Keys returns scenario keys in iteration order.
func (s *SensitivityResults) Keys() []string { return slices.Clone(s.keys) }

func (s *SensitivityResults) Scenario(key string) (*Results, bool) {
	r, ok := s.scenarios[key]
	return r, ok
}

func (s *SensitivityResults) Len() int { return len(s.keys) }
func (s *SensitivityResults) SampleCount() int { return s.sampleCount }
func (s *SensitivityResults) Exhaustive() bool { return s.options.Exhaustive }
func (s *SensitivityResults) Parallel() bool { return s.options.Parallel }
func (s *SensitivityResults) Expression() string { return s.expression.String() }
func (s *SensitivityResults) Parameters() []Parameter { return slices.Clone(s.parameters) }

// Summaries derives the statistics of every scenario.
func (s *SensitivityResults) Summaries() map[string]stats.Summary {
	out := make(map[string]stats.Summary, len(s.scenarios))
	for k, r := range s.scenarios {
		out[k] = r.Summary()
	}
	return out
}

// cascade applies fn to every scenario in key order.
func (s *SensitivityResults) cascade(expr *expression.Expression, params []Parameter, fn func(*Results) (*Results, error)) (*SensitivityResults, error) {
	scenarios := make(map[string]*Results, len(s.scenarios))
	for _, k := range s.keys {
		r, err := fn(s.scenarios[k])
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", k, err)
		}
		scenarios[k] = r
	}
	return &SensitivityResults{
		engine:      s.engine,
		expression:  expr,
		parameters:  params,
		sampleCount: s.sampleCount,
		options:     s.options,
		keys:        slices.Clone(s.keys),
		scenarios:   scenarios,
	}, nil
}

func isFactor(p Parameter) bool {
	_, ok := p.(*Precomputed)
	return ok
}

// RecomputeExpression evaluates a new expression in every scenario.
func (s *SensitivityResults) RecomputeExpression(text string) (*SensitivityResults, error) {
	expr, err := expression.Parse(text)
	if err != nil {
		return nil, err
	}
	return s.cascade(expr, s.parameters, func(r *Results) (*Results, error) {
		return r.RecomputeExpression(text)
	})
}

// AddParameter adds p to every scenario. A new factor changes the scenario
// set, so everything is resimulated.
func (s *SensitivityResults) AddParameter(ctx context.Context, p Parameter) (*SensitivityResults, error) {
	params := append(slices.Clone(s.parameters), p)
	if err := validateParameters(params); err != nil {
		return nil, err
	}
	if isFactor(p) {
		return s.engine.sensitivity(ctx, s.expression, params, s.sampleCount, s.options)
	}
	return s.cascade(s.expression, params, func(r *Results) (*Results, error) {
		return r.AddParameter(ctx, p)
	})
}

// RemoveParameter removes an unreferenced parameter. Removing a factor
// resimulates.
func (s *SensitivityResults) RemoveParameter(ctx context.Context, name string) (*SensitivityResults, error) {
	i := indexOf(s.parameters, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q not found", ErrInvalidParameter, name)
	}
	if s.expression.References(name) {
		return nil, paramErr(name, fmt.Errorf("%w: %s", ErrParameterInExpression, s.expression))
	}
	params := slices.Delete(slices.Clone(s.parameters), i, i+1)
	if isFactor(s.parameters[i]) {
		return s.engine.sensitivity(ctx, s.expression, params, s.sampleCount, s.options)
	}
	return s.cascade(s.expression, params, func(r *Results) (*Results, error) {
		return r.RemoveParameter(name)
	})
}

// ReplaceParameter replaces oldName with p. If either is a factor the
// scenario set changes and everything is resimulated.
func (s *SensitivityResults) ReplaceParameter(ctx context.Context, oldName string, p Parameter) (*SensitivityResults, error) {
	i := indexOf(s.parameters, oldName)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q not found", ErrInvalidParameter, oldName)
	}
	params := slices.Clone(s.parameters)
	params[i] = p
	if err := validateParameters(params); err != nil {
		return nil, err
	}

	if isFactor(s.parameters[i]) || isFactor(p) {
		expr := s.expression
		if p.Name() != oldName {
			var err error
			if expr, err = expr.Rename(oldName, p.Name()); err != nil {
				return nil, err
			}
		}
		return s.engine.sensitivity(ctx, expr, params, s.sampleCount, s.options)
	}

	var renamed *expression.Expression
	res, err := s.cascade(s.expression, params, func(r *Results) (*Results, error) {
		next, err := r.ReplaceParameter(ctx, oldName, p)
		if err == nil {
			renamed = next.expression
		}
		return next, err
	})
	if err != nil {
		return nil, err
	}
	if renamed != nil {
		res.expression = renamed
	}
	return res, nil
}

// Regenerate resimulates every scenario at n trials, or at the current
// sample count when n <= 0.
func (s *SensitivityResults) Regenerate(ctx context.Context, n int) (*SensitivityResults, error) {
	if n <= 0 {
		n = s.sampleCount
	}
	return s.engine.sensitivity(ctx, s.expression, s.parameters, n, s.options)
}

// Resimulate rebuilds the scenario set and runs it again.
func (s *SensitivityResults) Resimulate(ctx context.Context) (*SensitivityResults, error) {
	return s.Regenerate(ctx, s.sampleCount)
}
