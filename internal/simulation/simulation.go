package simulation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"mcs-engine/internal/expression"
	"mcs-engine/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Simulation is a stateless recipe: an expression and the parameters bound
// to its variables.
type Simulation struct {
	expression *expression.Expression
	parameters []Parameter
}

// New parses text and binds params to it. Parameter names must be valid
// identifiers and unique.
func New(text string, params ...Parameter) (*Simulation, error) {
	expr, err := expression.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := validateParameters(params); err != nil {
		return nil, err
	}
	return &Simulation{expression: expr, parameters: slices.Clone(params)}, nil
}

func validateParameters(params []Parameter) error {
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if p == nil {
			return fmt.Errorf("%w: parameter %d is nil", ErrInvalidParameter, i)
		}
		if err := validateName(p.Name()); err != nil {
			return err
		}
		if seen[p.Name()] {
			return paramErr(p.Name(), fmt.Errorf("%w: duplicate name", ErrInvalidParameter))
		}
		seen[p.Name()] = true
	}
	return nil
}

func (s *Simulation) Expression() string { return s.expression.String() }

// Parameters returns the parameters in declaration order.
func (s *Simulation) Parameters() []Parameter { return slices.Clone(s.parameters) }

// Parameter looks up a parameter by name.
func (s *Simulation) Parameter(name string) (Parameter, bool) {
	i := indexOf(s.parameters, name)
	if i < 0 {
		return nil, false
	}
	return s.parameters[i], true
}

// Simulate runs s on a fresh, time-seeded engine.
func (s *Simulation) Simulate(ctx context.Context, n int) (*Results, error) {
	return NewEngine().Simulate(ctx, s, n)
}

func indexOf(params []Parameter, name string) int {
	return slices.IndexFunc(params, func(p Parameter) bool { return p.Name() == name })
}

// Simulate resolves every parameter at n trials and evaluates the expression
// once per trial.
func (e *Engine) Simulate(ctx context.Context, sim *Simulation, n int) (*Results, error) {
	start := time.Now()
	res, err := e.run(ctx, sim, n)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.SimulationsTotal.WithLabelValues("standard").Inc()
	metrics.TrialsTotal.Add(float64(n))
	metrics.SimulationDuration.WithLabelValues("standard").Observe(elapsed.Seconds())
	log.Info().
		Str("expression", sim.expression.String()).
		Int("parameters", len(sim.parameters)).
		Int("samples", n).
		Dur("elapsed", elapsed).
		Msg("Simulation completed")
	return res, nil
}

// run is Simulate without logging or metrics; nested and scenario runs use it.
func (e *Engine) run(ctx context.Context, sim *Simulation, n int) (*Results, error) {
	if sim == nil {
		return nil, fmt.Errorf("%w: nil simulation", ErrInvalidParameter)
	}
	if err := precheck(sim, n); err != nil {
		return nil, err
	}

	raw := make([][]float64, len(sim.parameters))
	for i, p := range sim.parameters {
		values, err := e.Resolve(ctx, p, n)
		if err != nil {
			return nil, err
		}
		raw[i] = values
	}

	values, err := evaluate(sim.expression, sim.parameters, raw, n)
	if err != nil {
		return nil, err
	}
	return &Results{
		engine:     e,
		expression: sim.expression,
		parameters: slices.Clone(sim.parameters),
		rawData:    raw,
		values:     values,
	}, nil
}

// precheck fails fast, before anything is resolved, on problems that would
// otherwise surface only part way through resolution.
func precheck(sim *Simulation, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: sample count must be positive, got %d", ErrInvalidParameter, n)
	}
	for _, name := range sim.expression.Variables() {
		if indexOf(sim.parameters, name) < 0 {
			return fmt.Errorf("%w: %q has no parameter", expression.ErrUnresolvedVariable, name)
		}
	}
	for _, p := range sim.parameters {
		if err := checkParameter(p, n); err != nil {
			return err
		}
	}
	return nil
}

// checkParameter validates p and everything it resolves through at n trials.
func checkParameter(p Parameter, n int) error {
	if p == nil {
		return fmt.Errorf("%w: nil parameter", ErrInvalidParameter)
	}
	switch p := p.(type) {
	case *Precomputed:
		if len(p.values) != n {
			return paramErr(p.Name(), fmt.Errorf("%w: have %d values, need %d", ErrPrecomputedValueCount, len(p.values), n))
		}
	case *RandomBag:
		if p.Size() == 0 {
			return paramErr(p.Name(), ErrEmptyBag)
		}
	case *NestedSimulation:
		if p.simulation == nil {
			return paramErr(p.Name(), fmt.Errorf("%w: nil simulation", ErrInvalidParameter))
		}
		if err := precheck(p.simulation, p.innerSize(n)); err != nil {
			return paramErr(p.Name(), err)
		}
	case *DependentSimulationParameter:
		if p.simulation == nil {
			return paramErr(p.Name(), fmt.Errorf("%w: nil simulation", ErrInvalidParameter))
		}
		if err := checkParameter(p.simulation.change, p.innerSize(n)); err != nil {
			return paramErr(p.Name(), err)
		}
	case *QualitativeInterpretation:
		if q, ok := p.qualitative.(*QualitativePrecomputed); ok && len(q.values) != n {
			return paramErr(p.Name(), fmt.Errorf("%w: have %d values, need %d", ErrPrecomputedValueCount, len(q.values), n))
		}
	}
	for _, dep := range dependencies(p) {
		if err := checkParameter(dep, n); err != nil {
			return paramErr(p.Name(), err)
		}
	}
	return nil
}

// evaluate binds trial i of every vector and runs the expression once per trial.
func evaluate(expr *expression.Expression, params []Parameter, raw [][]float64, n int) ([]float64, error) {
	bindings := make(map[string]float64, len(params))
	out := make([]float64, n)
	for i := range n {
		for j, p := range params {
			bindings[p.Name()] = raw[j][i]
		}
		v, err := expr.Evaluate(bindings)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
