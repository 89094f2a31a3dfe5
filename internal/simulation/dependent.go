package simulation

import (
	"context"
	"fmt"
	"time"

	"mcs-engine/internal/expression"
	"mcs-engine/internal/metrics"
	"mcs-engine/internal/stats"

	"github.com/rs/zerolog/log"
)

// ValueName is the variable bound to the previous trial's result in a
// dependent simulation.
const ValueName = "value"

// DependentSimulation is a sequential recurrence: trial i evaluates the
// expression with value bound to trial i-1's result (the start value for the
// first trial) and the change parameter bound to its i-th draw.
type DependentSimulation struct {
	expression *expression.Expression
	startValue float64
	change     Parameter
}

func NewDependent(text string, startValue float64, change Parameter) (*DependentSimulation, error) {
	expr, err := expression.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := validateChange(expr, change); err != nil {
		return nil, err
	}
	return &DependentSimulation{expression: expr, startValue: startValue, change: change}, nil
}

func validateChange(expr *expression.Expression, change Parameter) error {
	if change == nil {
		return fmt.Errorf("%w: nil change parameter", ErrInvalidParameter)
	}
	if err := validateName(change.Name()); err != nil {
		return err
	}
	if change.Name() == ValueName {
		return paramErr(change.Name(), fmt.Errorf("%w: %q is reserved", ErrInvalidParameter, ValueName))
	}
	for _, name := range expr.Variables() {
		if name != ValueName && name != change.Name() {
			return fmt.Errorf("%w: %q has no parameter", expression.ErrUnresolvedVariable, name)
		}
	}
	return nil
}

func (d *DependentSimulation) Expression() string { return d.expression.String() }
func (d *DependentSimulation) StartValue() float64 { return d.startValue }
func (d *DependentSimulation) ChangeParameter() Parameter { return d.change }

// SimulateDependent resolves the change parameter at n trials and runs the
// recurrence.
func (e *Engine) SimulateDependent(ctx context.Context, d *DependentSimulation, n int) (*DependentResults, error) {
	start := time.Now()
	res, err := e.runDependent(ctx, d, n)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.SimulationsTotal.WithLabelValues("dependent").Inc()
	metrics.TrialsTotal.Add(float64(n))
	metrics.SimulationDuration.WithLabelValues("dependent").Observe(elapsed.Seconds())
	log.Info().
		Str("expression", d.expression.String()).
		Float64("start_value", d.startValue).
		Int("samples", n).
		Dur("elapsed", elapsed).
		Msg("Dependent simulation completed")
	return res, nil
}

func (e *Engine) runDependent(ctx context.Context, d *DependentSimulation, n int) (*DependentResults, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil dependent simulation", ErrInvalidParameter)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample count must be positive, got %d", ErrInvalidParameter, n)
	}
	if err := checkParameter(d.change, n); err != nil {
		return nil, err
	}
	change, err := e.Resolve(ctx, d.change, n)
	if err != nil {
		return nil, err
	}
	values, err := replay(d.expression, d.startValue, d.change.Name(), change)
	if err != nil {
		return nil, err
	}
	return &DependentResults{
		engine:       e,
		expression:   d.expression,
		startValue:   d.startValue,
		change:       d.change,
		changeValues: change,
		values:       values,
	}, nil
}

// replay runs the whole chain. No trial can be reused once any input changes.
func replay(expr *expression.Expression, startValue float64, changeName string, change []float64) ([]float64, error) {
	out := make([]float64, len(change))
	bindings := map[string]float64{ValueName: startValue}
	for i, c := range change {
		bindings[changeName] = c
		v, err := expr.Evaluate(bindings)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
		out[i] = v
		bindings[ValueName] = v
	}
	return out, nil
}

// DependentResults is the outcome of a dependent simulation. Like Results it
// is immutable, and returned slices must not be modified.
type DependentResults struct {
	engine       *Engine
	expression   *expression.Expression
	startValue   float64
	change       Parameter
	changeValues []float64
	values       []float64
}

func (r *DependentResults) Expression() string { return r.expression.String() }
func (r *DependentResults) StartValue() float64 { return r.startValue }
func (r *DependentResults) ChangeParameter() Parameter { return r.change }
func (r *DependentResults) ChangeValues() []float64 { return r.changeValues }
func (r *DependentResults) Values() []float64 { return r.values }
func (r *DependentResults) SampleCount() int { return len(r.changeValues) }

func (r *DependentResults) Summary() stats.Summary {
	return stats.Summarize(r.values)
}

func (r *DependentResults) replayWith(expr *expression.Expression, startValue float64, change Parameter, changeValues []float64) (*DependentResults, error) {
	values, err := replay(expr, startValue, change.Name(), changeValues)
	if err != nil {
		return nil, err
	}
	return &DependentResults{
		engine:       r.engine,
		expression:   expr,
		startValue:   startValue,
		change:       change,
		changeValues: changeValues,
		values:       values,
	}, nil
}

// RecomputeExpression replays the chain with a new expression against the
// same change draws.
func (r *DependentResults) RecomputeExpression(text string) (*DependentResults, error) {
	expr, err := expression.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := validateChange(expr, r.change); err != nil {
		return nil, err
	}
	return r.replayWith(expr, r.startValue, r.change, r.changeValues)
}

// ReplaceInitialValue replays the chain from a new start value.
func (r *DependentResults) ReplaceInitialValue(v float64) (*DependentResults, error) {
	return r.replayWith(r.expression, v, r.change, r.changeValues)
}

// ReplaceChangeParameter resolves p at the current sample count and replays.
// A renamed parameter is renamed in the expression too.
func (r *DependentResults) ReplaceChangeParameter(ctx context.Context, p Parameter) (*DependentResults, error) {
	expr := r.expression
	if p != nil && p.Name() != r.change.Name() {
		var err error
		if expr, err = expr.Rename(r.change.Name(), p.Name()); err != nil {
			return nil, err
		}
	}
	if err := validateChange(expr, p); err != nil {
		return nil, err
	}

	n := r.SampleCount()
	if err := checkParameter(p, n); err != nil {
		return nil, err
	}
	changeValues, err := r.engine.Resolve(ctx, p, n)
	if err != nil {
		return nil, err
	}
	return r.replayWith(expr, r.startValue, p, changeValues)
}

// Regenerate resamples the change parameter at n trials, or at the current
// sample count when n <= 0, and replays.
func (r *DependentResults) Regenerate(ctx context.Context, n int) (*DependentResults, error) {
	if n <= 0 {
		n = r.SampleCount()
	}
	d := &DependentSimulation{expression: r.expression, startValue: r.startValue, change: r.change}
	return r.engine.runDependent(ctx, d, n)
}

