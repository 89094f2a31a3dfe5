package simulation

import (
	"context"
	"fmt"
	"slices"

	"mcs-engine/internal/expression"
	"mcs-engine/internal/stats"
)

// Results is the outcome of a simulation: one resolved vector per parameter,
// aligned by trial, and the expression evaluated per trial.
//
// Results is immutable. Every mutation returns a new *Results that shares the
// unchanged vectors with its predecessor, so slices returned by accessors must
// not be modified.
type Results struct {
	engine     *Engine
	expression *expression.Expression
	parameters []Parameter
	rawData    [][]float64
	values     []float64
}

func (r *Results) Expression() string { return r.expression.String() }

func (r *Results) Parameters() []Parameter { return slices.Clone(r.parameters) }

// Values returns the per-trial results.
func (r *Results) Values() []float64 { return r.values }

// RawData returns the resolved vector of the named parameter.
func (r *Results) RawData(name string) ([]float64, bool) {
	i := indexOf(r.parameters, name)
	if i < 0 {
		return nil, false
	}
	return r.rawData[i], true
}

// SampleCount is the current number of trials.
func (r *Results) SampleCount() int {
	if len(r.rawData) > 0 {
		return len(r.rawData[0])
	}
	return len(r.values)
}

// Summary derives the statistics of the result vector.
func (r *Results) Summary() stats.Summary {
	return stats.Summarize(r.values)
}

func (r *Results) with(expr *expression.Expression, params []Parameter, raw [][]float64, values []float64) *Results {
	return &Results{engine: r.engine, expression: expr, parameters: params, rawData: raw, values: values}
}

// RecomputeExpression evaluates a new expression against the existing
// vectors. Nothing is resampled.
func (r *Results) RecomputeExpression(text string) (*Results, error) {
	expr, err := expression.Parse(text)
	if err != nil {
		return nil, err
	}
	values, err := evaluate(expr, r.parameters, r.rawData, r.SampleCount())
	if err != nil {
		return nil, err
	}
	return r.with(expr, r.parameters, r.rawData, values), nil
}

// AddParameter resolves p at the current sample count and binds it. The
// result vector is unchanged because the expression is unchanged.
func (r *Results) AddParameter(ctx context.Context, p Parameter) (*Results, error) {
	params := append(slices.Clone(r.parameters), p)
	if err := validateParameters(params); err != nil {
		return nil, err
	}
	n := r.SampleCount()
	if err := checkParameter(p, n); err != nil {
		return nil, err
	}
	values, err := r.engine.Resolve(ctx, p, n)
	if err != nil {
		return nil, err
	}
	raw := append(slices.Clone(r.rawData), values)
	return r.with(r.expression, params, raw, r.values), nil
}

// RemoveParameter drops a parameter the expression no longer references.
func (r *Results) RemoveParameter(name string) (*Results, error) {
	i := indexOf(r.parameters, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q not found", ErrInvalidParameter, name)
	}
	if r.expression.References(name) {
		return nil, paramErr(name, fmt.Errorf("%w: %s", ErrParameterInExpression, r.expression))
	}
	params := slices.Delete(slices.Clone(r.parameters), i, i+1)
	raw := slices.Delete(slices.Clone(r.rawData), i, i+1)
	return r.with(r.expression, params, raw, r.values), nil
}

// ReplaceParameter resolves p in place of oldName. Only p is resolved. When
// the name changes, references in the expression are renamed first.
func (r *Results) ReplaceParameter(ctx context.Context, oldName string, p Parameter) (*Results, error) {
	i := indexOf(r.parameters, oldName)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q not found", ErrInvalidParameter, oldName)
	}
	params := slices.Clone(r.parameters)
	params[i] = p
	if err := validateParameters(params); err != nil {
		return nil, err
	}

	n := r.SampleCount()
	if err := checkParameter(p, n); err != nil {
		return nil, err
	}
	resolved, err := r.engine.Resolve(ctx, p, n)
	if err != nil {
		return nil, err
	}

	expr := r.expression
	if p.Name() != oldName {
		if expr, err = expr.Rename(oldName, p.Name()); err != nil {
			return nil, err
		}
	}

	raw := slices.Clone(r.rawData)
	raw[i] = resolved
	values, err := evaluate(expr, params, raw, n)
	if err != nil {
		return nil, err
	}
	return r.with(expr, params, raw, values), nil
}

// Regenerate re-resolves every parameter at n trials, or at the current
// sample count when n <= 0.
func (r *Results) Regenerate(ctx context.Context, n int) (*Results, error) {
	if n <= 0 {
		n = r.SampleCount()
	}
	return r.engine.run(ctx, &Simulation{expression: r.expression, parameters: r.parameters}, n)
}
