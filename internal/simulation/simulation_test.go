package simulation

import (
	"context"
	"errors"
	"slices"
	"testing"

	"mcs-engine/internal/expression"
)

func TestSimulate_ConstantSum(t *testing.T) {
	sim, err := New("a + b + c", NewConstant("a", 1), NewConstant("b", 2), NewConstant("c", 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := sim.Simulate(context.Background(), 100)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if res.SampleCount() != 100 || len(res.Values()) != 100 {
		t.Fatalf("sample count = %d, values = %d", res.SampleCount(), len(res.Values()))
	}
	for i, v := range res.Values() {
		if v != 6 {
			t.Fatalf("Values()[%d] = %v, want 6", i, v)
		}
	}
	if s := res.Summary(); s.Mean != 6 || s.StdDev != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		params []Parameter
		want   error
	}{
		{"syntax", "a +", []Parameter{NewConstant("a", 1)}, expression.ErrSyntax},
		{"numeric leading name", "x", []Parameter{NewConstant("1x", 1)}, ErrInvalidParameter},
		{"duplicate", "a", []Parameter{NewConstant("a", 1), NewConstant("a", 2)}, ErrInvalidParameter},
		{"nil parameter", "a", []Parameter{nil}, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.expr, tt.params...); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSimulate_Precheck(t *testing.T) {
	ctx := context.Background()
	bag := NewRandomBag("bag", nil, AfterEachPick)

	tests := []struct {
		name   string
		expr   string
		params []Parameter
		n      int
		want   error
	}{
		{"non-positive count", "a", []Parameter{NewConstant("a", 1)}, 0, ErrInvalidParameter},
		{"precomputed length", "a + p", []Parameter{NewConstant("a", 1), NewPrecomputed("p", []float64{1, 2})}, 3, ErrPrecomputedValueCount},
		{"empty bag", "bag", []Parameter{bag}, 3, ErrEmptyBag},
		{"empty bag behind conditional", "c", []Parameter{NewConditional("c", bag, nil, 0)}, 3, ErrEmptyBag},
		{"unbound variable", "a + z", []Parameter{NewConstant("a", 1)}, 3, expression.ErrUnresolvedVariable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, err := New(tt.expr, tt.params...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, err := NewEngine().Simulate(ctx, sim, tt.n); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSimulate_NestedPrecheckFailsFast(t *testing.T) {
	inner, err := New("p", NewPrecomputed("p", []float64{1, 2}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	nested, err := NewNestedSimulation("inner", inner, ReturnResults, 0, nil)
	if err != nil {
		t.Fatalf("NewNestedSimulation: %v", err)
	}
	outer, err := New("inner", nested)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = NewEngine().Simulate(context.Background(), outer, 5)
	if !errors.Is(err, ErrPrecomputedValueCount) {
		t.Fatalf("expected ErrPrecomputedValueCount, got %v", err)
	}
	var pe *ParameterError
	if !errors.As(err, &pe) || pe.Name != "inner" {
		t.Errorf("expected error attributed to inner, got %v", err)
	}
}

func newResults(t *testing.T) *Results {
	t.Helper()
	sim, err := New("a * b", NewPrecomputed("a", []float64{1, 2, 3, 4}), NewConstant("b", 10), NewConstant("unused", 5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := NewEngine(WithSeed(1)).Simulate(context.Background(), sim, 4)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	return res
}

func TestResults_RecomputeExpression(t *testing.T) {
	res := newResults(t)
	next, err := res.RecomputeExpression("a + b")
	if err != nil {
		t.Fatalf("RecomputeExpression: %v", err)
	}
	if want := []float64{11, 12, 13, 14}; !slices.Equal(next.Values(), want) {
		t.Errorf("Values() = %v, want %v", next.Values(), want)
	}
	if want := []float64{10, 20, 30, 40}; !slices.Equal(res.Values(), want) {
		t.Errorf("original results changed: %v", res.Values())
	}
	raw, _ := next.RawData("a")
	orig, _ := res.RawData("a")
	if &raw[0] != &orig[0] {
		t.Errorf("RecomputeExpression resampled raw data")
	}

	if _, err := res.RecomputeExpression("a + missing"); !errors.Is(err, expression.ErrUnresolvedVariable) {
		t.Errorf("expected ErrUnresolvedVariable, got %v", err)
	}
}

func TestResults_RemoveParameter(t *testing.T) {
	res := newResults(t)

	if _, err := res.RemoveParameter("a"); !errors.Is(err, ErrParameterInExpression) {
		t.Errorf("expected ErrParameterInExpression, got %v", err)
	}
	if _, err := res.RemoveParameter("nope"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}

	next, err := res.RemoveParameter("unused")
	if err != nil {
		t.Fatalf("RemoveParameter: %v", err)
	}
	if _, ok := next.RawData("unused"); ok {
		t.Errorf("removed parameter still has raw data")
	}
	if len(next.Parameters()) != 2 {
		t.Errorf("Parameters() = %d, want 2", len(next.Parameters()))
	}

	// The binding is gone, so an expression that needs it no longer evaluates.
	if _, err := next.RecomputeExpression("a + unused"); !errors.Is(err, expression.ErrUnresolvedVariable) {
		t.Errorf("expected ErrUnresolvedVariable, got %v", err)
	}
}

func TestResults_AddParameter(t *testing.T) {
	res := newResults(t)
	ctx := context.Background()

	next, err := res.AddParameter(ctx, NewConstant("c", 1))
	if err != nil {
		t.Fatalf("AddParameter: %v", err)
	}
	raw, ok := next.RawData("c")
	if !ok || len(raw) != 4 {
		t.Fatalf("RawData(c) = %v, %v", raw, ok)
	}
	final, err := next.RecomputeExpression("a * b + c")
	if err != nil {
		t.Fatalf("RecomputeExpression: %v", err)
	}
	if want := []float64{11, 21, 31, 41}; !slices.Equal(final.Values(), want) {
		t.Errorf("Values() = %v, want %v", final.Values(), want)
	}

	if _, err := res.AddParameter(ctx, NewConstant("b", 1)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("duplicate add: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := res.AddParameter(ctx, NewPrecomputed("p", []float64{1})); !errors.Is(err, ErrPrecomputedValueCount) {
		t.Errorf("short precomputed: expected ErrPrecomputedValueCount, got %v", err)
	}
}

func TestResults_ReplaceParameter(t *testing.T) {
	res := newResults(t)
	ctx := context.Background()

	t.Run("same name", func(t *testing.T) {
		next, err := res.ReplaceParameter(ctx, "b", NewConstant("b", 2))
		if err != nil {
			t.Fatalf("ReplaceParameter: %v", err)
		}
		if want := []float64{2, 4, 6, 8}; !slices.Equal(next.Values(), want) {
			t.Errorf("Values() = %v, want %v", next.Values(), want)
		}
		if next.Expression() != res.Expression() {
			t.Errorf("expression changed to %q", next.Expression())
		}
	})

	t.Run("renamed", func(t *testing.T) {
		next, err := res.ReplaceParameter(ctx, "b", NewConstant("beta", 3))
		if err != nil {
			t.Fatalf("ReplaceParameter: %v", err)
		}
		if want := []float64{3, 6, 9, 12}; !slices.Equal(next.Values(), want) {
			t.Errorf("Values() = %v, want %v", next.Values(), want)
		}
		parsed, err := expression.Parse(next.Expression())
		if err != nil {
			t.Fatalf("Parse(%q): %v", next.Expression(), err)
		}
		if want := []string{"a", "beta"}; !slices.Equal(parsed.Variables(), want) {
			t.Errorf("Variables() = %v, want %v", parsed.Variables(), want)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := res.ReplaceParameter(ctx, "zzz", NewConstant("z", 1)); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
	})

	t.Run("rename collides", func(t *testing.T) {
		if _, err := res.ReplaceParameter(ctx, "b", NewConstant("a", 1)); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("expected ErrInvalidParameter, got %v", err)
		}
	})
}

func TestResults_Regenerate(t *testing.T) {
	sim, err := New("x", NewDistribution("x", mustNormal(t, 0, 1), nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := NewEngine(WithSeed(3)).Simulate(context.Background(), sim, 50)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	same, err := res.Regenerate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if same.SampleCount() != 50 {
		t.Errorf("SampleCount() = %d, want 50", same.SampleCount())
	}
	if slices.Equal(same.Values(), res.Values()) {
		t.Errorf("Regenerate did not resample")
	}

	bigger, err := res.Regenerate(context.Background(), 80)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if bigger.SampleCount() != 80 || len(bigger.Values()) != 80 {
		t.Errorf("SampleCount() = %d, want 80", bigger.SampleCount())
	}
}
