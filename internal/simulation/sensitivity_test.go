package simulation

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func factor(name string, n int) *Precomputed {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return NewPrecomputed(name, values)
}

func TestSensitivity_ScenarioCounts(t *testing.T) {
	tests := []struct {
		name       string
		sizes      []int
		exhaustive bool
		want       int
	}{
		{"exhaustive 3x3", []int{3, 3}, true, 9},
		{"exhaustive 3x3x4", []int{3, 3, 4}, true, 36},
		{"single factor exhaustive", []int{5}, true, 5},
		{"single factor", []int{5}, false, 5},
		{"two factors together", []int{4, 4}, false, 4},
	}
	names := []string{"x", "y", "z"}

	for _, tt := range tests {
		for _, parallel := range []bool{false, true} {
			name := tt.name
			if parallel {
				name += " parallel"
			}
			t.Run(name, func(t *testing.T) {
				params := []Parameter{NewConstant("k", 1)}
				text := "k"
				for i, size := range tt.sizes {
					params = append(params, factor(names[i], size))
					text += " + " + names[i]
				}
				sim, err := New(text, params...)
				if err != nil {
					t.Fatalf("New: %v", err)
				}

				res, err := NewEngine(WithSeed(1)).Sensitivity(context.Background(), sim, 10, SensitivityOptions{Exhaustive: tt.exhaustive, Parallel: parallel})
				if err != nil {
					t.Fatalf("Sensitivity: %v", err)
				}
				if res.Len() != tt.want || len(res.Keys()) != tt.want {
					t.Fatalf("scenarios = %d, want %d", res.Len(), tt.want)
				}
				for _, k := range res.Keys() {
					sc, ok := res.Scenario(k)
					if !ok || sc.SampleCount() != 10 {
						t.Fatalf("scenario %q missing or wrong size", k)
					}
				}
			})
		}
	}
}

func TestSensitivity_CAPM(t *testing.T) {
	sim, err := New("Rf + B * (Rm - Rf)",
		NewConstant("Rf", 0.02),
		NewPrecomputed("B", []float64{0.5, 1.0, 1.5}),
		NewDistribution("Rm", mustNormal(t, 0.08, 0.15), nil),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := NewEngine(WithSeed(5)).Sensitivity(context.Background(), sim, 2000, SensitivityOptions{})
	if err != nil {
		t.Fatalf("Sensitivity: %v", err)
	}
	want := []string{"B = 0.5", "B = 1", "B = 1.5"}
	if !slices.Equal(res.Keys(), want) {
		t.Fatalf("Keys() = %v, want %v", res.Keys(), want)
	}
	expected := map[string]float64{"B = 0.5": 0.05, "B = 1": 0.08, "B = 1.5": 0.11}
	for k, s := range res.Summaries() {
		if s.Count != 2000 {
			t.Errorf("%s: count = %d, want 2000", k, s.Count)
		}
		if d := s.Mean - expected[k]; d > 0.02 || d < -0.02 {
			t.Errorf("%s: mean = %v, want ~%v", k, s.Mean, expected[k])
		}
	}
}

func TestSensitivity_KeyOrder(t *testing.T) {
	sim, err := New("a + b", NewPrecomputed("a", []float64{5, 10}), NewPrecomputed("b", []float64{-1, 2}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	seq, err := NewEngine().Sensitivity(ctx, sim, 1, SensitivityOptions{Exhaustive: true})
	if err != nil {
		t.Fatalf("Sensitivity: %v", err)
	}
	declared := []string{"a = 5; b = -1", "a = 5; b = 2", "a = 10; b = -1", "a = 10; b = 2"}
	if !slices.Equal(seq.Keys(), declared) {
		t.Errorf("sequential Keys() = %v, want %v", seq.Keys(), declared)
	}

	// Parallel runs sort keys lexicographically after the join, so "a = 10"
	// precedes "a = 5".
	par, err := NewEngine().Sensitivity(ctx, sim, 1, SensitivityOptions{Exhaustive: true, Parallel: true})
	if err != nil {
		t.Fatalf("Sensitivity: %v", err)
	}
	sorted := []string{"a = 10; b = -1", "a = 10; b = 2", "a = 5; b = -1", "a = 5; b = 2"}
	if !slices.Equal(par.Keys(), sorted) {
		t.Errorf("parallel Keys() = %v, want %v", par.Keys(), sorted)
	}

	for _, k := range declared {
		a, _ := seq.Scenario(k)
		b, _ := par.Scenario(k)
		if a.Values()[0] != b.Values()[0] {
			t.Errorf("%s: sequential %v, parallel %v", k, a.Values(), b.Values())
		}
	}
}

func TestSensitivity_Errors(t *testing.T) {
	ctx := context.Background()

	noFactor, err := New("a", NewConstant("a", 1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := NewEngine().Sensitivity(ctx, noFactor, 10, SensitivityOptions{}); !errors.Is(err, ErrMissingPrecomputedParameter) {
		t.Errorf("expected ErrMissingPrecomputedParameter, got %v", err)
	}

	mismatched, err := New("x + y", factor("x", 3), factor("y", 4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := NewEngine().Sensitivity(ctx, mismatched, 10, SensitivityOptions{}); !errors.Is(err, ErrPrecomputedValueCount) {
		t.Errorf("expected ErrPrecomputedValueCount, got %v", err)
	}

	duplicate, err := New("x", NewPrecomputed("x", []float64{1, 1}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := NewEngine().Sensitivity(ctx, duplicate, 10, SensitivityOptions{}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for duplicate scenarios, got %v", err)
	}
}

func TestSensitivityResults_Mutations(t *testing.T) {
	ctx := context.Background()
	sim, err := New("x * k", factor("x", 3), NewConstant("k", 2), NewConstant("spare", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := NewEngine(WithSeed(3)).Sensitivity(ctx, sim, 4, SensitivityOptions{})
	if err != nil {
		t.Fatalf("Sensitivity: %v", err)
	}

	t.Run("recompute cascades", func(t *testing.T) {
		next, err := res.RecomputeExpression("x + k")
		if err != nil {
			t.Fatalf("RecomputeExpression: %v", err)
		}
		sc, _ := next.Scenario("x = 3")
		if sc.Values()[0] != 5 {
			t.Errorf("x = 3 scenario value = %v, want 5", sc.Values()[0])
		}
	})

	t.Run("non-factor add cascades", func(t *testing.T) {
		next, err := res.AddParameter(ctx, NewConstant("c", 7))
		if err != nil {
			t.Fatalf("AddParameter: %v", err)
		}
		if next.Len() != 3 {
			t.Fatalf("Len() = %d, want 3", next.Len())
		}
		for _, k := range next.Keys() {
			sc, _ := next.Scenario(k)
			if _, ok := sc.RawData("c"); !ok {
				t.Errorf("%s: added parameter missing", k)
			}
		}
	})

	t.Run("factor add resimulates", func(t *testing.T) {
		next, err := res.AddParameter(ctx, factor("y", 3))
		if err != nil {
			t.Fatalf("AddParameter: %v", err)
		}
		if want := []string{"x = 1; y = 1", "x = 2; y = 2", "x = 3; y = 3"}; !slices.Equal(next.Keys(), want) {
			t.Errorf("Keys() = %v, want %v", next.Keys(), want)
		}

		if _, err := res.AddParameter(ctx, factor("z", 2)); !errors.Is(err, ErrPrecomputedValueCount) {
			t.Errorf("mismatched factor: expected ErrPrecomputedValueCount, got %v", err)
		}
	})

	t.Run("remove referenced", func(t *testing.T) {
		if _, err := res.RemoveParameter(ctx, "k"); !errors.Is(err, ErrParameterInExpression) {
			t.Errorf("expected ErrParameterInExpression, got %v", err)
		}
	})

	t.Run("remove non-factor", func(t *testing.T) {
		next, err := res.RemoveParameter(ctx, "spare")
		if err != nil {
			t.Fatalf("RemoveParameter: %v", err)
		}
		if len(next.Parameters()) != 2 {
			t.Errorf("Parameters() = %d, want 2", len(next.Parameters()))
		}
	})

	t.Run("replace factor resimulates", func(t *testing.T) {
		next, err := res.ReplaceParameter(ctx, "x", NewPrecomputed("x", []float64{10, 20}))
		if err != nil {
			t.Fatalf("ReplaceParameter: %v", err)
		}
		if want := []string{"x = 10", "x = 20"}; !slices.Equal(next.Keys(), want) {
			t.Errorf("Keys() = %v, want %v", next.Keys(), want)
		}
	})

	t.Run("replace non-factor renames", func(t *testing.T) {
		next, err := res.ReplaceParameter(ctx, "k", NewConstant("scale", 10))
		if err != nil {
			t.Fatalf("ReplaceParameter: %v", err)
		}
		sc, _ := next.Scenario("x = 2")
		if sc.Values()[0] != 20 {
			t.Errorf("x = 2 scenario value = %v, want 20", sc.Values()[0])
		}
		if next.Expression() == res.Expression() {
			t.Errorf("expression was not renamed")
		}
	})

	t.Run("regenerate", func(t *testing.T) {
		next, err := res.Regenerate(ctx, 9)
		if err != nil {
			t.Fatalf("Regenerate: %v", err)
		}
		if next.SampleCount() != 9 {
			t.Errorf("SampleCount() = %d, want 9", next.SampleCount())
		}
		sc, _ := next.Scenario("x = 1")
		if sc.SampleCount() != 9 {
			t.Errorf("scenario SampleCount() = %d, want 9", sc.SampleCount())
		}
	})
}
