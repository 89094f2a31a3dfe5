package expression

import (
	"errors"
	"math"
	"slices"
	"testing"
)

func TestParse_Variables(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"Sum", "a + b + c", []string{"a", "b", "c"}},
		{"Repeated", "x * x + x", []string{"x"}},
		{"FunctionCallee", "sqrt(var) + pow(base, 2)", []string{"base", "var"}},
		{"Builtin", "max(a, b) - min(c, 1)", []string{"a", "b", "c"}},
		{"Literal", "1 + 2", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := e.Variables(); !slices.Equal(got, tt.expected) {
				t.Errorf("Variables() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("a + * b")
	if !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected ErrSyntax, got %v", err)
	}
}

func TestEvaluate(t *testing.T) {
	e, err := Parse("Rf + B * (Rm - Rf)")
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Evaluate(map[string]float64{"Rf": 0.02, "B": 1.5, "Rm": 0.08})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if math.Abs(got-0.11) > 1e-12 {
		t.Errorf("Evaluate() = %v, want 0.11", got)
	}
}

func TestEvaluate_IntegerLiteralResult(t *testing.T) {
	e, err := Parse("1 + 2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Evaluate(nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got != 3 {
		t.Errorf("Evaluate() = %v, want 3", got)
	}
}

func TestEvaluate_Functions(t *testing.T) {
	e, err := Parse("sqrt(x) + pow(2, 3) + exp(0) + log(1)")
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Evaluate(map[string]float64{"x": 16})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got != 13 {
		t.Errorf("Evaluate() = %v, want 13", got)
	}
}

func TestEvaluate_Remainder(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		bindings map[string]float64
		expected float64
	}{
		{"Variable", "a % 2", map[string]float64{"a": 7}, 1},
		{"Fractional", "a % 1", map[string]float64{"a": 2.5}, 0.5},
		{"NegativeDividend", "a % 3", map[string]float64{"a": -7}, -1},
		{"Nested", "(a % 4) % 3 + b", map[string]float64{"a": 10, "b": 1}, 3},
		{"FunctionForm", "mod(a, b)", map[string]float64{"a": 9, "b": 4}, 1},
		{"Literals", "7 % 4", nil, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got, err := e.Evaluate(tt.bindings)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Evaluate() = %v, want %v", got, tt.expected)
			}
		})
	}

	e, err := Parse("a % b")
	if err != nil {
		t.Fatal(err)
	}
	if got := e.Variables(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Variables() = %v, want [a b]", got)
	}
	renamed, err := e.Rename("a", "x")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	got, err := renamed.Evaluate(map[string]float64{"x": 5, "b": 3})
	if err != nil || got != 2 {
		t.Errorf("renamed Evaluate() = %v, %v; want 2", got, err)
	}
}

func TestEvaluate_UnresolvedVariable(t *testing.T) {
	e, err := Parse("a + b")
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Evaluate(map[string]float64{"a": 1})
	if !errors.Is(err, ErrUnresolvedVariable) {
		t.Fatalf("expected ErrUnresolvedVariable, got %v", err)
	}
}

func TestEvaluate_NotNumeric(t *testing.T) {
	e, err := Parse(`"text"`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Evaluate(nil)
	if !errors.Is(err, ErrNotNumeric) {
		t.Fatalf("expected ErrNotNumeric, got %v", err)
	}
}

func TestRename_IdentifierOnly(t *testing.T) {
	e, err := Parse("rate + rate2 * rate")
	if err != nil {
		t.Fatal(err)
	}

	renamed, err := e.Rename("rate", "r")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if want := []string{"r", "rate2"}; !slices.Equal(renamed.Variables(), want) {
		t.Errorf("Variables() = %v, want %v", renamed.Variables(), want)
	}
	got, err := renamed.Evaluate(map[string]float64{"r": 2, "rate2": 10})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got != 22 {
		t.Errorf("Evaluate() = %v, want 22", got)
	}

	// The original is untouched.
	if !e.References("rate") || e.References("r") {
		t.Errorf("original expression was modified: %v", e.Variables())
	}
}

func TestRename_FunctionNameUntouched(t *testing.T) {
	e, err := Parse("sqrt(sqrtArg)")
	if err != nil {
		t.Fatal(err)
	}
	renamed, err := e.Rename("sqrt", "other")
	if err != nil {
		t.Fatal(err)
	}
	if renamed != e {
		t.Errorf("expected rename of a non-variable to be a no-op")
	}
}
