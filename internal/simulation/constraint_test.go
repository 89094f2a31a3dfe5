package simulation

import (
	"errors"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestConstraint_Apply(t *testing.T) {
	noRedraw := func() (float64, error) {
		t.Fatal("redraw called")
		return 0, nil
	}

	tests := []struct {
		name        string
		constraint  Constraint
		in          float64
		want        float64
		wantChanged bool
	}{
		{"in bounds untouched", Constraint{Lower: ptr(0), Upper: ptr(1), Policy: ClosestBound}, 0.5, 0.5, false},
		{"on bound untouched", Constraint{Lower: ptr(0), Upper: ptr(1), Policy: ClosestBound}, 1, 1, false},
		{"clamp lower", Constraint{Lower: ptr(0), Upper: ptr(1), Policy: ClosestBound}, -3, 0, true},
		{"clamp upper", Constraint{Lower: ptr(0), Upper: ptr(1), Policy: ClosestBound}, 7, 1, true},
		{"upper only", Constraint{Upper: ptr(10), Policy: ClosestBound}, -1e9, -1e9, false},
		{"lower only", Constraint{Lower: ptr(2), Policy: ClosestBound}, 1, 2, true},
		{"default value", Constraint{Lower: ptr(0), Policy: DefaultValue, Default: 42}, -1, 42, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := tt.constraint.Apply(tt.in, noRedraw)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if got != tt.want || changed != tt.wantChanged {
				t.Errorf("Apply(%v) = %v, %v; want %v, %v", tt.in, got, changed, tt.want, tt.wantChanged)
			}

			again, changed, err := tt.constraint.Apply(got, noRedraw)
			if err != nil || again != got || changed {
				t.Errorf("Apply is not idempotent: %v -> %v", got, again)
			}
		})
	}
}

func TestConstraint_Resimulate(t *testing.T) {
	c := Constraint{Lower: ptr(0), Upper: ptr(1), Policy: Resimulate, MaxAttempts: 3, Default: -1}

	t.Run("accepts first in-bounds draw", func(t *testing.T) {
		draws := []float64{5, 0.25, 0.75}
		calls := 0
		got, changed, err := c.Apply(2, func() (float64, error) {
			v := draws[calls]
			calls++
			return v, nil
		})
		if err != nil || got != 0.25 || !changed || calls != 2 {
			t.Errorf("got %v, %v, %v after %d draws", got, changed, err, calls)
		}
	})

	t.Run("falls back to default", func(t *testing.T) {
		calls := 0
		got, changed, err := c.Apply(2, func() (float64, error) {
			calls++
			return 9, nil
		})
		if err != nil || got != -1 || !changed {
			t.Errorf("got %v, %v, %v", got, changed, err)
		}
		if calls != 3 {
			t.Errorf("redraw called %d times, want 3", calls)
		}
	})

	t.Run("redraw error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		if _, _, err := c.Apply(2, func() (float64, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Errorf("expected redraw error, got %v", err)
		}
	})
}

func TestConstraint_UnknownPolicy(t *testing.T) {
	c := Constraint{Lower: ptr(0), Policy: Policy(9)}
	if _, _, err := c.Apply(-1, nil); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{Resimulate, ClosestBound, DefaultValue} {
		got, err := ParsePolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePolicy("clamp-ish"); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got %v", err)
	}
}
