package simulation

import (
	"fmt"
	"strings"
)

// Policy is how a Constraint repairs an out-of-bounds sample.
type Policy int

const (
	// Resimulate redraws the single violating sample up to MaxAttempts times
	// and falls back to Default.
	Resimulate Policy = iota
	// ClosestBound clamps to the violated bound.
	ClosestBound
	// DefaultValue replaces the sample with Default.
	DefaultValue
)

func (p Policy) String() string {
	switch p {
	case Resimulate:
		return "resimulate"
	case ClosestBound:
		return "closest_bound"
	case DefaultValue:
		return "default_value"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy maps a policy name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range []Policy{Resimulate, ClosestBound, DefaultValue} {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
}

// Constraint bounds the values of a resampleable parameter. Either bound may
// be nil. Repairs intentionally bias the resulting distribution.
type Constraint struct {
	Lower       *float64
	Upper       *float64
	Policy      Policy
	MaxAttempts int
	Default     float64
}

// Bounds is a convenience for a two-sided ClosestBound constraint.
func Bounds(lower, upper float64) *Constraint {
	return &Constraint{Lower: &lower, Upper: &upper, Policy: ClosestBound}
}

// Violates reports whether x is outside the bounds.
func (c *Constraint) Violates(x float64) bool {
	if c == nil {
		return false
	}
	return (c.Lower != nil && x < *c.Lower) || (c.Upper != nil && x > *c.Upper)
}

// Apply repairs x if it violates the bounds. redraw produces one fresh sample
// and is only called by the Resimulate policy. The boolean reports whether a
// repair happened. Applying to an in-bounds value is a no-op, which makes
// Apply idempotent for ClosestBound and for in-bounds defaults.
func (c *Constraint) Apply(x float64, redraw func() (float64, error)) (float64, bool, error) {
	if !c.Violates(x) {
		return x, false, nil
	}

	switch c.Policy {
	case ClosestBound:
		if c.Lower != nil && x < *c.Lower {
			return *c.Lower, true, nil
		}
		return *c.Upper, true, nil
	case DefaultValue:
		return c.Default, true, nil
	case Resimulate:
		for range c.MaxAttempts {
			v, err := redraw()
			if err != nil {
				return x, false, err
			}
			if !c.Violates(v) {
				return v, true, nil
			}
		}
		return c.Default, true, nil
	}
	return x, false, fmt.Errorf("%w: %s", ErrInvalidResolution, c.Policy)
}

func (c *Constraint) String() string {
	if c == nil {
		return "none"
	}
	lower, upper := "-inf", "+inf"
	if c.Lower != nil {
		lower = fmt.Sprint(*c.Lower)
	}
	if c.Upper != nil {
		upper = fmt.Sprint(*c.Upper)
	}
	return fmt.Sprintf("[%s, %s] %s", lower, upper, c.Policy)
}
