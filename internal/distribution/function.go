package distribution

import (
	"fmt"
	"strings"
)

// Function selects which distribution function a DistributionFunction
// parameter evaluates at its location.
type Function int

const (
	FunctionCDF Function = iota
	FunctionPDF
	FunctionQuantile
)

func (f Function) String() string {
	switch f {
	case FunctionCDF:
		return "cdf"
	case FunctionPDF:
		return "pdf"
	case FunctionQuantile:
		return "quantile"
	default:
		return "unknown"
	}
}

// ParseFunction maps "cdf", "pdf" and "quantile" to a Function.
func ParseFunction(s string) (Function, error) {
	switch strings.ToLower(s) {
	case "cdf", "cumulative":
		return FunctionCDF, nil
	case "pdf", "density", "pmf":
		return FunctionPDF, nil
	case "quantile", "inverse_cdf":
		return FunctionQuantile, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFunction, s)
}

// Apply evaluates fn of s at x.
func Apply(fn Function, s Sampler, x float64) (float64, error) {
	switch fn {
	case FunctionCDF:
		return s.CDF(x), nil
	case FunctionPDF:
		return s.Prob(x), nil
	case FunctionQuantile:
		return s.Quantile(x)
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedFunction, int(fn))
}
