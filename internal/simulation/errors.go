package simulation

import (
	"errors"

	"mcs-engine/internal/stats"
)

// Resolution and mutation errors. All of them surface directly to the caller;
// only the Resimulate repair policy retries internally, and it always
// terminates with its fallback value.
var (
	// ErrPrecomputedValueCount indicates a precomputed vector whose length differs from the sample count.
	ErrPrecomputedValueCount = errors.New("precomputed value count does not match sample count")

	// ErrEmptyBag indicates a random bag without items.
	ErrEmptyBag = errors.New("random bag is empty")

	// ErrRandomBagItemCount indicates more draws without replacement than items in the bag.
	ErrRandomBagItemCount = errors.New("random bag has fewer items than requested draws")

	// ErrRandomBagReplacementRule indicates an unknown replacement policy.
	ErrRandomBagReplacementRule = errors.New("unknown random bag replacement rule")

	// ErrParameterInExpression indicates removal of a parameter the expression still references.
	ErrParameterInExpression = errors.New("parameter is referenced by the expression")

	// ErrInvalidParameter indicates an unknown variant, a missing parameter or an invalid definition.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidResolution indicates an unknown constraint repair policy.
	ErrInvalidResolution = errors.New("invalid constraint resolution")

	// ErrMissingPrecomputedParameter indicates a sensitivity run without factor parameters.
	ErrMissingPrecomputedParameter = errors.New("sensitivity analysis requires at least one precomputed parameter")

	// ErrInvalidProbability indicates outcome probabilities outside [0,1] or not summing to 1.
	ErrInvalidProbability = errors.New("invalid outcome probabilities")

	// ErrInvalidSummaryStatistic indicates a non-scalar statistic where a scalar is required.
	ErrInvalidSummaryStatistic = stats.ErrInvalidSummaryStatistic
)

// ParameterError attaches the name of the failing parameter to a resolution error.
type ParameterError struct {
	Name string
	Err  error
}

func (e *ParameterError) Error() string {
	return "parameter " + e.Name + ": " + e.Err.Error()
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

func paramErr(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ParameterError
	if errors.As(err, &pe) && pe.Name == name {
		return err
	}
	return &ParameterError{Name: name, Err: err}
}
