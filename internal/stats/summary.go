package stats

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalidSummaryStatistic is returned when a non-scalar statistic is
// requested where a single number is required.
var ErrInvalidSummaryStatistic = errors.New("invalid summary statistic")

// Statistic names one derived figure of a result vector.
type Statistic int

const (
	StatisticMean Statistic = iota + 1
	StatisticMedian
	StatisticMin
	StatisticMax
	StatisticFirstQuartile
	StatisticThirdQuartile
	StatisticVariance
	StatisticStdDev
	StatisticSkewness
	StatisticKurtosis
	// StatisticConfidenceInterval is an interval, never a scalar.
	StatisticConfidenceInterval
)

var statisticNames = map[Statistic]string{
	StatisticMean:               "mean",
	StatisticMedian:             "median",
	StatisticMin:                "min",
	StatisticMax:                "max",
	StatisticFirstQuartile:      "q1",
	StatisticThirdQuartile:      "q3",
	StatisticVariance:           "variance",
	StatisticStdDev:             "stddev",
	StatisticSkewness:           "skewness",
	StatisticKurtosis:           "kurtosis",
	StatisticConfidenceInterval: "confidence_interval",
}

func (s Statistic) String() string {
	if name, ok := statisticNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Statistic(%d)", int(s))
}

// ParseStatistic maps a statistic name (as printed by String) to a Statistic.
func ParseStatistic(name string) (Statistic, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range statisticNames {
		if n == name {
			return s, nil
		}
	}
	switch name {
	case "std_dev", "standard_deviation":
		return StatisticStdDev, nil
	case "first_quartile":
		return StatisticFirstQuartile, nil
	case "third_quartile":
		return StatisticThirdQuartile, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSummaryStatistic, name)
}

// Confidence tiers and their two-sided z-scores.
var zTiers = []struct {
	Level float64
	Z     float64
}{
	{0.90, 1.645},
	{0.95, 1.96},
	{0.99, 2.576},
}

// ConfidenceInterval is mean ± z·(stddev/√n), assuming normality.
type ConfidenceInterval struct {
	Level float64 `json:"level"`
	Z     float64 `json:"z"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Summary holds the derived statistics of a result vector.
type Summary struct {
	Count               int                  `json:"count"`
	Mean                float64              `json:"mean"`
	Min                 float64              `json:"min"`
	Q1                  float64              `json:"q1"`
	Median              float64              `json:"median"`
	Q3                  float64              `json:"q3"`
	Max                 float64              `json:"max"`
	Variance            float64              `json:"variance"`
	StdDev              float64              `json:"stddev"`
	Skewness            float64              `json:"skewness"`
	Kurtosis            float64              `json:"kurtosis"` // excess kurtosis
	ConfidenceIntervals []ConfidenceInterval `json:"confidence_intervals"`
}

// Summarize derives a Summary from values. The input is not modified.
func Summarize(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	s := Summary{
		Count:  n,
		Mean:   stat.Mean(sorted, nil),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Q1:     stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median: medianSorted(sorted),
		Q3:     stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}

	// Higher moments need at least two observations and non-zero spread.
	if n > 1 {
		s.Variance = stat.Variance(sorted, nil)
		s.StdDev = math.Sqrt(s.Variance)
		if s.StdDev > 0 {
			s.Skewness = stat.Skew(sorted, nil)
			s.Kurtosis = stat.ExKurtosis(sorted, nil)
		}
	}

	s.ConfidenceIntervals = make([]ConfidenceInterval, len(zTiers))
	stdErr := s.StdDev / math.Sqrt(float64(n))
	for i, tier := range zTiers {
		s.ConfidenceIntervals[i] = ConfidenceInterval{
			Level: tier.Level,
			Z:     tier.Z,
			Lower: s.Mean - tier.Z*stdErr,
			Upper: s.Mean + tier.Z*stdErr,
		}
	}
	return s
}

// ConfidenceInterval returns the interval at the given level (0.90, 0.95 or 0.99).
func (s Summary) ConfidenceInterval(level float64) (ConfidenceInterval, bool) {
	for _, ci := range s.ConfidenceIntervals {
		if math.Abs(ci.Level-level) < 1e-9 {
			return ci, true
		}
	}
	return ConfidenceInterval{}, false
}

// Scalar returns a single statistic.
func (s Summary) Scalar(which Statistic) (float64, error) {
	switch which {
	case StatisticMean:
		return s.Mean, nil
	case StatisticMedian:
		return s.Median, nil
	case StatisticMin:
		return s.Min, nil
	case StatisticMax:
		return s.Max, nil
	case StatisticFirstQuartile:
		return s.Q1, nil
	case StatisticThirdQuartile:
		return s.Q3, nil
	case StatisticVariance:
		return s.Variance, nil
	case StatisticStdDev:
		return s.StdDev, nil
	case StatisticSkewness:
		return s.Skewness, nil
	case StatisticKurtosis:
		return s.Kurtosis, nil
	}
	return 0, fmt.Errorf("%w: %s is not a scalar", ErrInvalidSummaryStatistic, which)
}
