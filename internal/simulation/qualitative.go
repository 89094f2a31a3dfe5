package simulation

import (
	"slices"
)

// QualitativeParameter is the categorical counterpart of Parameter. Its
// variants resolve exactly like their numeric twins but produce strings.
type QualitativeParameter interface {
	Name() string
	Kind() string
	isQualitative()
}

type qualitativeNamed struct{ name string }

func (n qualitativeNamed) Name() string { return n.name }
func (qualitativeNamed) isQualitative() {}

// QualitativeConstant yields the same category every trial.
type QualitativeConstant struct {
	qualitativeNamed
	value string
}

func NewQualitativeConstant(name, value string) *QualitativeConstant {
	return &QualitativeConstant{qualitativeNamed: qualitativeNamed{name}, value: value}
}

func (q *QualitativeConstant) Kind() string { return "qualitative_constant" }

// QualitativeOutcome is a category with its probability.
type QualitativeOutcome struct {
	Value       string
	Probability float64
}

// QualitativeDiscrete picks one category per trial.
type QualitativeDiscrete struct {
	qualitativeNamed
	outcomes   []QualitativeOutcome
	thresholds []float64
}

func NewQualitativeDiscrete(name string, outcomes []QualitativeOutcome) (*QualitativeDiscrete, error) {
	probs := make([]float64, len(outcomes))
	for i, o := range outcomes {
		probs[i] = o.Probability
	}
	thresholds, err := cumulative(probs)
	if err != nil {
		return nil, paramErr(name, err)
	}
	return &QualitativeDiscrete{qualitativeNamed: qualitativeNamed{name}, outcomes: slices.Clone(outcomes), thresholds: thresholds}, nil
}

func (q *QualitativeDiscrete) Kind() string { return "qualitative_discrete" }

// QualitativePrecomputed is a fixed vector of categories.
type QualitativePrecomputed struct {
	qualitativeNamed
	values []string
}

func NewQualitativePrecomputed(name string, values []string) *QualitativePrecomputed {
	return &QualitativePrecomputed{qualitativeNamed: qualitativeNamed{name}, values: slices.Clone(values)}
}

func (q *QualitativePrecomputed) Kind() string { return "qualitative_precomputed" }
