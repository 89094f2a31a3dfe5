package definition

import (
	"fmt"
	"strings"

	"mcs-engine/internal/distribution"
	"mcs-engine/internal/simulation"
	"mcs-engine/internal/stats"
)

// ResultsStatistic selects the inner result vector of a nested simulation.
const ResultsStatistic = "results"

// IsDependent reports whether the document describes a dependent simulation.
func (d *Document) IsDependent() bool {
	return d.Dependent != nil
}

// SensitivityOptions converts the sensitivity block, if any.
func (d *Document) SensitivityOptions() (simulation.SensitivityOptions, bool) {
	if d.Sensitivity == nil {
		return simulation.SensitivityOptions{}, false
	}
	return simulation.SensitivityOptions{Exhaustive: d.Sensitivity.Exhaustive, Parallel: d.Sensitivity.Parallel}, true
}

// Build turns the simulation block into a Simulation.
func (s *Simulation) Build() (*simulation.Simulation, error) {
	params := make([]simulation.Parameter, len(s.Parameters))
	for i, p := range s.Parameters {
		built, err := p.Build()
		if err != nil {
			return nil, err
		}
		params[i] = built
	}
	return simulation.New(s.Expression, params...)
}

// Build turns the dependent block into a DependentSimulation.
func (d *Dependent) Build() (*simulation.DependentSimulation, error) {
	if d.Change == nil {
		return nil, fmt.Errorf("%w: dependent simulation needs a change parameter", ErrInvalidDocument)
	}
	change, err := d.Change.Build()
	if err != nil {
		return nil, err
	}
	return simulation.NewDependent(d.Expression, d.StartValue, change)
}

// Build turns a parameter entry into its variant.
func (p *Parameter) Build() (simulation.Parameter, error) {
	switch p.Type {
	case "constant":
		if p.Value == nil {
			return nil, p.missing("value")
		}
		return simulation.NewConstant(p.Name, *p.Value), nil

	case "discrete":
		outcomes := make([]simulation.Outcome, len(p.Outcomes))
		for i, o := range p.Outcomes {
			outcomes[i] = simulation.Outcome{Value: o.Value, Probability: o.Probability}
		}
		return simulation.NewDiscrete(p.Name, outcomes)

	case "distribution":
		sampler, err := p.sampler()
		if err != nil {
			return nil, err
		}
		constraint, err := p.Constraint.Build()
		if err != nil {
			return nil, p.wrap(err)
		}
		return simulation.NewDistribution(p.Name, sampler, constraint), nil

	case "distribution_function":
		sampler, err := p.sampler()
		if err != nil {
			return nil, err
		}
		fn, err := distribution.ParseFunction(p.Function)
		if err != nil {
			return nil, p.wrap(err)
		}
		if p.Location == nil {
			return nil, p.missing("location")
		}
		location, err := p.Location.Build()
		if err != nil {
			return nil, p.wrap(err)
		}
		return simulation.NewDistributionFunction(p.Name, sampler, fn, location), nil

	case "precomputed":
		return simulation.NewPrecomputed(p.Name, p.Values), nil

	case "conditional":
		if p.Reference == nil {
			return nil, p.missing("reference")
		}
		reference, err := p.Reference.Build()
		if err != nil {
			return nil, p.wrap(err)
		}
		outcomes := make([]simulation.ConditionalOutcome, len(p.Conditions))
		for i, c := range p.Conditions {
			cmp, err := simulation.ParseComparator(c.Comparator)
			if err != nil {
				return nil, p.wrap(err)
			}
			outcomes[i] = simulation.ConditionalOutcome{Comparator: cmp, Threshold: c.Threshold, Value: c.Value}
		}
		return simulation.NewConditional(p.Name, reference, outcomes, deref(p.Default)), nil

	case "random_bag":
		policy := simulation.AfterEachPick
		if p.Replacement != "" {
			var err error
			if policy, err = simulation.ParseReplacementPolicy(p.Replacement); err != nil {
				return nil, p.wrap(err)
			}
		}
		items := make([]simulation.BagItem, len(p.Items))
		for i, it := range p.Items {
			items[i] = simulation.BagItem{Value: it.Value, Count: it.Count}
		}
		return simulation.NewRandomBag(p.Name, items, policy), nil

	case "nested_simulation":
		if p.Simulation == nil {
			return nil, p.missing("simulation")
		}
		inner, err := p.Simulation.Build()
		if err != nil {
			return nil, p.wrap(err)
		}
		statistic, constraint, err := p.nestedSpec()
		if err != nil {
			return nil, err
		}
		return simulation.NewNestedSimulation(p.Name, inner, statistic, p.InnerRuns, constraint)

	case "dependent_simulation":
		if p.Dependent == nil {
			return nil, p.missing("dependent")
		}
		inner, err := p.Dependent.Build()
		if err != nil {
			return nil, p.wrap(err)
		}
		statistic, constraint, err := p.nestedSpec()
		if err != nil {
			return nil, err
		}
		return simulation.NewDependentSimulationParameter(p.Name, inner, statistic, p.InnerRuns, constraint)

	case "qualitative_interpretation":
		if p.Qualitative == nil {
			return nil, p.missing("qualitative")
		}
		q, err := p.Qualitative.Build()
		if err != nil {
			return nil, p.wrap(err)
		}
		return simulation.NewQualitativeInterpretation(p.Name, q, p.Dictionary, deref(p.Default)), nil
	}
	return nil, fmt.Errorf("%w: parameter %q has unknown type %q", simulation.ErrInvalidParameter, p.Name, p.Type)
}

func (p *Parameter) sampler() (distribution.Sampler, error) {
	if p.Distribution == "" {
		return nil, p.missing("distribution")
	}
	s, err := distribution.New(p.Distribution, p.Args)
	if err != nil {
		return nil, p.wrap(err)
	}
	return s, nil
}

func (p *Parameter) nestedSpec() (stats.Statistic, *simulation.Constraint, error) {
	statistic := simulation.ReturnResults
	if name := strings.ToLower(strings.TrimSpace(p.Statistic)); name != "" && name != ResultsStatistic {
		var err error
		if statistic, err = stats.ParseStatistic(name); err != nil {
			return 0, nil, p.wrap(err)
		}
	}
	constraint, err := p.Constraint.Build()
	if err != nil {
		return 0, nil, p.wrap(err)
	}
	return statistic, constraint, nil
}

func (p *Parameter) missing(field string) error {
	return fmt.Errorf("%w: %s parameter %q requires %q", ErrInvalidDocument, p.Type, p.Name, field)
}

func (p *Parameter) wrap(err error) error {
	return fmt.Errorf("parameter %q: %w", p.Name, err)
}

// Build converts the constraint; a nil receiver means no constraint.
func (c *Constraint) Build() (*simulation.Constraint, error) {
	if c == nil {
		return nil, nil
	}
	policy := simulation.ClosestBound
	if c.Policy != "" {
		var err error
		if policy, err = simulation.ParsePolicy(c.Policy); err != nil {
			return nil, err
		}
	}
	if c.Lower != nil && c.Upper != nil && *c.Lower > *c.Upper {
		return nil, fmt.Errorf("%w: lower bound %v above upper bound %v", ErrInvalidDocument, *c.Lower, *c.Upper)
	}
	return &simulation.Constraint{
		Lower:       c.Lower,
		Upper:       c.Upper,
		Policy:      policy,
		MaxAttempts: c.MaxAttempts,
		Default:     c.Default,
	}, nil
}

// Build converts a categorical parameter.
func (q *Qualitative) Build() (simulation.QualitativeParameter, error) {
	switch q.Type {
	case "constant":
		return simulation.NewQualitativeConstant(q.Name, q.Value), nil
	case "discrete":
		outcomes := make([]simulation.QualitativeOutcome, len(q.Outcomes))
		for i, o := range q.Outcomes {
			outcomes[i] = simulation.QualitativeOutcome{Value: o.Value, Probability: o.Probability}
		}
		return simulation.NewQualitativeDiscrete(q.Name, outcomes)
	case "precomputed":
		return simulation.NewQualitativePrecomputed(q.Name, q.Values), nil
	}
	return nil, fmt.Errorf("%w: qualitative parameter %q has unknown type %q", simulation.ErrInvalidParameter, q.Name, q.Type)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
