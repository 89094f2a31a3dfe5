package simulation

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"mcs-engine/internal/distribution"
	"mcs-engine/internal/stats"
)

// Parameter is a named recipe for one value per trial. The set of
// implementations is closed: every variant is declared in this package and
// handled by Engine.Resolve.
type Parameter interface {
	// Name is the expression binding key.
	Name() string
	// Kind is a short variant label used in logs and documents.
	Kind() string
	isParameter()
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name %q must start with a letter or underscore and contain only letters, digits and underscores", ErrInvalidParameter, name)
	}
	return nil
}

type named struct{ name string }

func (n named) Name() string { return n.name }
func (named) isParameter() {}

// Constant yields the same value every trial.
type Constant struct {
	named
	value float64
}

func NewConstant(name string, value float64) *Constant {
	return &Constant{named: named{name}, value: value}
}

func (c *Constant) Kind() string { return "constant" }
func (c *Constant) Value() float64 { return c.value }

// Outcome is a value with its probability.
type Outcome struct {
	Value       float64
	Probability float64
}

// probabilityTolerance is how far outcome probabilities may drift from 1.
const probabilityTolerance = 0.01

// cumulative validates probabilities and returns monotone thresholds whose
// last element is exactly 1.
func cumulative(probabilities []float64) ([]float64, error) {
	if len(probabilities) == 0 {
		return nil, fmt.Errorf("%w: no outcomes", ErrInvalidProbability)
	}
	thresholds := make([]float64, len(probabilities))
	sum := 0.0
	for i, p := range probabilities {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return nil, fmt.Errorf("%w: probability %v outside [0,1]", ErrInvalidProbability, p)
		}
		sum += p
		thresholds[i] = sum
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return nil, fmt.Errorf("%w: probabilities sum to %v", ErrInvalidProbability, sum)
	}
	thresholds[len(thresholds)-1] = 1
	return thresholds, nil
}

// Discrete picks one of a fixed set of outcomes per trial.
type Discrete struct {
	named
	outcomes   []Outcome
	thresholds []float64
}

// NewDiscrete validates that probabilities lie in [0,1] and sum to 1 (±1%).
func NewDiscrete(name string, outcomes []Outcome) (*Discrete, error) {
	probs := make([]float64, len(outcomes))
	for i, o := range outcomes {
		probs[i] = o.Probability
	}
	thresholds, err := cumulative(probs)
	if err != nil {
		return nil, paramErr(name, err)
	}
	return &Discrete{named: named{name}, outcomes: slices.Clone(outcomes), thresholds: thresholds}, nil
}

func (d *Discrete) Kind() string { return "discrete" }
func (d *Discrete) Outcomes() []Outcome { return slices.Clone(d.outcomes) }
func (d *Discrete) Thresholds() []float64 { return slices.Clone(d.thresholds) }

// Distribution draws from an external sampler, optionally repaired by a constraint.
type Distribution struct {
	named
	sampler    distribution.Sampler
	constraint *Constraint
}

func NewDistribution(name string, sampler distribution.Sampler, constraint *Constraint) *Distribution {
	return &Distribution{named: named{name}, sampler: sampler, constraint: constraint}
}

func (d *Distribution) Kind() string { return "distribution" }
func (d *Distribution) Sampler() distribution.Sampler { return d.sampler }
func (d *Distribution) Constraint() *Constraint { return d.constraint }

// DistributionFunction evaluates a distribution function (CDF, PDF or
// quantile) at a location taken per trial from another parameter.
type DistributionFunction struct {
	named
	sampler  distribution.Sampler
	function distribution.Function
	location Parameter
}

func NewDistributionFunction(name string, sampler distribution.Sampler, fn distribution.Function, location Parameter) *DistributionFunction {
	return &DistributionFunction{named: named{name}, sampler: sampler, function: fn, location: location}
}

func (d *DistributionFunction) Kind() string { return "distribution_function" }

// Precomputed is a fixed vector that must match the sample count exactly.
// In sensitivity analysis it is a factor: each value is one sweep point.
type Precomputed struct {
	named
	values []float64
}

func NewPrecomputed(name string, values []float64) *Precomputed {
	return &Precomputed{named: named{name}, values: slices.Clone(values)}
}

func (p *Precomputed) Kind() string { return "precomputed" }
func (p *Precomputed) Values() []float64 { return slices.Clone(p.values) }
func (p *Precomputed) Len() int { return len(p.values) }

// Comparator tests a reference value against a threshold.
type Comparator int

const (
	Equal Comparator = iota
	NotEqual
	Less
	LessOrEqual
	Greater
	GreaterOrEqual
)

var comparatorSymbols = []string{"==", "!=", "<", "<=", ">", ">="}

func (c Comparator) String() string {
	if int(c) < len(comparatorSymbols) {
		return comparatorSymbols[c]
	}
	return fmt.Sprintf("Comparator(%d)", int(c))
}

// ParseComparator accepts the symbolic form ("<=") or a word ("le").
func ParseComparator(s string) (Comparator, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := slices.Index(comparatorSymbols, s); i >= 0 {
		return Comparator(i), nil
	}
	switch s {
	case "eq", "equal":
		return Equal, nil
	case "ne", "not_equal":
		return NotEqual, nil
	case "lt", "less":
		return Less, nil
	case "le", "less_or_equal":
		return LessOrEqual, nil
	case "gt", "greater":
		return Greater, nil
	case "ge", "greater_or_equal":
		return GreaterOrEqual, nil
	}
	return 0, fmt.Errorf("%w: unknown comparator %q", ErrInvalidParameter, s)
}

func (c Comparator) Compare(a, b float64) bool {
	switch c {
	case Equal:
		return a == b
	case NotEqual:
		return a != b
	case Less:
		return a < b
	case LessOrEqual:
		return a <= b
	case Greater:
		return a > b
	case GreaterOrEqual:
		return a >= b
	}
	return false
}

// ConditionalOutcome returns Value when the reference compares true against Threshold.
type ConditionalOutcome struct {
	Comparator Comparator
	Threshold  float64
	Value      float64
}

// Conditional maps another parameter's per-trial value through an ordered
// list of tests; the first match wins, otherwise the default applies.
type Conditional struct {
	named
	reference    Parameter
	outcomes     []ConditionalOutcome
	defaultValue float64
}

func NewConditional(name string, reference Parameter, outcomes []ConditionalOutcome, defaultValue float64) *Conditional {
	return &Conditional{named: named{name}, reference: reference, outcomes: slices.Clone(outcomes), defaultValue: defaultValue}
}

func (c *Conditional) Kind() string { return "conditional" }

func (c *Conditional) pick(v float64) float64 {
	for _, o := range c.outcomes {
		if o.Comparator.Compare(v, o.Threshold) {
			return o.Value
		}
	}
	return c.defaultValue
}

// ReplacementPolicy controls how a RandomBag refills.
type ReplacementPolicy int

const (
	// AfterEachPick samples with replacement.
	AfterEachPick ReplacementPolicy = iota
	// Never samples without replacement; the bag must hold at least n items.
	Never
	// WhenEmpty reshuffles the full bag each time it runs out.
	WhenEmpty
)

func (p ReplacementPolicy) String() string {
	switch p {
	case AfterEachPick:
		return "after_each_pick"
	case Never:
		return "never"
	case WhenEmpty:
		return "when_empty"
	}
	return fmt.Sprintf("ReplacementPolicy(%d)", int(p))
}

// ParseReplacementPolicy maps a policy name to a ReplacementPolicy.
func ParseReplacementPolicy(s string) (ReplacementPolicy, error) {
	for _, p := range []ReplacementPolicy{AfterEachPick, Never, WhenEmpty} {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrRandomBagReplacementRule, s)
}

// BagItem is a value with its multiplicity.
type BagItem struct {
	Value float64
	Count int
}

// RandomBag draws from a multiset of values.
type RandomBag struct {
	named
	items  []BagItem
	policy ReplacementPolicy
}

func NewRandomBag(name string, items []BagItem, policy ReplacementPolicy) *RandomBag {
	return &RandomBag{named: named{name}, items: slices.Clone(items), policy: policy}
}

func (b *RandomBag) Kind() string { return "random_bag" }
func (b *RandomBag) Policy() ReplacementPolicy { return b.policy }
func (b *RandomBag) Items() []BagItem { return slices.Clone(b.items) }

// Size is the total multiplicity of the bag.
func (b *RandomBag) Size() int {
	n := 0
	for _, it := range b.items {
		if it.Count > 0 {
			n += it.Count
		}
	}
	return n
}

// contents flattens the bag into one slot per item.
func (b *RandomBag) contents() []float64 {
	out := make([]float64, 0, b.Size())
	for _, it := range b.items {
		for range it.Count {
			out = append(out, it.Value)
		}
	}
	return out
}

// ReturnResults selects the inner simulation's result vector instead of a
// summary statistic.
const ReturnResults stats.Statistic = 0

// nestedSpec is shared by both simulation-backed parameter variants.
type nestedSpec struct {
	statistic  stats.Statistic
	innerRuns  int
	constraint *Constraint
}

func newNestedSpec(name string, statistic stats.Statistic, innerRuns int, constraint *Constraint) (nestedSpec, error) {
	spec := nestedSpec{statistic: statistic, innerRuns: innerRuns, constraint: constraint}
	if statistic == ReturnResults {
		if constraint != nil {
			return spec, paramErr(name, fmt.Errorf("%w: constraints do not apply to results-mode nested simulations", ErrInvalidParameter))
		}
		return spec, nil
	}
	if _, err := (stats.Summary{}).Scalar(statistic); err != nil {
		return spec, paramErr(name, err)
	}
	if innerRuns <= 0 {
		return spec, paramErr(name, fmt.Errorf("%w: inner run count must be positive, got %d", ErrInvalidParameter, innerRuns))
	}
	return spec, nil
}

func (s nestedSpec) Statistic() stats.Statistic { return s.statistic }
func (s nestedSpec) InnerRuns() int { return s.innerRuns }
func (s nestedSpec) Constraint() *Constraint { return s.constraint }

// innerSize is the sample count each inner run uses for an outer run of n.
func (s nestedSpec) innerSize(n int) int {
	if s.statistic == ReturnResults {
		return n
	}
	return s.innerRuns
}

// NestedSimulation uses a whole Simulation as a parameter. With
// ReturnResults the inner simulation runs once at the outer sample count;
// otherwise it runs once per outer trial at innerRuns samples and contributes
// one summary statistic.
type NestedSimulation struct {
	named
	nestedSpec
	simulation *Simulation
}

func NewNestedSimulation(name string, sim *Simulation, statistic stats.Statistic, innerRuns int, constraint *Constraint) (*NestedSimulation, error) {
	spec, err := newNestedSpec(name, statistic, innerRuns, constraint)
	if err != nil {
		return nil, err
	}
	return &NestedSimulation{named: named{name}, nestedSpec: spec, simulation: sim}, nil
}

func (n *NestedSimulation) Kind() string { return "nested_simulation" }
func (n *NestedSimulation) Simulation() *Simulation { return n.simulation }

// DependentSimulationParameter is NestedSimulation for a DependentSimulation.
type DependentSimulationParameter struct {
	named
	nestedSpec
	simulation *DependentSimulation
}

func NewDependentSimulationParameter(name string, sim *DependentSimulation, statistic stats.Statistic, innerRuns int, constraint *Constraint) (*DependentSimulationParameter, error) {
	spec, err := newNestedSpec(name, statistic, innerRuns, constraint)
	if err != nil {
		return nil, err
	}
	return &DependentSimulationParameter{named: named{name}, nestedSpec: spec, simulation: sim}, nil
}

func (d *DependentSimulationParameter) Kind() string { return "dependent_simulation" }
func (d *DependentSimulationParameter) Simulation() *DependentSimulation { return d.simulation }

// QualitativeInterpretation maps categorical outcomes to numbers.
type QualitativeInterpretation struct {
	named
	qualitative  QualitativeParameter
	dictionary   map[string]float64
	defaultValue float64
}

func NewQualitativeInterpretation(name string, q QualitativeParameter, dictionary map[string]float64, defaultValue float64) *QualitativeInterpretation {
	dict := make(map[string]float64, len(dictionary))
	for k, v := range dictionary {
		dict[k] = v
	}
	return &QualitativeInterpretation{named: named{name}, qualitative: q, dictionary: dict, defaultValue: defaultValue}
}

func (q *QualitativeInterpretation) Kind() string { return "qualitative_interpretation" }

// dependencies returns parameters a variant resolves through directly.
func dependencies(p Parameter) []Parameter {
	switch p := p.(type) {
	case *DistributionFunction:
		return []Parameter{p.location}
	case *Conditional:
		return []Parameter{p.reference}
	}
	return nil
}
