package definition

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"mcs-engine/internal/simulation"
	"mcs-engine/internal/stats"
)

func TestLoad_CAPMSensitivity(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "capm.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Samples != 2000 || doc.Seed != 7 || doc.IsDependent() {
		t.Fatalf("unexpected header: %+v", doc)
	}
	opts, ok := doc.SensitivityOptions()
	if !ok || opts.Exhaustive || opts.Parallel {
		t.Fatalf("SensitivityOptions() = %+v, %v", opts, ok)
	}

	sim, err := doc.Simulation.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	rm, ok := sim.Parameter("Rm")
	if !ok {
		t.Fatal("Rm missing")
	}
	if c := rm.(*simulation.Distribution).Constraint(); c == nil || c.Policy != simulation.ClosestBound {
		t.Errorf("Rm constraint = %v", c)
	}

	res, err := simulation.NewEngine(simulation.WithSeed(doc.Seed)).Sensitivity(context.Background(), sim, doc.Samples, opts)
	if err != nil {
		t.Fatalf("Sensitivity() error = %v", err)
	}
	if res.Len() != 3 {
		t.Errorf("scenarios = %d, want 3", res.Len())
	}
}

func TestLoad_EveryVariant(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "portfolio.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sim, err := doc.Simulation.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	wantKinds := map[string]string{
		"units": "random_bag",
		"price": "discrete",
		"churn": "distribution_function",
		"bonus": "conditional",
		"risk":  "nested_simulation",
		"grade": "qualitative_interpretation",
	}
	for name, kind := range wantKinds {
		p, ok := sim.Parameter(name)
		if !ok {
			t.Errorf("parameter %s missing", name)
			continue
		}
		if p.Kind() != kind {
			t.Errorf("%s kind = %s, want %s", name, p.Kind(), kind)
		}
	}

	nested, _ := sim.Parameter("risk")
	if got := nested.(*simulation.NestedSimulation).Statistic(); got != stats.StatisticMean {
		t.Errorf("risk statistic = %v, want mean", got)
	}

	res, err := simulation.NewEngine(simulation.WithSeed(doc.Seed)).Simulate(context.Background(), sim, doc.Samples)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if res.SampleCount() != 500 {
		t.Errorf("SampleCount() = %d, want 500", res.SampleCount())
	}
	churn, _ := res.RawData("churn")
	if math.Abs(churn[0]-0.02275) > 1e-4 {
		t.Errorf("churn = %v, want Φ(-2) ≈ 0.02275", churn[0])
	}
	risk, _ := res.RawData("risk")
	for i, v := range risk {
		if v < -5 || v > 5 {
			t.Fatalf("risk[%d] = %v outside constraint", i, v)
		}
	}
}

func TestLoad_DependentJSON(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "growth.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !doc.IsDependent() {
		t.Fatal("expected a dependent document")
	}
	d, err := doc.Dependent.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	res, err := simulation.NewEngine().SimulateDependent(context.Background(), d, doc.Samples)
	if err != nil {
		t.Fatalf("SimulateDependent() error = %v", err)
	}
	if first := res.Values()[0]; math.Abs(first-1010) > 1e-9 {
		t.Errorf("first value = %v, want 1010", first)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", ``, ErrInvalidDocument},
		{"unknown field", "simulation: {expression: a, parameters: [], colour: red}", ErrInvalidDocument},
		{"neither block", "samples: 10", ErrInvalidDocument},
		{"both blocks", "simulation: {expression: a}\ndependent: {expression: value, change: {name: c, type: constant, value: 1}}", ErrInvalidDocument},
		{"unknown type", "simulation: {expression: a, parameters: [{name: a, type: magic}]}", ErrInvalidDocument},
		{"missing expression", "simulation: {parameters: [{name: a, type: constant, value: 1}]}", ErrInvalidDocument},
		{"probability out of range", "simulation: {expression: d, parameters: [{name: d, type: discrete, outcomes: [{value: 1, probability: 2}]}]}", ErrInvalidDocument},
		{"bad policy", "simulation: {expression: x, parameters: [{name: x, type: distribution, distribution: normal, constraint: {policy: wrap}}]}", ErrInvalidDocument},
		{"negative samples", "samples: -1\nsimulation: {expression: a}", ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"constant without value", "simulation: {expression: a, parameters: [{name: a, type: constant}]}", ErrInvalidDocument},
		{"probabilities do not sum", "simulation: {expression: d, parameters: [{name: d, type: discrete, outcomes: [{value: 1, probability: 0.2}]}]}", simulation.ErrInvalidProbability},
		{"confidence interval statistic", "simulation: {expression: n, parameters: [{name: n, type: nested_simulation, statistic: confidence_interval, inner_runs: 5, simulation: {expression: '1'}}]}", simulation.ErrInvalidSummaryStatistic},
		{"results with constraint", "simulation: {expression: n, parameters: [{name: n, type: nested_simulation, constraint: {lower: 0}, simulation: {expression: '1'}}]}", simulation.ErrInvalidParameter},
		{"bad comparator", "simulation: {expression: c, parameters: [{name: c, type: conditional, reference: {name: r, type: constant, value: 1}, conditions: [{comparator: '~', value: 1}]}]}", simulation.ErrInvalidParameter},
		{"bad replacement", "simulation: {expression: b, parameters: [{name: b, type: random_bag, replacement: sometimes, items: [{value: 1, count: 1}]}]}", simulation.ErrRandomBagReplacementRule},
		{"duplicate names", "simulation: {expression: a, parameters: [{name: a, type: constant, value: 1}, {name: a, type: constant, value: 2}]}", simulation.ErrInvalidParameter},
		{"inverted bounds", "simulation: {expression: x, parameters: [{name: x, type: distribution, distribution: normal, args: {mu: 0, sigma: 1}, constraint: {lower: 2, upper: 1}}]}", ErrInvalidDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.doc))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if _, err := doc.Simulation.Build(); !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
		})
	}
}
