// Package definition reads simulation documents (YAML, or JSON as a subset
// of YAML) and builds the simulation objects they describe.
//
// A document holds either a standard simulation or a dependent one:
//
//	samples: 10000
//	simulation:
//	  expression: Rf + B * (Rm - Rf)
//	  parameters:
//	    - {name: Rf, type: constant, value: 0.02}
//	    - {name: B, type: precomputed, values: [0.5, 1.0, 1.5]}
//	    - name: Rm
//	      type: distribution
//	      distribution: normal
//	      args: {mu: 0.08, sigma: 0.15}
//	      constraint: {lower: -1, upper: 1, policy: closest_bound}
//	sensitivity: {exhaustive: false, parallel: false}
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument wraps decoding and validation failures.
var ErrInvalidDocument = errors.New("invalid simulation document")

// validate is the validator instance for document types.
var validate = validator.New()

// Document is the root of a simulation document.
type Document struct {
	Samples     int          `yaml:"samples" validate:"gte=0"`
	Seed        uint64       `yaml:"seed"`
	Sensitivity *Sensitivity `yaml:"sensitivity"`
	Simulation  *Simulation  `yaml:"simulation" validate:"required_without=Dependent,excluded_with=Dependent"`
	Dependent   *Dependent   `yaml:"dependent"`
}

// Sensitivity requests a sweep over the precomputed parameters.
type Sensitivity struct {
	Exhaustive bool `yaml:"exhaustive"`
	Parallel   bool `yaml:"parallel"`
}

// Simulation describes an expression and its parameters.
type Simulation struct {
	Expression string       `yaml:"expression" validate:"required"`
	Parameters []*Parameter `yaml:"parameters" validate:"dive,required"`
}

// Dependent describes a sequential simulation.
type Dependent struct {
	Expression string     `yaml:"expression" validate:"required"`
	StartValue float64    `yaml:"start_value"`
	Change     *Parameter `yaml:"change" validate:"required"`
}

// Parameter is one parameter of any variant. Which fields apply depends on
// Type.
type Parameter struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=constant discrete distribution distribution_function precomputed conditional random_bag nested_simulation dependent_simulation qualitative_interpretation"`

	Value   *float64  `yaml:"value"`
	Values  []float64 `yaml:"values"`
	Default *float64  `yaml:"default"`

	Outcomes []Outcome `yaml:"outcomes" validate:"dive"`

	Distribution string             `yaml:"distribution"`
	Args         map[string]float64 `yaml:"args"`
	Function     string             `yaml:"function"`
	Location     *Parameter         `yaml:"location"`

	Reference  *Parameter  `yaml:"reference"`
	Conditions []Condition `yaml:"conditions" validate:"dive"`

	Items       []BagItem `yaml:"items" validate:"dive"`
	Replacement string    `yaml:"replacement"`

	Simulation *Simulation `yaml:"simulation"`
	Dependent  *Dependent  `yaml:"dependent"`
	Statistic  string      `yaml:"statistic"`
	InnerRuns  int         `yaml:"inner_runs" validate:"gte=0"`

	Constraint *Constraint `yaml:"constraint"`

	Qualitative *Qualitative       `yaml:"qualitative"`
	Dictionary  map[string]float64 `yaml:"dictionary"`
}

// Outcome is a numeric outcome with its probability.
type Outcome struct {
	Value       float64 `yaml:"value"`
	Probability float64 `yaml:"probability" validate:"gte=0,lte=1"`
}

// Condition is one ordered test of a conditional parameter.
type Condition struct {
	Comparator string  `yaml:"comparator" validate:"required"`
	Threshold  float64 `yaml:"threshold"`
	Value      float64 `yaml:"value"`
}

// BagItem is a bag value with its multiplicity.
type BagItem struct {
	Value float64 `yaml:"value"`
	Count int     `yaml:"count" validate:"gte=1"`
}

// Constraint bounds a resampleable parameter.
type Constraint struct {
	Lower       *float64 `yaml:"lower"`
	Upper       *float64 `yaml:"upper"`
	Policy      string   `yaml:"policy" validate:"omitempty,oneof=resimulate closest_bound default_value"`
	MaxAttempts int      `yaml:"max_attempts" validate:"gte=0"`
	Default     float64  `yaml:"default"`
}

// Qualitative is a categorical parameter.
type Qualitative struct {
	Name     string               `yaml:"name" validate:"required"`
	Type     string               `yaml:"type" validate:"required,oneof=constant discrete precomputed"`
	Value    string               `yaml:"value"`
	Values   []string             `yaml:"values"`
	Outcomes []QualitativeOutcome `yaml:"outcomes" validate:"dive"`
}

// QualitativeOutcome is a category with its probability.
type QualitativeOutcome struct {
	Value       string  `yaml:"value" validate:"required"`
	Probability float64 `yaml:"probability" validate:"gte=0,lte=1"`
}

// Parse decodes and validates a document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Validate checks struct-level rules. Variant-specific rules are enforced by
// Build.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

