package mcp

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"mcs-engine/internal/definition"
	"mcs-engine/internal/runner"
	"mcs-engine/internal/simulation"
	"mcs-engine/internal/stats"
	"mcs-engine/internal/store"
)

// SimulationInput is the input of run_simulation and run_dependent_simulation.
type SimulationInput struct {
	Definition string `json:"definition" jsonschema:"simulation document as YAML or JSON"`
	Samples    int    `json:"samples,omitempty" jsonschema:"number of trials; defaults to the document value, then to the server default"`
	Seed       uint64 `json:"seed,omitempty" jsonschema:"random seed; omitted or 0 draws one, which is reported in the result"`
	Save       bool   `json:"save,omitempty" jsonschema:"archive the run in the run history"`
}

// SensitivityInput is the input of run_sensitivity.
type SensitivityInput struct {
	Definition string `json:"definition" jsonschema:"simulation document as YAML or JSON; precomputed parameters are the factors"`
	Samples    int    `json:"samples,omitempty" jsonschema:"number of trials per scenario"`
	Seed       uint64 `json:"seed,omitempty" jsonschema:"random seed; omitted or 0 draws one"`
	Exhaustive bool   `json:"exhaustive,omitempty" jsonschema:"sweep every combination of factor values instead of stepping all factors together"`
	Parallel   bool   `json:"parallel,omitempty" jsonschema:"run scenarios concurrently; scenario keys are then sorted lexicographically"`
	Save       bool   `json:"save,omitempty" jsonschema:"archive the run in the run history"`
}

// ListRunsInput is the input of list_runs.
type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs, newest first; 0 lists all"`
}

// GetRunInput is the input of get_run.
type GetRunInput struct {
	ID string `json:"id" jsonschema:"run id returned by a saved simulation"`
}

// RunResult describes a finished or archived run.
type RunResult struct {
	RunID      string           `json:"run_id,omitempty" jsonschema:"archive id, present when the run was saved"`
	Kind       string           `json:"kind" jsonschema:"standard, dependent or sensitivity"`
	Expression string           `json:"expression"`
	Samples    int              `json:"samples"`
	Seed       uint64           `json:"seed"`
	Summary    *stats.Summary   `json:"summary,omitempty" jsonschema:"summary statistics of the outcome; absent for sensitivity runs"`
	Scenarios  []store.Scenario `json:"scenarios,omitempty" jsonschema:"per-scenario summaries in result order"`
	Definition string           `json:"definition,omitempty"`
	CreatedAt  string           `json:"created_at,omitempty"`
}

// ListRunsResult is the output of list_runs.
type ListRunsResult struct {
	Runs []RunResult `json:"runs"`
}

// outputSchema infers the schema of a tool result. Summary statistics of an
// unbounded run encode as "+Inf", "-Inf" or "NaN", so numbers may be strings.
func outputSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](&jsonschema.ForOptions{
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeFor[float64](): {Types: []string{"number", "string"}},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("infer output schema for %T: %v", *new(T), err))
	}
	return schema
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:         "run_simulation",
		OutputSchema: outputSchema[RunResult](),
		Description: "Run a Monte-Carlo simulation described by a YAML or JSON document and return summary statistics " +
			"(mean, quartiles, variance, skewness, excess kurtosis, 90/95/99% confidence intervals).\n\n" +
			"The document holds a 'simulation' block: an infix 'expression' and the 'parameters' it references. " +
			"Parameter types: constant, discrete, distribution, distribution_function, precomputed, conditional, " +
			"random_bag, nested_simulation, dependent_simulation, qualitative_interpretation.\n" +
			"Precomputed parameters must hold exactly 'samples' values; use run_sensitivity to sweep them instead.",
	}, s.handleRunSimulation)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:         "run_sensitivity",
		OutputSchema: outputSchema[RunResult](),
		Description: "Run a sensitivity analysis: one simulation per value of the precomputed (factor) parameters, " +
			"each factor replaced by a constant. Scenario keys look like 'B = 0.5; C = 2'.\n\n" +
			"By default all factors step together and must have the same number of values. " +
			"With exhaustive=true every combination is simulated (last factor varies fastest).",
	}, s.handleRunSensitivity)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:         "run_dependent_simulation",
		OutputSchema: outputSchema[RunResult](),
		Description: "Run a dependent (sequential) simulation where each trial's result feeds the next. " +
			"The document holds a 'dependent' block with an 'expression' over 'value' (the previous result) and the " +
			"change parameter's name, a 'start_value' and a 'change' parameter.",
	}, s.handleRunDependent)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:         "list_runs",
		OutputSchema: outputSchema[ListRunsResult](),
		Description:  "List archived runs, newest first, with their summaries.",
	}, s.handleListRuns)

	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:         "get_run",
		OutputSchema: outputSchema[RunResult](),
		Description:  "Fetch one archived run including its scenarios and source document.",
	}, s.handleGetRun)
}

func (s *Server) handleRunSimulation(ctx context.Context, _ *sdk.CallToolRequest, in SimulationInput) (*sdk.CallToolResult, RunResult, error) {
	return s.execute(ctx, "run_simulation", in.Definition, runner.Request{
		Mode:    runner.ModeStandard,
		Samples: in.Samples,
		Seed:    in.Seed,
		Save:    in.Save,
	})
}

func (s *Server) handleRunSensitivity(ctx context.Context, _ *sdk.CallToolRequest, in SensitivityInput) (*sdk.CallToolResult, RunResult, error) {
	return s.execute(ctx, "run_sensitivity", in.Definition, runner.Request{
		Mode:        runner.ModeSensitivity,
		Samples:     in.Samples,
		Seed:        in.Seed,
		Sensitivity: &simulation.SensitivityOptions{Exhaustive: in.Exhaustive, Parallel: in.Parallel},
		Save:        in.Save,
	})
}

func (s *Server) handleRunDependent(ctx context.Context, _ *sdk.CallToolRequest, in SimulationInput) (*sdk.CallToolResult, RunResult, error) {
	return s.execute(ctx, "run_dependent_simulation", in.Definition, runner.Request{
		Mode:    runner.ModeDependent,
		Samples: in.Samples,
		Seed:    in.Seed,
		Save:    in.Save,
	})
}

func (s *Server) execute(ctx context.Context, tool, text string, req runner.Request) (*sdk.CallToolResult, RunResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, RunResult{}, fmt.Errorf("definition is required")
	}
	doc, err := definition.Parse([]byte(text))
	if err != nil {
		log.Warn().Err(err).Str("tool", tool).Msg("Rejected simulation document")
		return nil, RunResult{}, err
	}
	req.Source = text

	run, err := s.runner.Execute(ctx, doc, req)
	if err != nil {
		log.Error().Err(err).Str("tool", tool).Msg("Simulation failed")
		return nil, RunResult{}, err
	}
	out := toResult(run)
	out.Definition = "" // the caller already has it
	return nil, out, nil
}

func (s *Server) handleListRuns(ctx context.Context, _ *sdk.CallToolRequest, in ListRunsInput) (*sdk.CallToolResult, ListRunsResult, error) {
	st := s.runner.Store()
	if st == nil {
		return nil, ListRunsResult{}, runner.ErrNoArchive
	}
	runs, err := st.ListRuns(ctx, in.Limit)
	if err != nil {
		return nil, ListRunsResult{}, err
	}
	out := ListRunsResult{Runs: make([]RunResult, len(runs))}
	for i, r := range runs {
		out.Runs[i] = toResult(r)
	}
	return nil, out, nil
}

func (s *Server) handleGetRun(ctx context.Context, _ *sdk.CallToolRequest, in GetRunInput) (*sdk.CallToolResult, RunResult, error) {
	st := s.runner.Store()
	if st == nil {
		return nil, RunResult{}, runner.ErrNoArchive
	}
	run, err := st.GetRun(ctx, in.ID)
	if err != nil {
		return nil, RunResult{}, err
	}
	return nil, toResult(*run), nil
}

func toResult(r store.Run) RunResult {
	out := RunResult{
		RunID:      r.ID,
		Kind:       r.Kind,
		Expression: r.Expression,
		Samples:    r.Samples,
		Seed:       r.Seed,
		Summary:    r.Summary,
		Scenarios:  r.Scenarios,
		Definition: r.Definition,
	}
	if !r.CreatedAt.IsZero() {
		out.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	return out
}
