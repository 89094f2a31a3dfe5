// Package runner executes simulation documents for the CLI and the MCP
// server and optionally archives the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"mcs-engine/internal/config"
	"mcs-engine/internal/definition"
	"mcs-engine/internal/simulation"
	"mcs-engine/internal/store"
)

// ErrNoArchive is returned when saving is requested without a store.
var ErrNoArchive = errors.New("run archive is not configured")

// Mode selects what to run from a document.
type Mode int

const (
	// ModeAuto runs a dependent simulation for a dependent document, a
	// sensitivity sweep when the document has a sensitivity block, and a
	// standard simulation otherwise.
	ModeAuto Mode = iota
	ModeStandard
	ModeSensitivity
	ModeDependent
)

// Request holds per-run overrides. Zero values defer to the document, then to
// the configuration.
type Request struct {
	Mode        Mode
	Samples     int
	Seed        uint64
	Sensitivity *simulation.SensitivityOptions
	Save        bool
	// Source is archived with the run when saving.
	Source string
}

// Runner binds configuration and an optional archive.
type Runner struct {
	cfg   *config.AppConfig
	store *store.Store
}

// New creates a Runner. st may be nil, in which case saving fails.
func New(cfg *config.AppConfig, st *store.Store) *Runner {
	return &Runner{cfg: cfg, store: st}
}

// Store returns the archive, or nil.
func (r *Runner) Store() *store.Store {
	return r.store
}

// Execute runs doc and returns the run description. The ID is set only when
// the run was saved.
func (r *Runner) Execute(ctx context.Context, doc *definition.Document, req Request) (store.Run, error) {
	samples := firstPositive(req.Samples, doc.Samples, r.cfg.DefaultSamples)
	seed := req.Seed
	if seed == 0 {
		seed = doc.Seed
	}
	if seed == 0 {
		seed = r.cfg.Seed
	}
	if seed == 0 {
		// Drawn here so the run can be reproduced from its reported seed.
		seed = rand.Uint64() | 1
	}

	engine := simulation.NewEngine(simulation.WithSeed(seed), simulation.WithWorkers(r.cfg.Workers))
	mode := r.mode(doc, req)

	log.Debug().
		Int("samples", samples).
		Uint64("seed", seed).
		Int("mode", int(mode)).
		Msg("Executing simulation document")

	var (
		run store.Run
		err error
	)
	switch mode {
	case ModeDependent:
		run, err = r.dependent(ctx, engine, doc, samples, seed)
	case ModeSensitivity:
		run, err = r.sensitivity(ctx, engine, doc, req, samples, seed)
	default:
		run, err = r.standard(ctx, engine, doc, samples, seed)
	}
	if err != nil {
		return store.Run{}, err
	}

	if req.Save {
		if r.store == nil {
			return store.Run{}, ErrNoArchive
		}
		run.Definition = req.Source
		id, err := r.store.SaveRun(ctx, run)
		if err != nil {
			return store.Run{}, fmt.Errorf("save run: %w", err)
		}
		run.ID = id
	}
	return run, nil
}

func (r *Runner) mode(doc *definition.Document, req Request) Mode {
	if req.Mode != ModeAuto {
		return req.Mode
	}
	if doc.IsDependent() {
		return ModeDependent
	}
	if doc.Sensitivity != nil {
		return ModeSensitivity
	}
	return ModeStandard
}

func (r *Runner) standard(ctx context.Context, engine *simulation.Engine, doc *definition.Document, samples int, seed uint64) (store.Run, error) {
	if doc.Simulation == nil {
		return store.Run{}, fmt.Errorf("%w: document has no simulation block", definition.ErrInvalidDocument)
	}
	sim, err := doc.Simulation.Build()
	if err != nil {
		return store.Run{}, err
	}
	res, err := engine.Simulate(ctx, sim, samples)
	if err != nil {
		return store.Run{}, err
	}
	return store.FromResults(res, seed), nil
}

func (r *Runner) sensitivity(ctx context.Context, engine *simulation.Engine, doc *definition.Document, req Request, samples int, seed uint64) (store.Run, error) {
	if doc.Simulation == nil {
		return store.Run{}, fmt.Errorf("%w: document has no simulation block", definition.ErrInvalidDocument)
	}
	opts, _ := doc.SensitivityOptions()
	if req.Sensitivity != nil {
		opts = *req.Sensitivity
	}
	sim, err := doc.Simulation.Build()
	if err != nil {
		return store.Run{}, err
	}
	res, err := engine.Sensitivity(ctx, sim, samples, opts)
	if err != nil {
		return store.Run{}, err
	}
	return store.FromSensitivity(res, seed), nil
}

func (r *Runner) dependent(ctx context.Context, engine *simulation.Engine, doc *definition.Document, samples int, seed uint64) (store.Run, error) {
	if doc.Dependent == nil {
		return store.Run{}, fmt.Errorf("%w: document has no dependent block", definition.ErrInvalidDocument)
	}
	d, err := doc.Dependent.Build()
	if err != nil {
		return store.Run{}, err
	}
	res, err := engine.SimulateDependent(ctx, d, samples)
	if err != nil {
		return store.Run{}, err
	}
	return store.FromDependent(res, seed), nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
