package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mcs-engine/internal/definition"
	"mcs-engine/internal/runner"
	"mcs-engine/internal/simulation"
)

type runFlags struct {
	samples int
	seed    uint64
	save    bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.samples, "samples", "n", 0, "number of trials (default: document, then MCS_DEFAULT_SAMPLES)")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "random seed (default: document, then MCS_SEED, then random)")
	cmd.Flags().BoolVar(&f.save, "save", false, "archive the run in the SQLite history")
}

func (a *app) newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run the simulation described by a document and print its summary",
		Long: `Runs a simulation document. A document with a 'dependent' block runs a dependent
simulation; one with a 'sensitivity' block runs a sensitivity sweep; anything else runs a
standard simulation. The result is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd, args[0], flags, runner.Request{Mode: runner.ModeAuto})
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) newSensitivityCmd() *cobra.Command {
	var (
		flags      runFlags
		exhaustive bool
		parallel   bool
	)
	cmd := &cobra.Command{
		Use:   "sensitivity <file>",
		Short: "Sweep the precomputed parameters of a simulation document",
		Long: `Runs one simulation per value of every precomputed (factor) parameter, the factor
replaced by a constant. Flags override the document's sensitivity block.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := runner.Request{Mode: runner.ModeSensitivity}
			if cmd.Flags().Changed("exhaustive") || cmd.Flags().Changed("parallel") {
				req.Sensitivity = &simulation.SensitivityOptions{Exhaustive: exhaustive, Parallel: parallel}
			}
			return a.execute(cmd, args[0], flags, req)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&exhaustive, "exhaustive", false, "simulate every combination of factor values")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "run scenarios concurrently (keys are sorted lexicographically)")
	return cmd
}

func (a *app) execute(cmd *cobra.Command, path string, flags runFlags, req runner.Request) error {
	ctx := cmd.Context()

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := definition.Parse(source)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	req.Samples = flags.samples
	req.Seed = flags.seed
	req.Save = flags.save
	req.Source = string(source)

	r, closeStore, err := a.runner(ctx, flags.save)
	if err != nil {
		return err
	}
	defer closeStore()

	run, err := r.Execute(ctx, doc, req)
	if err != nil {
		return err
	}
	run.Definition = ""
	return printJSON(cmd.OutOrStdout(), run)
}

// runner opens the archive only when it is needed.
func (a *app) runner(ctx context.Context, withStore bool) (*runner.Runner, func(), error) {
	if !withStore {
		return runner.New(a.cfg, nil), func() {}, nil
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return runner.New(a.cfg, st), func() { st.Close() }, nil
}
