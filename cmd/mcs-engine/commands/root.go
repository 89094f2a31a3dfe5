package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mcs-engine/internal/config"
	"mcs-engine/internal/logging"
	"mcs-engine/internal/store"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	verbose bool
	cfg     *config.AppConfig
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "mcs-engine",
		Short: "Monte-Carlo parameter resolution and composition engine",
		Long: `Runs Monte-Carlo simulations described by YAML or JSON documents: expressions over
constant, discrete, distribution, precomputed, conditional, random-bag, nested and dependent
parameters, with sensitivity sweeps over precomputed factors.

Without a subcommand it serves the simulation tools over MCP on stdio.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(a.verbose)

			var err error
			a.cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			log.Debug().
				Str("version", Version).
				Str("commit", Commit).
				Str("buildDate", BuildDate).
				Str("dataPath", a.cfg.DataPath).
				Int("workers", a.cfg.Workers).
				Msg("mcs-engine starting")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), a.cfg.MetricsAddr)
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(
		a.newRunCmd(),
		a.newSensitivityCmd(),
		a.newServeCmd(),
		a.newHistoryCmd(),
	)
	return root
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open run archive %s: %w", a.cfg.DBPath, err)
	}
	return st, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
