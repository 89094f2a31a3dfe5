package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) newHistoryCmd() *cobra.Command {
	var (
		limit   int
		asJSON  bool
		deleted string
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List archived runs, or show one run in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if deleted != "" {
				if err := st.DeleteRun(ctx, deleted); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", deleted)
				return nil
			}

			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), run)
			}

			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), runs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tKIND\tSAMPLES\tMEAN\tEXPRESSION")
			for _, r := range runs {
				mean := "-"
				if r.Summary != nil {
					mean = strconv.FormatFloat(r.Summary.Mean, 'g', 6, 64)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Kind, r.Samples, mean, r.Expression)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")
	cmd.Flags().StringVar(&deleted, "delete", "", "delete the run with this id")
	return cmd
}
