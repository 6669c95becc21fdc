package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Swed0ua/Integration-SK-Surve/pkg/health"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the store and upstream dependencies",
		Long: `Ping the sync store, authenticate against SmartKasa and Syrve, and
reach Kafka and Redis when they are configured. Exits 1 if any probe fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, rootOpts)
		},
	}
	return cmd
}

func runCheck(cmd *cobra.Command, opts *RootOptions) error {
	return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
		report := b.Check(ctx)

		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			if err := writeJSON(out, report); err != nil {
				return err
			}
		} else {
			tw := newTable(out)
			fmt.Fprintln(tw, "CHECK\tSTATUS\tDURATION\tERROR")
			for _, c := range report.Checks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Status, c.Duration.Round(time.Microsecond), orDash(c.Error))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}

		if report.Status != health.StatusUp {
			return NewExitError(ExitFailure, "one or more dependencies are down")
		}
		return nil
	})
}
