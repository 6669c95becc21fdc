package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	From string
	To   string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync receipts from a date window",
		Long: `Fetch SmartKasa receipts created inside the window and sync each one
that has not been synced before.

Bounds accept YYYY-MM-DD or RFC 3339 and are read as UTC when no zone is
given. A date-only --to covers that whole day up to 23:59:59.999999999, so
--to 2025-06-30 includes receipts created on June 30. Pass an RFC 3339
timestamp such as 2025-06-30T00:00:00Z to stop at midnight instead.
Missing flags fall back to SYNC_DATE_FROM and SYNC_DATE_TO; a missing bound
leaves that side of the window open.

Examples:
  syncbridge run --from 2025-06-01 --to 2025-06-30
  syncbridge run --from 2025-06-01T08:00:00Z --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "window start (inclusive)")
	cmd.Flags().StringVar(&opts.To, "to", "", "window end (inclusive; a date-only value covers the whole day)")

	return cmd
}

func runSync(cmd *cobra.Command, opts *RunOptions) error {
	return withBackend(cmd, opts.RootOptions, func(ctx context.Context, b Backend) error {
		from, to := b.DefaultWindow()
		if cmd.Flags().Changed("from") {
			from = opts.From
		}
		if cmd.Flags().Changed("to") {
			to = opts.To
		}
		window, err := domain.ParseWindow(from, to)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid date window", err)
		}

		summary, runErr := b.RunSync(ctx, window)
		if summary != nil {
			if err := printSummary(cmd, opts.Format, summary); err != nil {
				return WrapExitError(ExitCommandError, "failed to write output", err)
			}
		}
		if runErr != nil {
			return WrapExitError(ExitCommandError, "sync run failed", runErr)
		}
		if summary.HasFailures() {
			return NewExitError(ExitFailure,
				fmt.Sprintf("sync run finished with %d failed and %d stalled receipts", summary.Failed, summary.Stalled))
		}
		return nil
	})
}

func printSummary(cmd *cobra.Command, format string, s *domain.RunSummary) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, s)
	}

	tw := newTable(out)
	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "window\t%s\n", s.Window)
	fmt.Fprintf(tw, "duration\t%s\n", s.Duration)
	fmt.Fprintf(tw, "fetched\t%d\n", s.Fetched)
	fmt.Fprintf(tw, "in window\t%d\n", s.InWindow)
	fmt.Fprintf(tw, "completed\t%d\n", s.Completed)
	fmt.Fprintf(tw, "stalled\t%d\n", s.Stalled)
	fmt.Fprintf(tw, "failed\t%d\n", s.Failed)
	fmt.Fprintf(tw, "duplicates\t%d\n", s.Duplicates)
	fmt.Fprintf(tw, "unmapped\t%d\n", s.Unmapped)
	fmt.Fprintf(tw, "invalid\t%d\n", s.Invalid)
	fmt.Fprintf(tw, "rejected\t%d\n", s.Rejected)
	return tw.Flush()
}
