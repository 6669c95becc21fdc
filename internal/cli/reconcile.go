package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ReconcileRow pairs a stalled record with the order Syrve reports.
type ReconcileRow struct {
	StalledRecord
	Found        bool   `json:"found"`
	RemoteStatus string `json:"remote_creation_status,omitempty"`
	RemoteOrder  string `json:"remote_order_status,omitempty"`
	RemoteError  string `json:"remote_error,omitempty"`
	LookupError  string `json:"lookup_error,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare stalled sagas with Syrve",
		Long: `Look up every stalled sync record in Syrve and print the order status
Syrve reports next to the local step.

reconcile is read-only: it never advances a step or resends a payment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	addLimitFlag(cmd, &opts.Limit)
	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ListOptions) error {
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid limit %d", opts.Limit))
	}

	return withBackend(cmd, opts.RootOptions, func(ctx context.Context, b Backend) error {
		results, err := b.Reconcile(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to reconcile", err)
		}

		rows := make([]ReconcileRow, 0, len(results))
		for _, res := range results {
			rows = append(rows, ReconcileRow{
				StalledRecord: newStalledRecord(res.Record),
				Found:         res.Found,
				RemoteStatus:  res.Remote.CreationStatus,
				RemoteOrder:   res.Remote.OrderStatus,
				RemoteError:   res.Remote.ErrorMessage,
				LookupError:   res.Error,
			})
		}

		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			return writeJSON(out, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "no stalled sync records")
			return nil
		}

		tw := newTable(out)
		fmt.Fprintln(tw, "TARGET ORDER\tRECEIPT\tLOCAL STEP\tSYRVE CREATION\tSYRVE STATUS\tERROR")
		for _, r := range rows {
			creation := r.RemoteStatus
			if !r.Found && r.LookupError == "" {
				creation = "not found"
			}
			problem := r.LookupError
			if problem == "" {
				problem = r.RemoteError
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.TargetOrderID, r.SourceReceiptID, r.Step, orDash(creation), orDash(r.RemoteOrder), orDash(problem))
		}
		return tw.Flush()
	})
}
