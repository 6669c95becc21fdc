package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/internal/repository"
)

// ListOptions holds flags shared by status and reconcile.
type ListOptions struct {
	*RootOptions
	Limit int
}

// StalledRecord is the printed view of a sync record that has not reached
// close_order.
type StalledRecord struct {
	TargetOrderID   string    `json:"target_order_id"`
	SourceReceiptID string    `json:"source_receipt_id"`
	Step            string    `json:"step"`
	CreationStatus  string    `json:"creation_status"`
	PaymentKind     string    `json:"payment_kind"`
	Amount          string    `json:"amount"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func newStalledRecord(r domain.SyncRecord) StalledRecord {
	return StalledRecord{
		TargetOrderID:   r.TargetOrderID,
		SourceReceiptID: r.SourceReceiptID,
		Step:            string(r.Step),
		CreationStatus:  r.CreationStatus,
		PaymentKind:     string(r.PaymentKind),
		Amount:          r.Amount.String(),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List sagas that stopped before close_order",
		Long: `List sync records whose step is create_order or add_payment, oldest
first. These receipts exist in Syrve but were not closed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}

	addLimitFlag(cmd, &opts.Limit)
	return cmd
}

func addLimitFlag(cmd *cobra.Command, limit *int) {
	cmd.Flags().IntVar(limit, "limit", repository.DefaultStalledLimit, "maximum number of records")
}

func runStatus(cmd *cobra.Command, opts *ListOptions) error {
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid limit %d", opts.Limit))
	}

	return withBackend(cmd, opts.RootOptions, func(ctx context.Context, b Backend) error {
		records, err := b.Stalled(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list stalled records", err)
		}

		view := make([]StalledRecord, 0, len(records))
		for _, r := range records {
			view = append(view, newStalledRecord(r))
		}

		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			return writeJSON(out, view)
		}
		if len(view) == 0 {
			fmt.Fprintln(out, "no stalled sync records")
			return nil
		}

		tw := newTable(out)
		fmt.Fprintln(tw, "TARGET ORDER\tRECEIPT\tSTEP\tPAYMENT\tAMOUNT\tUPDATED")
		for _, r := range view {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.TargetOrderID, r.SourceReceiptID, r.Step, orDash(r.PaymentKind), r.Amount, formatTime(r.UpdatedAt))
		}
		return tw.Flush()
	})
}
