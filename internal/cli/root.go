// Package cli implements the syncbridge command tree.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/internal/service"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/health"
)

// Backend is what the commands need from the wired application.
type Backend interface {
	RunSync(ctx context.Context, window domain.DateWindow) (*domain.RunSummary, error)
	Stalled(ctx context.Context, limit int) ([]domain.SyncRecord, error)
	Reconcile(ctx context.Context, limit int) ([]service.ReconcileResult, error)
	Check(ctx context.Context) health.Report
	DefaultWindow() (from, to string)
	Close() error
}

// Opener builds a Backend for one command invocation.
type Opener func(ctx context.Context) (Backend, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	open   Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. open is called by each subcommand
// once its flags have been validated.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "syncbridge",
		Short: "Sync SmartKasa receipts into Syrve orders",
		Long: `syncbridge copies closed SmartKasa receipts into Syrve as orders.

Each receipt goes through create order, add payment and close order. Progress
is stored after every phase so a receipt is never sent twice.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// withBackend opens the backend, runs fn and closes the backend.
func withBackend(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, b Backend) error) (err error) {
	ctx := cmd.Context()
	b, err := opts.open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start syncbridge", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to shut down cleanly", cerr)
		}
	}()
	return fn(ctx, b)
}
