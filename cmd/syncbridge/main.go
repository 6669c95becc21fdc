package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Swed0ua/Integration-SK-Surve/internal/app"
	"github.com/Swed0ua/Integration-SK-Surve/internal/cli"
	"github.com/Swed0ua/Integration-SK-Surve/internal/config"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Cancel on SIGINT or SIGTERM. A run stops before the next receipt; a
	// receipt whose order was already created still records its progress.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand(open)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "syncbridge:", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

// open loads configuration and wires the application. Logs go to stderr so
// command output on stdout stays machine readable.
func open(ctx context.Context) (cli.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(ctx, cfg, logger.NewHandler(cfg.LogLevel, os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("initialize application: %w", err)
	}
	return a, nil
}
