// Package cmd wires the lifecycle workers into the tideline CLI. Each
// subcommand runs one worker loop until interrupted.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tideline",
	Short: "Job lifecycle and tiered-storage workers",
	Long: `tideline runs the message-driven workers that carry analysis jobs
through their lifecycle: dispatching submissions, settling finished runs,
moving free-tier results to cold storage, and restoring them after a tier
upgrade.

All coordination happens through conditional writes to the job record table;
every worker tolerates redelivered messages.`,
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: tideline.yaml on the search path)")
}

// Execute runs the CLI with signal-driven cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
