package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/restore"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Run the restore orchestrator",
	Long: `Consume tier-upgrade events and start a cold-storage retrieval for
every archived result the upgraded user owns. Expedited retrievals fall back
to the standard tier once when capacity is exhausted.`,
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	handler := restore.NewUpgradeHandler(rt.records(), rt.vault(), rt.logger)

	rt.logger.Info("Restore orchestrator started", zap.String("queue", rt.cfg.Queues.Upgrades))
	return rt.consume(ctx, rt.cfg.Queues.Upgrades, handler)
}
