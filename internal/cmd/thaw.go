package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/restore"
)

var thawCmd = &cobra.Command{
	Use:   "thaw",
	Short: "Run the retrieval-completion worker",
	Long: `Consume the vault's retrieval-finished callbacks, copy restored
results back to their recorded hot-storage location, and delete the archive
copy once the hot copy is durable.`,
	RunE: runThaw,
}

func init() {
	rootCmd.AddCommand(thawCmd)
}

func runThaw(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	handler := restore.NewCompletionHandler(rt.records(), rt.hot(), rt.vault(), rt.logger)

	rt.logger.Info("Retrieval-completion worker started", zap.String("queue", rt.cfg.Queues.Retrievals))
	return rt.consume(ctx, rt.cfg.Queues.Retrievals, handler)
}
