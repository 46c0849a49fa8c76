package cmd

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/accounts"
	"github.com/tideline/tideline/internal/archive"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Run the archival mover",
	Long: `Consume archive triggers and move free-tier results from hot storage
to the cold vault. The submitter's tier is re-checked against the accounts
database at move time, so upgrades that land during the retention window keep
their results hot.`,
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.cfg.Accounts.DSN == "" {
		return errors.New("accounts.dsn is not configured")
	}
	pool, err := pgxpool.New(ctx, rt.cfg.Accounts.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	handler := archive.NewHandler(
		rt.records(),
		rt.hot(),
		rt.vault(),
		accounts.NewPostgresResolver(pool),
		rt.logger,
	)

	rt.logger.Info("Archival mover started", zap.String("queue", rt.cfg.Queues.Archive))
	return rt.consume(ctx, rt.cfg.Queues.Archive, handler)
}
