package cmd

import (
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/dispatch"
	"github.com/tideline/tideline/internal/finalize"
	"github.com/tideline/tideline/internal/notify"
	"github.com/tideline/tideline/internal/workflow"
	"github.com/tideline/tideline/pkg/task"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run the submission dispatcher",
	Long: `Consume submission events, stage inputs, and launch analysis runs.
Finished runs are settled in-process: artifacts are uploaded, the record is
advanced to its terminal status, and the archival countdown starts for
free-tier submitters.`,
	RunE: runDispatch,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	scratch := task.Scratch{Root: rt.cfg.Runner.ScratchRoot}
	runner := task.NewRunner(task.RunnerConfig{
		Command: rt.cfg.Runner.Command,
		Args:    rt.cfg.Runner.Args,
	}, rt.logger)

	fin := finalize.New(
		rt.records(),
		rt.hot(),
		scratch,
		notify.NewSNSPublisher(sns.NewFromConfig(rt.aws), rt.cfg.Notify.TopicARN),
		workflow.NewSFNStarter(sfn.NewFromConfig(rt.aws), rt.cfg.Workflow.StateMachineARN),
		finalize.Config{
			ResultsBucket: rt.cfg.Storage.ResultsBucket,
			KeyPrefix:     rt.cfg.Storage.KeyPrefix,
		},
		rt.logger,
	)

	handler := dispatch.NewHandler(rt.records(), rt.hot(), scratch, runner, fin, rt.logger)

	rt.logger.Info("Dispatcher started", zap.String("queue", rt.cfg.Queues.Submissions))
	err = rt.consume(ctx, rt.cfg.Queues.Submissions, handler)

	// Let launched runs settle before the process exits.
	rt.logger.Info("Draining in-flight runs")
	handler.Drain()
	return err
}
