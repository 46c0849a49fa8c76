package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/config"
	"github.com/tideline/tideline/internal/observability"
	"github.com/tideline/tideline/pkg/coldstore"
	"github.com/tideline/tideline/pkg/jobrecord"
	"github.com/tideline/tideline/pkg/objectstore"
	"github.com/tideline/tideline/pkg/queue"
)

// runtime holds the shared process dependencies each subcommand builds its
// worker from.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	aws    aws.Config
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, aws: awsCfg}, nil
}

func (r *runtime) close() {
	_ = r.logger.Sync()
}

func (r *runtime) records() *jobrecord.DynamoStore {
	return jobrecord.NewDynamoStore(dynamodb.NewFromConfig(r.aws), r.cfg.Records.Table, r.cfg.Records.UserIndex)
}

func (r *runtime) hot() *objectstore.S3Store {
	return objectstore.NewS3Store(s3.NewFromConfig(r.aws))
}

func (r *runtime) vault() *coldstore.GlacierVault {
	return coldstore.NewGlacierVault(glacier.NewFromConfig(r.aws), r.cfg.Vault.Name, r.cfg.Vault.TopicARN)
}

func (r *runtime) queue(url string) *queue.SQSQueue {
	return queue.NewSQSQueue(sqs.NewFromConfig(r.aws), queue.SQSConfig{
		URL:         url,
		WaitTime:    r.cfg.Queues.WaitTime,
		MaxMessages: r.cfg.Queues.MaxMessages,
	})
}

// consume runs a consumer pool over the queue at url until the context is
// cancelled. Cancellation is the normal way these workers stop.
func (r *runtime) consume(ctx context.Context, url string, h queue.Handler) error {
	if url == "" {
		return errors.New("queue URL is not configured")
	}
	c := queue.NewConsumer(r.queue(url), h, r.logger, queue.ConsumerConfig{
		Workers:        r.cfg.Workers.Count,
		PollsPerSecond: r.cfg.Workers.PollsPerSecond,
	})
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
