package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ConsumerConfig sizes the polling pool.
type ConsumerConfig struct {
	// Workers is the number of concurrent pollers. Zero means one.
	Workers int

	// PollsPerSecond paces Receive calls per worker so an empty or
	// erroring queue is not hammered. Zero disables pacing (the queue's
	// long-poll wait is the only throttle).
	PollsPerSecond float64
}

// Consumer runs a pool of stateless pollers over a Queue. Each message is
// handled independently; a message is deleted only after its handler
// acknowledged it, so a crash mid-handling leaves the delivery for another
// worker.
type Consumer struct {
	queue   Queue
	handler Handler
	logger  *zap.Logger
	workers int
	limiter *rate.Limiter
}

func NewConsumer(q Queue, h Handler, logger *zap.Logger, cfg ConsumerConfig) *Consumer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	var limiter *rate.Limiter
	if cfg.PollsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PollsPerSecond), 1)
	}
	return &Consumer{
		queue:   q,
		handler: h,
		logger:  logger,
		workers: workers,
		limiter: limiter,
	}
}

// Run polls until ctx is cancelled. It always returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.poll(ctx, id)
		}(i + 1)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) poll(ctx context.Context, id int) {
	logger := c.logger.With(zap.Int("poller", id))
	for {
		if ctx.Err() != nil {
			return
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}
		}

		msgs, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Failed to receive messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			c.dispatch(ctx, logger, msg)
		}
	}
}

// dispatch runs the handler and acknowledges per its disposition. The delete
// happens strictly after the handler returned: acknowledging first would
// risk silent job loss on a crash between delete and record write.
func (c *Consumer) dispatch(ctx context.Context, logger *zap.Logger, msg Message) {
	disp, err := c.handler.Handle(ctx, msg)
	if err != nil {
		if disp == Ack {
			logger.Warn("Message consumed with error", zap.String("message_id", msg.ID), zap.Error(err))
		} else {
			logger.Warn("Message left for redelivery", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	if disp != Ack {
		return
	}
	if err := c.queue.Delete(ctx, msg); err != nil {
		// Redelivery of an acknowledged message is harmless: handlers are
		// idempotent against the record's current status.
		logger.Warn("Failed to delete message", zap.String("message_id", msg.ID), zap.Error(err))
	}
}
