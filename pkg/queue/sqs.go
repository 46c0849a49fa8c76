package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConfig bounds the long-poll receive.
type SQSConfig struct {
	// URL is the queue URL (required).
	URL string

	// WaitTime is the long-poll wait. Zero uses DefaultWaitTime.
	WaitTime time.Duration

	// MaxMessages is the receive batch size. Zero uses DefaultMaxMessages;
	// values over 10 are clamped to the SQS limit.
	MaxMessages int
}

// DefaultWaitTime matches the long-poll interval the service has always run
// with.
const DefaultWaitTime = 15 * time.Second

// DefaultMaxMessages is the default receive batch size.
const DefaultMaxMessages = 10

// maxSQSBatch is the hard SQS ReceiveMessage limit.
const maxSQSBatch = 10

// SQSQueue implements Queue over one SQS queue. Messages published through
// an SNS topic arrive wrapped in a notification envelope; Receive unwraps it
// transparently.
type SQSQueue struct {
	client      SQSAPI
	url         string
	waitTime    time.Duration
	maxMessages int32
}

var _ Queue = (*SQSQueue)(nil)

func NewSQSQueue(client SQSAPI, cfg SQSConfig) *SQSQueue {
	wait := cfg.WaitTime
	if wait <= 0 {
		wait = DefaultWaitTime
	}
	max := cfg.MaxMessages
	if max <= 0 {
		max = DefaultMaxMessages
	}
	if max > maxSQSBatch {
		max = maxSQSBatch
	}
	return &SQSQueue{
		client:      client,
		url:         cfg.URL,
		waitTime:    wait,
		maxMessages: int32(max),
	}
}

func (q *SQSQueue) Receive(ctx context.Context) ([]Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		WaitTimeSeconds:     int32(q.waitTime / time.Second),
		MaxNumberOfMessages: q.maxMessages,
	})
	if err != nil {
		return nil, &QueueError{Op: "Receive", Queue: q.url, Err: err}
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          unwrapSNSEnvelope([]byte(aws.ToString(m.Body))),
		})
	}
	return msgs, nil
}

func (q *SQSQueue) Delete(ctx context.Context, msg Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return &QueueError{Op: "Delete", Queue: q.url, Err: err}
	}
	return nil
}

// snsEnvelope is the subset of the SNS notification wrapper we care about.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// unwrapSNSEnvelope returns the inner message for SNS notification bodies
// and the original body for everything else.
func unwrapSNSEnvelope(body []byte) []byte {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	if env.Type == "Notification" && env.Message != "" {
		return []byte(env.Message)
	}
	return body
}
