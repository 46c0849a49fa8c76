// Package notify publishes job completion events to the notification topic.
// Delivery is best effort: a failed publish never blocks or rolls back the
// lifecycle transition it announces.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/tideline/tideline/pkg/events"
)

// Publisher announces terminal job states to downstream consumers.
type Publisher interface {
	PublishCompletion(ctx context.Context, ev events.Completion) error
}

// SNSAPI is the subset of the SNS client used by SNSPublisher.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes completion events as JSON to one topic.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

var _ Publisher = (*SNSPublisher)(nil)

func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) PublishCompletion(ctx context.Context, ev events.Completion) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("publish completion for %s: %w", ev.JobID, err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publish completion for %s: %w", ev.JobID, err)
	}
	return nil
}
