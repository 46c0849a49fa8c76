// Package workflow starts the delayed-archival state machine for jobs whose
// results are eligible to move to cold storage after the retention window.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"
)

// Starter begins an archival countdown for a job and returns an opaque
// execution handle for the record.
type Starter interface {
	Start(ctx context.Context, jobID string) (string, error)
}

// SFNAPI is the subset of the Step Functions client used by SFNStarter.
type SFNAPI interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// SFNStarter starts one state machine execution per job. The state machine
// waits out the retention window and then publishes the job to the archive
// topic.
type SFNStarter struct {
	client          SFNAPI
	stateMachineARN string
}

var _ Starter = (*SFNStarter)(nil)

func NewSFNStarter(client SFNAPI, stateMachineARN string) *SFNStarter {
	return &SFNStarter{client: client, stateMachineARN: stateMachineARN}
}

func (s *SFNStarter) Start(ctx context.Context, jobID string) (string, error) {
	input, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		return "", fmt.Errorf("start archival workflow for %s: %w", jobID, err)
	}

	// Execution names must be unique within the state machine for 90 days;
	// redeliveries get fresh names and rely on the record's CAS guards.
	out, err := s.client.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(s.stateMachineARN),
		Name:            aws.String("archive-" + jobID + "-" + uuid.NewString()[:8]),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return "", fmt.Errorf("start archival workflow for %s: %w", jobID, err)
	}
	return aws.ToString(out.ExecutionArn), nil
}
