package coldstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/aws/smithy-go"
)

// GlacierAPI is the subset of the Glacier client used by GlacierVault.
type GlacierAPI interface {
	UploadArchive(ctx context.Context, params *glacier.UploadArchiveInput, optFns ...func(*glacier.Options)) (*glacier.UploadArchiveOutput, error)
	InitiateJob(ctx context.Context, params *glacier.InitiateJobInput, optFns ...func(*glacier.Options)) (*glacier.InitiateJobOutput, error)
	GetJobOutput(ctx context.Context, params *glacier.GetJobOutputInput, optFns ...func(*glacier.Options)) (*glacier.GetJobOutputOutput, error)
	DeleteArchive(ctx context.Context, params *glacier.DeleteArchiveInput, optFns ...func(*glacier.Options)) (*glacier.DeleteArchiveOutput, error)
}

// retrievalJobType is the Glacier job type for archive retrievals.
const retrievalJobType = "archive-retrieval"

// GlacierVault implements Vault on an AWS Glacier vault. Retrieval
// completions are announced on the configured SNS topic, which feeds the
// restore-completion queue.
type GlacierVault struct {
	client   GlacierAPI
	vault    string
	snsTopic string
}

var _ Vault = (*GlacierVault)(nil)

// NewGlacierVault creates a vault client. snsTopic may be empty to disable
// retrieval notifications (tests, local development).
func NewGlacierVault(client GlacierAPI, vault, snsTopic string) *GlacierVault {
	return &GlacierVault{client: client, vault: vault, snsTopic: snsTopic}
}

func (v *GlacierVault) wrap(op string, err error) error {
	wrapped := &VaultError{Op: op, Vault: v.vault, Err: err}

	var insufficient *types.InsufficientCapacityException
	if errors.As(err, &insufficient) {
		wrapped.Err = ErrInsufficientCapacity
		return wrapped
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		wrapped.Err = ErrNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InsufficientCapacityException":
			wrapped.Err = ErrInsufficientCapacity
		case "ResourceNotFoundException":
			wrapped.Err = ErrNotFound
		}
	}
	return wrapped
}

func (v *GlacierVault) Upload(ctx context.Context, data []byte, description string) (string, error) {
	out, err := v.client.UploadArchive(ctx, &glacier.UploadArchiveInput{
		AccountId:          aws.String("-"),
		VaultName:          aws.String(v.vault),
		ArchiveDescription: aws.String(description),
		Body:               bytes.NewReader(data),
	})
	if err != nil {
		return "", v.wrap("Upload", err)
	}
	return aws.ToString(out.ArchiveId), nil
}

func (v *GlacierVault) InitiateRetrieval(ctx context.Context, archiveID, description string, tier RetrievalTier) (string, error) {
	params := &types.JobParameters{
		Type:        aws.String(retrievalJobType),
		ArchiveId:   aws.String(archiveID),
		Description: aws.String(description),
		Tier:        aws.String(string(tier)),
	}
	if v.snsTopic != "" {
		params.SNSTopic = aws.String(v.snsTopic)
	}

	out, err := v.client.InitiateJob(ctx, &glacier.InitiateJobInput{
		AccountId:     aws.String("-"),
		VaultName:     aws.String(v.vault),
		JobParameters: params,
	})
	if err != nil {
		return "", v.wrap("InitiateRetrieval", err)
	}
	return aws.ToString(out.JobId), nil
}

func (v *GlacierVault) RetrievalOutput(ctx context.Context, retrievalID string) ([]byte, error) {
	out, err := v.client.GetJobOutput(ctx, &glacier.GetJobOutputInput{
		AccountId: aws.String("-"),
		VaultName: aws.String(v.vault),
		JobId:     aws.String(retrievalID),
	})
	if err != nil {
		return nil, v.wrap("RetrievalOutput", err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, v.wrap("RetrievalOutput", err)
	}
	return body, nil
}

func (v *GlacierVault) DeleteArchive(ctx context.Context, archiveID string) error {
	_, err := v.client.DeleteArchive(ctx, &glacier.DeleteArchiveInput{
		AccountId: aws.String("-"),
		VaultName: aws.String(v.vault),
		ArchiveId: aws.String(archiveID),
	})
	if err != nil {
		werr := v.wrap("DeleteArchive", err)
		if !IsNotFound(werr) {
			return werr
		}
	}
	return nil
}
