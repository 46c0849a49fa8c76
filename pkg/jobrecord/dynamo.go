package jobrecord

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore implements Store on a DynamoDB table keyed by job_id with a
// secondary index on user_id.
type DynamoStore struct {
	client    DynamoAPI
	table     string
	userIndex string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a store over the given table and user-id index.
func NewDynamoStore(client DynamoAPI, table, userIndex string) *DynamoStore {
	return &DynamoStore{client: client, table: table, userIndex: userIndex}
}

func (s *DynamoStore) key(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"job_id": &types.AttributeValueMemberS{Value: jobID},
	}
}

func (s *DynamoStore) wrap(op, jobID string, err error) error {
	return &StoreError{Op: op, Table: s.table, JobID: jobID, Err: err}
}

// Create inserts the record, guarding against duplicate job ids.
func (s *DynamoStore) Create(ctx context.Context, rec *JobRecord) error {
	if rec == nil || rec.JobID == "" {
		return s.wrap("Create", "", errors.New("job_id is required"))
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return s.wrap("Create", rec.JobID, fmt.Errorf("marshal record: %w", err))
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("job_id"))).
		Build()
	if err != nil {
		return s.wrap("Create", rec.JobID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return s.wrap("Create", rec.JobID, ErrAlreadyExists)
		}
		return s.wrap("Create", rec.JobID, err)
	}
	return nil
}

// Get reads the record with a consistent read so workers never act on a
// stale view of the coordination fields.
func (s *DynamoStore) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.wrap("Get", jobID, err)
	}
	if len(out.Item) == 0 {
		return nil, s.wrap("Get", jobID, ErrNotFound)
	}

	var rec JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, s.wrap("Get", jobID, fmt.Errorf("unmarshal record: %w", err))
	}
	return &rec, nil
}

// QueryByUser pages through the user-id secondary index.
func (s *DynamoStore) QueryByUser(ctx context.Context, userID string) ([]JobRecord, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("user_id").Equal(expression.Value(userID))).
		Build()
	if err != nil {
		return nil, s.wrap("QueryByUser", "", err)
	}

	var records []JobRecord
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			IndexName:                 aws.String(s.userIndex),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, s.wrap("QueryByUser", "", err)
		}

		var page []JobRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, s.wrap("QueryByUser", "", fmt.Errorf("unmarshal records: %w", err))
		}
		records = append(records, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return records, nil
}

// Transition performs the compare-and-set status update. A conditional check
// failure is returned as TransitionConflict, never as an error.
func (s *DynamoStore) Transition(ctx context.Context, jobID string, expected Status, change Change) (TransitionResult, error) {
	if !expected.CanAdvanceTo(change.Status) {
		return TransitionConflict, s.wrap("Transition", jobID,
			fmt.Errorf("invalid transition %s -> %s", expected, change.Status))
	}

	update := expression.Set(expression.Name("job_status"), expression.Value(change.Status))
	if change.ResultLocator != nil {
		update = update.Set(expression.Name("result_locator"), expression.Value(change.ResultLocator))
	}
	if change.LogLocator != nil {
		update = update.Set(expression.Name("log_locator"), expression.Value(change.LogLocator))
	}
	if change.CompleteTime != nil {
		update = update.Set(expression.Name("complete_time"), expression.Value(change.CompleteTime.Unix()))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name("job_status").Equal(expression.Value(expected))).
		Build()
	if err != nil {
		return TransitionConflict, s.wrap("Transition", jobID, err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(jobID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return TransitionConflict, nil
		}
		return TransitionConflict, s.wrap("Transition", jobID, err)
	}
	return TransitionApplied, nil
}

// SetFields writes coordination fields outside the status lattice.
func (s *DynamoStore) SetFields(ctx context.Context, jobID string, fields map[FieldName]string) error {
	if len(fields) == 0 {
		return nil
	}
	names := make([]FieldName, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	if err := checkFieldNames(names); err != nil {
		return s.wrap("SetFields", jobID, err)
	}

	var update expression.UpdateBuilder
	for n, v := range fields {
		update = update.Set(expression.Name(string(n)), expression.Value(v))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("job_id"))).
		Build()
	if err != nil {
		return s.wrap("SetFields", jobID, err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(jobID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return s.wrap("SetFields", jobID, ErrNotFound)
		}
		return s.wrap("SetFields", jobID, err)
	}
	return nil
}

// ClearFields removes coordination fields outside the status lattice.
func (s *DynamoStore) ClearFields(ctx context.Context, jobID string, names ...FieldName) error {
	if len(names) == 0 {
		return nil
	}
	if err := checkFieldNames(names); err != nil {
		return s.wrap("ClearFields", jobID, err)
	}

	var update expression.UpdateBuilder
	for _, n := range names {
		update = update.Remove(expression.Name(string(n)))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("job_id"))).
		Build()
	if err != nil {
		return s.wrap("ClearFields", jobID, err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(jobID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return s.wrap("ClearFields", jobID, ErrNotFound)
		}
		return s.wrap("ClearFields", jobID, err)
	}
	return nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
