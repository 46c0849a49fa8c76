package jobrecord

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDynamo returns canned responses/errors without touching AWS.
type stubDynamo struct {
	putErr    error
	updateErr error
	updates   []*dynamodb.UpdateItemInput
}

func (s *stubDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if s.putErr != nil {
		return nil, s.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (s *stubDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (s *stubDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func (s *stubDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	s.updates = append(s.updates, params)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func TestDynamoTransitionConflictIsNotAnError(t *testing.T) {
	stub := &stubDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoStore(stub, "jobs", "user_id-index")

	res, err := store.Transition(context.Background(), "j1", StatusPending, Change{Status: StatusRunning})
	require.NoError(t, err)
	assert.Equal(t, TransitionConflict, res)
}

func TestDynamoTransitionOtherErrorsSurface(t *testing.T) {
	stub := &stubDynamo{updateErr: errors.New("throughput exceeded")}
	store := NewDynamoStore(stub, "jobs", "user_id-index")

	_, err := store.Transition(context.Background(), "j1", StatusPending, Change{Status: StatusRunning})
	require.Error(t, err)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Transition", se.Op)
	assert.Equal(t, "j1", se.JobID)
}

func TestDynamoTransitionRejectsBackwardMove(t *testing.T) {
	stub := &stubDynamo{}
	store := NewDynamoStore(stub, "jobs", "user_id-index")

	_, err := store.Transition(context.Background(), "j1", StatusCompleted, Change{Status: StatusRunning})
	require.Error(t, err)
	assert.Empty(t, stub.updates, "backward transition must never reach the table")
}

func TestDynamoCreateDuplicate(t *testing.T) {
	stub := &stubDynamo{putErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoStore(stub, "jobs", "user_id-index")

	err := store.Create(context.Background(), newTestRecord("j1", "u1"))
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))
}

func TestDynamoGetMissing(t *testing.T) {
	store := NewDynamoStore(&stubDynamo{}, "jobs", "user_id-index")

	_, err := store.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDynamoSetFieldsGuard(t *testing.T) {
	stub := &stubDynamo{}
	store := NewDynamoStore(stub, "jobs", "user_id-index")

	err := store.SetFields(context.Background(), "j1", map[FieldName]string{FieldName("job_status"): "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGuardedField)
	assert.Empty(t, stub.updates)
}
