package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/accounts"
	"github.com/tideline/tideline/pkg/coldstore"
	"github.com/tideline/tideline/pkg/jobrecord"
	"github.com/tideline/tideline/pkg/objectstore"
	"github.com/tideline/tideline/pkg/queue"
)

type fakeHot struct {
	objects map[string][]byte
	getErr  error
}

func (f *fakeHot) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return b, nil
}

func (f *fakeHot) Put(ctx context.Context, bucket, key string, body []byte) error {
	f.objects[bucket+"/"+key] = body
	return nil
}

func (f *fakeHot) Delete(ctx context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeHot) Download(ctx context.Context, bucket, key, localPath string) error {
	return errors.New("not used")
}

func (f *fakeHot) Upload(ctx context.Context, bucket, key, localPath string) error {
	return errors.New("not used")
}

type fakeVault struct {
	archives  map[string][]byte
	nextID    string
	uploadErr error
}

func (f *fakeVault) Upload(ctx context.Context, data []byte, description string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.archives[f.nextID] = data
	return f.nextID, nil
}

func (f *fakeVault) InitiateRetrieval(ctx context.Context, archiveID, description string, tier coldstore.RetrievalTier) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeVault) RetrievalOutput(ctx context.Context, retrievalID string) ([]byte, error) {
	return nil, errors.New("not used")
}

func (f *fakeVault) DeleteArchive(ctx context.Context, archiveID string) error {
	delete(f.archives, archiveID)
	return nil
}

type fakeResolver struct {
	tier jobrecord.Tier
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID string) (jobrecord.Tier, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.tier, nil
}

const triggerBody = `{"job_id":"j1"}`

func seedCompleted(t *testing.T, records *jobrecord.MemStore, archiveID string) {
	t.Helper()
	require.NoError(t, records.Create(context.Background(), &jobrecord.JobRecord{
		JobID: "j1", UserID: "u1", InputFileName: "sample.vcf",
		SubmitTier: jobrecord.TierFree, Status: jobrecord.StatusCompleted,
		ResultLocator:   &jobrecord.Locator{Bucket: "results", Key: "runs/u1/j1~sample.annot.vcf"},
		ExecutionHandle: "exec-j1",
	}))
	if archiveID != "" {
		require.NoError(t, records.SetFields(context.Background(), "j1",
			map[jobrecord.FieldName]string{jobrecord.FieldArchiveID: archiveID}))
	}
}

func TestArchiveMovesFreeTierResult(t *testing.T) {
	records := jobrecord.NewMemStore()
	seedCompleted(t, records, "")
	hot := &fakeHot{objects: map[string][]byte{"results/runs/u1/j1~sample.annot.vcf": []byte("annotated")}}
	vault := &fakeVault{archives: map[string][]byte{}, nextID: "arch-1"}
	h := NewHandler(records, hot, vault, &fakeResolver{tier: jobrecord.TierFree}, zap.NewNop())

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(triggerBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)

	assert.Equal(t, []byte("annotated"), vault.archives["arch-1"])
	assert.Empty(t, hot.objects, "hot copy must be gone after the move")

	rec, err := records.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "arch-1", rec.ArchiveID)
	assert.Empty(t, rec.ExecutionHandle)
}

func TestArchiveSkipsPremiumAtMoveTime(t *testing.T) {
	records := jobrecord.NewMemStore()
	seedCompleted(t, records, "")
	hot := &fakeHot{objects: map[string][]byte{"results/runs/u1/j1~sample.annot.vcf": []byte("annotated")}}
	vault := &fakeVault{archives: map[string][]byte{}, nextID: "arch-1"}
	h := NewHandler(records, hot, vault, &fakeResolver{tier: jobrecord.TierPremium}, zap.NewNop())

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(triggerBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)

	assert.Empty(t, vault.archives)
	assert.Len(t, hot.objects, 1, "premium results stay hot")

	rec, err := records.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Empty(t, rec.ArchiveID)
	assert.Empty(t, rec.ExecutionHandle, "a skipped move still retires the workflow handle")
}

func TestArchiveResumesAfterRecordedUpload(t *testing.T) {
	records := jobrecord.NewMemStore()
	seedCompleted(t, records, "arch-1")
	hot := &fakeHot{objects: map[string][]byte{"results/runs/u1/j1~sample.annot.vcf": []byte("annotated")}}
	vault := &fakeVault{archives: map[string][]byte{"arch-1": []byte("annotated")}, nextID: "arch-2"}
	h := NewHandler(records, hot, vault, &fakeResolver{tier: jobrecord.TierFree}, zap.NewNop())

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(triggerBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)

	_, hasSecond := vault.archives["arch-2"]
	assert.False(t, hasSecond, "an already-recorded upload must not repeat")
	assert.Empty(t, hot.objects)
}

func TestArchiveResolverFailureRetries(t *testing.T) {
	records := jobrecord.NewMemStore()
	seedCompleted(t, records, "")
	h := NewHandler(records, &fakeHot{objects: map[string][]byte{}},
		&fakeVault{archives: map[string][]byte{}}, &fakeResolver{err: errors.New("db down")}, zap.NewNop())

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(triggerBody)})
	assert.Equal(t, queue.Retry, disp)
	require.Error(t, err)
}

func TestArchiveUnknownUserGetsFreeRetention(t *testing.T) {
	records := jobrecord.NewMemStore()
	seedCompleted(t, records, "")
	hot := &fakeHot{objects: map[string][]byte{"results/runs/u1/j1~sample.annot.vcf": []byte("annotated")}}
	vault := &fakeVault{archives: map[string][]byte{}, nextID: "arch-1"}
	h := NewHandler(records, hot, vault, &fakeResolver{err: accounts.ErrUnknownUser}, zap.NewNop())

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(triggerBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)
	assert.Contains(t, vault.archives, "arch-1")
}

func TestArchiveUnknownJobIsPoison(t *testing.T) {
	h := NewHandler(jobrecord.NewMemStore(), &fakeHot{objects: map[string][]byte{}},
		&fakeVault{archives: map[string][]byte{}}, &fakeResolver{tier: jobrecord.TierFree}, zap.NewNop())

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(triggerBody)})
	assert.Equal(t, queue.Ack, disp)
	require.Error(t, err)
}

func TestArchiveFailedJobHasNothingToMove(t *testing.T) {
	records := jobrecord.NewMemStore()
	require.NoError(t, records.Create(context.Background(), &jobrecord.JobRecord{
		JobID: "j1", UserID: "u1", Status: jobrecord.StatusFailed, ExecutionHandle: "exec-j1",
	}))
	vault := &fakeVault{archives: map[string][]byte{}}
	h := NewHandler(records, &fakeHot{objects: map[string][]byte{}}, vault,
		&fakeResolver{tier: jobrecord.TierFree}, zap.NewNop())

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(triggerBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)
	assert.Empty(t, vault.archives)

	rec, err := records.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Empty(t, rec.ExecutionHandle)
}

func TestArchiveMissingResultObjectIsPoison(t *testing.T) {
	records := jobrecord.NewMemStore()
	seedCompleted(t, records, "")
	h := NewHandler(records, &fakeHot{objects: map[string][]byte{}},
		&fakeVault{archives: map[string][]byte{}}, &fakeResolver{tier: jobrecord.TierFree}, zap.NewNop())

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(triggerBody)})
	assert.Equal(t, queue.Ack, disp)
	require.Error(t, err)
}
