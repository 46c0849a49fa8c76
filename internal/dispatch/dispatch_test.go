package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tideline/tideline/pkg/jobrecord"
	"github.com/tideline/tideline/pkg/objectstore"
	"github.com/tideline/tideline/pkg/queue"
	"github.com/tideline/tideline/pkg/task"
)

type fakeHot struct {
	objects     map[string][]byte
	downloadErr error
}

func (f *fakeHot) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if b, ok := f.objects[bucket+"/"+key]; ok {
		return b, nil
	}
	return nil, objectstore.ErrNotFound
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
	if f.downloadErr != nil {
		return f.downloadErr
	}
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return objectstore.ErrNotFound
	}
	return os.WriteFile(localPath, b, 0o644)
}

func (f *fakeHot) Upload(ctx context.Context, bucket, key, localPath string) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = b
	return nil
}

type fakeHandle struct {
	jobID  string
	runErr error
}

func (h *fakeHandle) JobID() string { return h.jobID }
func (h *fakeHandle) Wait() error   { return h.runErr }

type fakeLauncher struct {
	launchErr error
	runErr    error
	launched  []task.Spec
}

func (l *fakeLauncher) Launch(ctx context.Context, spec task.Spec) (task.Handle, error) {
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.launched = append(l.launched, spec)
	return &fakeHandle{jobID: spec.JobID, runErr: l.runErr}, nil
}

type fakeFinalizer struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (f *fakeFinalizer) Finalize(ctx context.Context, jobID string, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
	f.errs = append(f.errs, runErr)
	return nil
}

const submissionBody = `{"job_id":"j1","user_id":"u1","input_file_name":"sample.vcf","input_bucket":"inputs","input_key":"up/u1/j1~sample.vcf","tier":"free"}`

func newTestHandler(t *testing.T, hot *fakeHot, launcher *fakeLauncher) (*Handler, *jobrecord.MemStore, *fakeFinalizer) {
	t.Helper()
	records := jobrecord.NewMemStore()
	fin := &fakeFinalizer{}
	h := NewHandler(records, hot, task.Scratch{Root: t.TempDir()}, launcher, fin, zap.NewNop())
	return h, records, fin
}

func TestDispatchHappyPath(t *testing.T) {
	hot := &fakeHot{objects: map[string][]byte{"inputs/up/u1/j1~sample.vcf": []byte("variants")}}
	launcher := &fakeLauncher{}
	h, records, fin := newTestHandler(t, hot, launcher)

	disp, err := h.Handle(context.Background(), queue.Message{ID: "m1", Body: []byte(submissionBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)

	rec, err := records.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, jobrecord.StatusRunning, rec.Status)
	assert.Equal(t, "u1", rec.UserID)

	require.Len(t, launcher.launched, 1)
	staged, err := os.ReadFile(launcher.launched[0].InputPath)
	require.NoError(t, err)
	assert.Equal(t, "variants", string(staged))

	h.Drain()
	assert.Equal(t, []string{"j1"}, fin.calls)
	assert.Equal(t, []error{nil}, fin.errs)
}

func TestDispatchMalformedEventIsPoison(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeHot{objects: map[string][]byte{}}, &fakeLauncher{})

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(`{"job_id":"j1"}`)})
	assert.Equal(t, queue.Ack, disp)
	require.Error(t, err)
}

func TestDispatchDuplicateDelivery(t *testing.T) {
	launcher := &fakeLauncher{}
	h, records, _ := newTestHandler(t, &fakeHot{objects: map[string][]byte{}}, launcher)
	require.NoError(t, records.Create(context.Background(), &jobrecord.JobRecord{
		JobID: "j1", UserID: "u1", InputFileName: "sample.vcf", Status: jobrecord.StatusRunning,
	}))

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(submissionBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)
	assert.Empty(t, launcher.launched, "a job past PENDING must not launch again")
}

func TestDispatchMissingInputFailsJob(t *testing.T) {
	h, records, _ := newTestHandler(t, &fakeHot{objects: map[string][]byte{}}, &fakeLauncher{})

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(submissionBody)})
	assert.Equal(t, queue.Ack, disp)
	require.Error(t, err)

	rec, err := records.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, jobrecord.StatusFailed, rec.Status)
	assert.NotZero(t, rec.CompleteTime)
}

func TestDispatchTransientDownloadFailureRetries(t *testing.T) {
	hot := &fakeHot{objects: map[string][]byte{}, downloadErr: objectstore.ErrUnavailable}
	h, records, _ := newTestHandler(t, hot, &fakeLauncher{})

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(submissionBody)})
	assert.Equal(t, queue.Retry, disp)
	require.Error(t, err)

	rec, err := records.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, jobrecord.StatusPending, rec.Status, "job must stay dispatchable")
}

func TestDispatchLaunchFailureRetries(t *testing.T) {
	hot := &fakeHot{objects: map[string][]byte{"inputs/up/u1/j1~sample.vcf": []byte("variants")}}
	h, records, _ := newTestHandler(t, hot, &fakeLauncher{launchErr: errors.New("fork failed")})

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(submissionBody)})
	assert.Equal(t, queue.Retry, disp)
	require.Error(t, err)

	rec, err := records.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, jobrecord.StatusPending, rec.Status)
}

func TestDispatchReusesStagedInput(t *testing.T) {
	launcher := &fakeLauncher{}
	h, records, _ := newTestHandler(t, &fakeHot{objects: map[string][]byte{}}, launcher)
	require.NoError(t, records.Create(context.Background(), &jobrecord.JobRecord{
		JobID: "j1", UserID: "u1", InputFileName: "sample.vcf",
		InputLocator: jobrecord.Locator{Bucket: "inputs", Key: "up/u1/j1~sample.vcf"},
		SubmitTier:   jobrecord.TierFree, Status: jobrecord.StatusPending,
	}))

	// Stage the file as an earlier delivery would have.
	dir, err := h.scratch.EnsureJobDir("j1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.vcf"), []byte("staged"), 0o644))

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(submissionBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)
	require.Len(t, launcher.launched, 1)
	assert.Equal(t, filepath.Join(dir, "sample.vcf"), launcher.launched[0].InputPath)
}

func TestDispatchRunFailureReachesFinalizer(t *testing.T) {
	hot := &fakeHot{objects: map[string][]byte{"inputs/up/u1/j1~sample.vcf": []byte("variants")}}
	launcher := &fakeLauncher{runErr: errors.New("exit status 2")}
	h, _, fin := newTestHandler(t, hot, launcher)

	disp, err := h.Handle(context.Background(), queue.Message{Body: []byte(submissionBody)})
	require.NoError(t, err)
	assert.Equal(t, queue.Ack, disp)

	h.Drain()
	require.Len(t, fin.errs, 1)
	assert.Error(t, fin.errs[0])
}
