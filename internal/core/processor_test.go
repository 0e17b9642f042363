package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"sar-colorizer/internal/database"
	"sar-colorizer/internal/messaging"
	"sar-colorizer/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTask struct {
	queue   string
	payload []byte

	mu       sync.Mutex
	acked    bool
	nacked   bool
	requeued bool
	rejected bool
}

func (t *recordingTask) Type() string    { return t.queue }
func (t *recordingTask) Payload() []byte { return t.payload }

func (t *recordingTask) Ack() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acked = true
	return nil
}

func (t *recordingTask) Nack() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nacked = true
	return nil
}

func (t *recordingTask) Requeue() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requeued = true
	return nil
}

func (t *recordingTask) Reject() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejected = true
	return nil
}

func TestProcessTaskAcknowledgement(t *testing.T) {
	env := newTestEnv(t, RelayConfig{})
	proc := NewTaskProcessor(env.relay, env.queue, env.queue, 1, 0)
	ctx := context.Background()

	malformed := &recordingTask{queue: messaging.ColorizeQueue, payload: []byte("{not json")}
	proc.ProcessTask(ctx, malformed)
	assert.True(t, malformed.rejected)

	unknown := &recordingTask{queue: "other_queue", payload: []byte(`{"JobId":"x"}`)}
	proc.ProcessTask(ctx, unknown)
	assert.True(t, unknown.rejected)

	missing := &recordingTask{queue: messaging.ColorizeQueue, payload: []byte(`{"JobId":"missing-job"}`)}
	proc.ProcessTask(ctx, missing)
	assert.True(t, missing.nacked)

	jobId, err := env.relay.Submit(ctx, UploadInput{Name: "sar.png", MimeType: "image/png", Body: strings.NewReader("sar")})
	require.NoError(t, err)
	<-env.queue.Tasks()

	env.model.artifacts = map[string][]byte{"/out/sar.png": []byte("colorized")}
	ok := &recordingTask{queue: messaging.ColorizeQueue, payload: []byte(`{"JobId":"` + jobId + `"}`)}
	proc.ProcessTask(ctx, ok)
	assert.True(t, ok.acked)
}

func TestTaskProcessorRunsQueuedJobs(t *testing.T) {
	env := newTestEnv(t, RelayConfig{})
	env.model.artifacts = map[string][]byte{"/out/sar.png": []byte("colorized")}
	proc := NewTaskProcessor(env.relay, env.queue, env.queue, 3, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proc.Start(ctx) }()

	var ids []string
	for i := 0; i < 5; i++ {
		jobId, err := env.relay.Submit(ctx, UploadInput{Name: "sar.png", MimeType: "image/png", Body: strings.NewReader("sar")})
		require.NoError(t, err)
		ids = append(ids, jobId)
	}

	for _, jobId := range ids {
		require.Eventually(t, func() bool {
			status, err := env.svc.GetStatus(context.Background(), jobId)
			return err == nil && status.Status == api.StatusCompleted
		}, 5*time.Second, 20*time.Millisecond)
	}
	assert.Empty(t, env.store.Keys(uploadBucket))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("task processor did not stop")
	}
}

func TestProcessTaskDropsDuplicateOfInFlightJob(t *testing.T) {
	env := newTestEnv(t, RelayConfig{})
	proc := NewTaskProcessor(env.relay, env.queue, env.queue, 1, 0)
	ctx := context.Background()

	jobId, err := env.relay.Submit(ctx, UploadInput{Name: "sar.png", MimeType: "image/png", Body: strings.NewReader("sar")})
	require.NoError(t, err)
	<-env.queue.Tasks()

	claimed, err := proc.inFlight.TryAdd(jobId)
	require.NoError(t, err)
	require.True(t, claimed)

	duplicate := &recordingTask{queue: messaging.ColorizeQueue, payload: []byte(`{"JobId":"` + jobId + `"}`)}
	proc.ProcessTask(ctx, duplicate)
	assert.True(t, duplicate.acked)
	assert.Zero(t, env.model.callCount())

	status, err := env.svc.GetStatus(ctx, jobId)
	require.NoError(t, err)
	assert.Equal(t, api.StatusProcessing, status.Status)
}

func TestTaskProcessorFinishesInFlightJobOnShutdown(t *testing.T) {
	env := newTestEnv(t, RelayConfig{})
	env.model.artifacts = map[string][]byte{"/out/sar.png": []byte("colorized")}
	started := make(chan struct{})
	release := make(chan struct{})
	env.model.gate = func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	proc := NewTaskProcessor(env.relay, env.queue, env.queue, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proc.Start(ctx) }()

	jobId, err := env.relay.Submit(context.Background(), UploadInput{Name: "sar.png", MimeType: "image/png", Body: strings.NewReader("sar")})
	require.NoError(t, err)

	<-started
	cancel()

	select {
	case <-done:
		t.Fatal("task processor returned while a job was still running")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Len(t, env.store.Keys(uploadBucket), 1, "the upload survives the shutdown signal")

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("task processor did not stop")
	}

	status, err := env.svc.GetStatus(context.Background(), jobId)
	require.NoError(t, err)
	assert.Equal(t, api.StatusCompleted, status.Status)
	assert.Empty(t, env.store.Keys(uploadBucket))
}

func TestProcessTaskRequeuesInterruptedJob(t *testing.T) {
	env := newTestEnv(t, RelayConfig{})
	env.model.gate = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	proc := NewTaskProcessor(env.relay, env.queue, env.queue, 1, 50*time.Millisecond)

	jobId, err := env.relay.Submit(context.Background(), UploadInput{Name: "sar.png", MimeType: "image/png", Body: strings.NewReader("sar")})
	require.NoError(t, err)
	<-env.queue.Tasks()

	task := &recordingTask{queue: messaging.ColorizeQueue, payload: []byte(`{"JobId":"` + jobId + `"}`)}
	proc.ProcessTask(context.Background(), task)
	assert.True(t, task.requeued)
	assert.False(t, task.nacked)

	job, err := env.jobs.GetJob(context.Background(), jobId)
	require.NoError(t, err)
	assert.Equal(t, database.JobPending, job.Status)
	assert.Len(t, env.store.Keys(uploadBucket), 1)
	assert.Zero(t, proc.inFlight.Len())
}

func TestProcessTaskRequeuesWhenAtCapacity(t *testing.T) {
	env := newTestEnv(t, RelayConfig{})
	proc := NewTaskProcessor(env.relay, env.queue, env.queue, 1, 0)

	claimed, err := proc.inFlight.TryAdd("other-job")
	require.NoError(t, err)
	require.True(t, claimed)

	task := &recordingTask{queue: messaging.ColorizeQueue, payload: []byte(`{"JobId":"next-job"}`)}
	proc.ProcessTask(context.Background(), task)
	assert.True(t, task.requeued)
	assert.False(t, task.acked)
	assert.Zero(t, env.model.callCount())
}
