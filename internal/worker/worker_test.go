package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leela143-143/MUN/pkg/queue"
)

type fakeDeleter struct {
	deleted []string
	err     error
}

func (f *fakeDeleter) DeleteLogo(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func logoJob(t *testing.T, payload queue.LogoDeletePayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeLogoDelete, Payload: raw}
}

func TestProcessDeletesLogo(t *testing.T) {
	deleter := &fakeDeleter{}
	cleaner := NewLogoCleaner(deleter, nil, nil)

	key := "community-logos/abc/1-old.png"
	err := cleaner.Process(context.Background(), logoJob(t, queue.LogoDeletePayload{
		CommunityID: uuid.New(),
		Key:         key,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{key}, deleter.deleted)
}

func TestProcessSkipsEmptyKey(t *testing.T) {
	deleter := &fakeDeleter{}
	cleaner := NewLogoCleaner(deleter, nil, nil)

	err := cleaner.Process(context.Background(), logoJob(t, queue.LogoDeletePayload{CommunityID: uuid.New()}))
	require.NoError(t, err)
	assert.Empty(t, deleter.deleted)
}

func TestProcessUnknownJobType(t *testing.T) {
	cleaner := NewLogoCleaner(&fakeDeleter{}, nil, nil)
	err := cleaner.Process(context.Background(), &queue.Job{ID: "x", Type: "unknown"})
	assert.Error(t, err)
}

func TestProcessBadPayload(t *testing.T) {
	cleaner := NewLogoCleaner(&fakeDeleter{}, nil, nil)
	err := cleaner.Process(context.Background(), &queue.Job{
		ID: "x", Type: queue.JobTypeLogoDelete, Payload: json.RawMessage("not json"),
	})
	assert.Error(t, err)
}

func TestProcessPropagatesDeleteFailure(t *testing.T) {
	deleter := &fakeDeleter{err: errors.New("s3 unavailable")}
	cleaner := NewLogoCleaner(deleter, nil, nil)

	err := cleaner.Process(context.Background(), logoJob(t, queue.LogoDeletePayload{
		CommunityID: uuid.New(),
		Key:         "community-logos/abc/1-old.png",
	}))
	assert.Error(t, err)
}

// fakeJobQueue hands out the preloaded jobs, then blocks until the context is
// cancelled, like a BLPOP against an empty list.
type fakeJobQueue struct {
	jobs    []*queue.Job
	retried []*queue.Job
}

func (f *fakeJobQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	if len(f.jobs) > 0 {
		job := f.jobs[0]
		f.jobs = f.jobs[1:]
		return job, queue.QueueLogoCleanup, nil
	}
	<-ctx.Done()
	return nil, "", ctx.Err()
}

func (f *fakeJobQueue) Retry(_ context.Context, job *queue.Job) error {
	f.retried = append(f.retried, job)
	return nil
}

func runUntilDone(t *testing.T, cleaner *LogoCleaner, ctx context.Context) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		cleaner.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestRunStopsPromptlyOnCancel(t *testing.T) {
	cleaner := NewLogoCleaner(&fakeDeleter{}, &fakeJobQueue{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	// The dequeue error after cancellation must not trigger the retry
	// backoff sleep on the way out.
	start := time.Now()
	runUntilDone(t, cleaner, ctx)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunRetriesFailedJobThenStops(t *testing.T) {
	deleter := &fakeDeleter{err: errors.New("s3 unavailable")}
	bad := logoJob(t, queue.LogoDeletePayload{CommunityID: uuid.New(), Key: "community-logos/abc/1-old.png"})
	q := &fakeJobQueue{jobs: []*queue.Job{bad}}
	cleaner := NewLogoCleaner(deleter, q, nil)

	// Cancellation lands during the post-failure backoff; the worker must
	// wake from it instead of sleeping it out.
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	runUntilDone(t, cleaner, ctx)

	require.Len(t, q.retried, 1)
	assert.Equal(t, bad.ID, q.retried[0].ID)
}

func TestRunProcessesQueuedJobs(t *testing.T) {
	deleter := &fakeDeleter{}
	jobs := []*queue.Job{
		logoJob(t, queue.LogoDeletePayload{CommunityID: uuid.New(), Key: "community-logos/a/1-x.png"}),
		logoJob(t, queue.LogoDeletePayload{CommunityID: uuid.New(), Key: "community-logos/b/2-y.png"}),
	}
	q := &fakeJobQueue{jobs: jobs}
	cleaner := NewLogoCleaner(deleter, q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	runUntilDone(t, cleaner, ctx)

	assert.Equal(t, []string{"community-logos/a/1-x.png", "community-logos/b/2-y.png"}, deleter.deleted)
	assert.Empty(t, q.retried)
}
