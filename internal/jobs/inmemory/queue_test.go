package inmemory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-sankey/internal/jobs"
	"github.com/dvloznov/finance-sankey/internal/logger"
	"github.com/dvloznov/finance-sankey/internal/sankey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for a worker to write while a test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.BuildGraphJob {
	t.Helper()
	var job *jobs.BuildGraphJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", jobID, status)
	return job
}

func startQueue(t *testing.T, handler jobs.JobHandler) (*Queue, *Store) {
	t.Helper()
	store := NewStore()
	q := NewQueue(10, 2, store)
	q.SetRetryDelay(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Start(ctx, handler))
	t.Cleanup(func() {
		cancel()
		_ = q.Close()
	})
	return q, store
}

func TestQueue_CompletesJob(t *testing.T) {
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.BuildGraphJob)
		g, err := sankey.NewBuilder(j.Hub).Build(nil)
		if err != nil {
			return err
		}
		j.Graph = g
		return nil
	})

	job := &jobs.BuildGraphJob{Source: "data/jmu.json", Hub: "Campus"}
	require.NoError(t, q.PublishBuildGraph(context.Background(), job))
	require.NotEmpty(t, job.JobID)
	assert.Equal(t, 3, job.MaxRetries)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.NotNil(t, done.Graph)
	assert.Equal(t, "Campus", done.Graph.Nodes[0].Name)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	var calls int32
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("bucket temporarily unavailable")
		}
		return nil
	})

	job := &jobs.BuildGraphJob{Source: "gs://budgets/jmu.json"}
	require.NoError(t, q.PublishBuildGraph(context.Background(), job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, done.RetryCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still down")
	})

	job := &jobs.BuildGraphJob{Source: "gs://budgets/jmu.json", MaxRetries: 2}
	require.NoError(t, q.PublishBuildGraph(context.Background(), job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, done.RetryCount)
	assert.Equal(t, "still down", done.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueue_PermanentErrorsAreNotRetried(t *testing.T) {
	var calls int32
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return jobs.Permanent(&sankey.ValidationError{Index: 3, Field: "amount", Reason: "negative"})
	})

	job := &jobs.BuildGraphJob{Source: "data/bad.json"}
	require.NoError(t, q.PublishBuildGraph(context.Background(), job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 0, done.RetryCount)
	assert.Contains(t, done.Error, "record 3")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueue_PublishedJobIsNotShared(t *testing.T) {
	q, store := startQueue(t, func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.BuildGraphJob)
		g, err := sankey.NewBuilder(j.Hub).Build(nil)
		if err != nil {
			return err
		}
		j.Graph = g
		return nil
	})

	job := &jobs.BuildGraphJob{Source: "data/jmu.json"}
	require.NoError(t, q.PublishBuildGraph(context.Background(), job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.NotNil(t, done.Graph)

	// Workers never write through the caller's pointer.
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Nil(t, job.Graph)
	assert.Nil(t, job.StartedAt)
}

func TestQueue_RetryAfterStopMarksJobFailed(t *testing.T) {
	buf := &syncBuffer{}
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), logger.NewWithWriter(buf)))
	defer cancel()

	store := NewStore()
	q := NewQueue(10, 1, store)
	q.SetRetryDelay(200 * time.Millisecond)
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error {
		return errors.New("bucket temporarily unavailable")
	}))

	job := &jobs.BuildGraphJob{Source: "gs://budgets/jmu.json"}
	require.NoError(t, q.PublishBuildGraph(context.Background(), job))

	waitForStatus(t, store, job.JobID, jobs.JobStatusRetrying)
	require.NoError(t, q.Stop(context.Background()))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Contains(t, failed.Error, "bucket temporarily unavailable")
	assert.Contains(t, failed.Error, "retry not scheduled: queue is closed")
	assert.NotNil(t, failed.CompletedAt)
	assert.Contains(t, buf.String(), "Failed to enqueue job retry")
}

// flakyStore accepts new jobs but fails every later save.
type flakyStore struct {
	*Store
}

func (s flakyStore) SaveJob(ctx context.Context, job *jobs.BuildGraphJob) error {
	if job.Status != jobs.JobStatusPending {
		return errors.New("store unavailable")
	}
	return s.Store.SaveJob(ctx, job)
}

func TestQueue_LogsStoreFailures(t *testing.T) {
	buf := &syncBuffer{}
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), logger.NewWithWriter(buf)))
	defer cancel()

	var calls int32
	q := NewQueue(10, 1, flakyStore{NewStore()})
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	t.Cleanup(func() { _ = q.Close() })

	require.NoError(t, q.PublishBuildGraph(context.Background(), &jobs.BuildGraphJob{Source: "data/jmu.json"}))

	require.Eventually(t, func() bool {
		return strings.Count(buf.String(), "Failed to save job state") == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, buf.String(), "store unavailable")
}

func TestQueue_ClosedQueueRejectsJobs(t *testing.T) {
	q := NewQueue(1, 1, nil)
	require.NoError(t, q.Close())

	err := q.PublishBuildGraph(context.Background(), &jobs.BuildGraphJob{Source: "x.json"})
	assert.Error(t, err)
	assert.Error(t, q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }))
	assert.NoError(t, q.Stop(context.Background()))
}

func TestPermanent(t *testing.T) {
	base := errors.New("boom")
	err := jobs.Permanent(base)

	assert.True(t, jobs.IsPermanent(err))
	assert.True(t, errors.Is(err, base))
	assert.False(t, jobs.IsPermanent(base))
	assert.Nil(t, jobs.Permanent(nil))
}
