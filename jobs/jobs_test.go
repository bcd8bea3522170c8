package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	return NewStore(store.NewMemory()), context.Background()
}

func TestCreateAndGet(t *testing.T) {
	s, ctx := newTestStore(t)

	job, err := s.Create(ctx, models.JobTypeCrawl, "https://example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobPending, job.Status)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobTypeCrawl, got.Type)
	assert.Equal(t, "https://example.com", got.URL)
	assert.Equal(t, models.JobPending, got.Status)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestGetMissing(t *testing.T) {
	s, ctx := newTestStore(t)
	_, err := s.Get(ctx, "no-such-job")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Status(ctx, "no-such-job")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycle(t *testing.T) {
	s, ctx := newTestStore(t)
	job, err := s.Create(ctx, models.JobTypeCrawl, "https://example.com")
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx, job.ID))
	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	// A running job cannot start twice.
	assert.ErrorIs(t, s.Start(ctx, job.ID), ErrTerminal)

	require.NoError(t, s.Complete(ctx, job.ID))
	got, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestFail(t *testing.T) {
	s, ctx := newTestStore(t)
	job, err := s.Create(ctx, models.JobTypeCrawl, "https://example.com")
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx, job.ID))

	require.NoError(t, s.Fail(ctx, job.ID, "seed unreachable"))
	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Equal(t, "seed unreachable", got.Error)
}

func TestCancel(t *testing.T) {
	s, ctx := newTestStore(t)
	job, err := s.Create(ctx, models.JobTypeCrawl, "https://example.com")
	require.NoError(t, err)

	// Pending jobs cancel, and stay cancelled through Start and Complete.
	require.NoError(t, s.Cancel(ctx, job.ID))
	assert.ErrorIs(t, s.Start(ctx, job.ID), ErrTerminal)
	require.NoError(t, s.Complete(ctx, job.ID))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status)

	// Cancelling a finished job is rejected.
	done, err := s.Create(ctx, models.JobTypeCrawl, "https://example.com")
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx, done.ID))
	require.NoError(t, s.Complete(ctx, done.ID))
	assert.ErrorIs(t, s.Cancel(ctx, done.ID), ErrTerminal)
}

func TestProgress(t *testing.T) {
	s, ctx := newTestStore(t)
	job, err := s.Create(ctx, models.JobTypeCrawl, "https://example.com")
	require.NoError(t, err)

	require.NoError(t, s.SetTotal(ctx, job.ID, 50))
	n, err := s.IncrCompleted(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrCompleted(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.TotalPages)
	assert.Equal(t, 2, got.CompletedPages)
}

func TestResults(t *testing.T) {
	s, ctx := newTestStore(t)
	job, err := s.Create(ctx, models.JobTypeCrawl, "https://example.com")
	require.NoError(t, err)

	for _, u := range []string{"https://example.com/a", "https://example.com/b"} {
		require.NoError(t, s.AppendResult(ctx, job.ID, &models.JobResult{
			URL:      u,
			Markdown: "# " + u,
			Metadata: models.PageMetadata{SourceURL: u, WordCount: 2},
		}))
	}

	count, err := s.ResultCount(ctx, job.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	results, err := s.Results(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://example.com/a", results[0].URL)
	assert.Equal(t, "https://example.com/b", results[1].URL)
	assert.Equal(t, 2, results[0].Metadata.WordCount)
}

func TestDelete(t *testing.T) {
	s, ctx := newTestStore(t)
	job, err := s.Create(ctx, models.JobTypeCrawl, "https://example.com")
	require.NoError(t, err)
	require.NoError(t, s.AppendResult(ctx, job.ID, &models.JobResult{URL: "https://example.com/a"}))

	require.NoError(t, s.Delete(ctx, job.ID))
	_, err = s.Get(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	count, err := s.ResultCount(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
