package queue

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/linkshelf/server/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *observability.Logger {
	log := observability.NewLogger("queue-test", "error", "text")
	log.SetOutput(io.Discard)
	return log
}

func setupBadgerQueue(t *testing.T) *BadgerQueue {
	t.Helper()

	q, err := NewBadgerQueue(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, q.Close()) })
	return q
}

func TestBadgerQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue returns nil", func(t *testing.T) {
		q := setupBadgerQueue(t)

		job, err := q.Dequeue(ctx)

		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("dequeues in due order", func(t *testing.T) {
		q := setupBadgerQueue(t)
		image := "https://example.com/a.png"

		later := NewEnrichItemDataJob("data-2", nil)
		later.NotBefore = time.Now().UTC().Add(-time.Second)
		earlier := NewEnrichItemDataJob("data-1", &image)
		earlier.NotBefore = time.Now().UTC().Add(-time.Minute)

		require.NoError(t, q.Enqueue(ctx, later))
		require.NoError(t, q.Enqueue(ctx, earlier))

		first, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "data-1", first.ItemDataID)
		require.NotNil(t, first.ImageURL)
		assert.Equal(t, image, *first.ImageURL)

		second, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, second)
		assert.Equal(t, "data-2", second.ItemDataID)

		n, err := q.Len()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("holds back jobs that are not due", func(t *testing.T) {
		q := setupBadgerQueue(t)
		job := NewEnrichItemDataJob("data-1", nil).Retry(time.Hour)

		require.NoError(t, q.Enqueue(ctx, job))

		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)

		n, err := q.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("each job is claimed once under concurrency", func(t *testing.T) {
		q := setupBadgerQueue(t)
		for i := 0; i < 20; i++ {
			require.NoError(t, q.Enqueue(ctx, NewEnrichItemDataJob("data", nil)))
		}

		var (
			mu      sync.Mutex
			claimed = map[string]int{}
			wg      sync.WaitGroup
		)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					job, err := q.Dequeue(ctx)
					if err != nil || job == nil {
						if n, _ := q.Len(); n == 0 {
							return
						}
						continue
					}
					mu.Lock()
					claimed[job.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		for id, count := range claimed {
			assert.Equal(t, 1, count, "job %s claimed more than once", id)
		}
		assert.Len(t, claimed, 20)
	})
}

func TestEnrichItemDataJob_Retry(t *testing.T) {
	image := "https://example.com/a.png"
	job := NewEnrichItemDataJob("data-1", &image)

	next := job.Retry(time.Minute)

	assert.Equal(t, 2, next.Attempt)
	assert.Equal(t, job.ItemDataID, next.ItemDataID)
	assert.Equal(t, job.ImageURL, next.ImageURL)
	assert.NotEqual(t, job.ID, next.ID)
	assert.False(t, next.Ready(time.Now()))
	assert.True(t, next.Ready(time.Now().Add(2*time.Minute)))
}

func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("LINKSHELF_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LINKSHELF_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	q, err := NewRedisQueue(addr, "linkshelf:test:"+time.Now().Format("150405.000000"), testLogger())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(ctx, NewEnrichItemDataJob("data-1", nil)))
	require.NoError(t, q.Enqueue(ctx, NewEnrichItemDataJob("data-2", nil).Retry(time.Hour)))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "data-1", job.ItemDataID)

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}
