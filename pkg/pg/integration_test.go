package pg_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/pg"
	"github.com/dmitrymomot/statekit/pkg/queue"
)

// connect returns a pool for PG_CONN_URL or skips the test.
func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL is not set")
	}

	pool, err := pg.Connect(t.Context(), pg.Config{
		ConnectionString: url,
		MaxOpenConns:     10,
		RetryAttempts:    1,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, pg.MigrateQueue(t.Context(), pool, log))

	return pool
}

func createDocuments(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	table := "doc_" + uuid.NewString()[:8]
	_, err := pool.Exec(t.Context(), `CREATE TABLE `+table+` (id TEXT PRIMARY KEY, status TEXT NOT NULL, hits INT NOT NULL DEFAULT 0)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE `+table)
	})
	return table
}

func TestRowLockerIntegration(t *testing.T) {
	pool := connect(t)
	table := createDocuments(t, pool)

	_, err := pool.Exec(t.Context(), `INSERT INTO `+table+` (id, status) VALUES ('d1', 'draft')`)
	require.NoError(t, err)

	locker, err := pg.NewRowLocker(pool, pg.WithTable("document", table), pg.WithLockTimeout(5*time.Second))
	require.NoError(t, err)

	t.Run("serializes read-modify-write", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := locker.WithLock(t.Context(), "document", "d1", func(ctx context.Context) error {
					var hits int
					q := pg.Conn(ctx, pool)
					if err := q.QueryRow(ctx, `SELECT hits FROM `+table+` WHERE id = 'd1'`).Scan(&hits); err != nil {
						return err
					}
					_, err := q.Exec(ctx, `UPDATE `+table+` SET hits = $1 WHERE id = 'd1'`, hits+1)
					return err
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		var hits int
		require.NoError(t, pool.QueryRow(t.Context(), `SELECT hits FROM `+table+` WHERE id = 'd1'`).Scan(&hits))
		assert.Equal(t, 10, hits)
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		err := locker.WithLock(t.Context(), "document", "d1", func(ctx context.Context) error {
			_, err := pg.Conn(ctx, pool).Exec(ctx, `UPDATE `+table+` SET status = 'lost' WHERE id = 'd1'`)
			require.NoError(t, err)
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		var status string
		require.NoError(t, pool.QueryRow(t.Context(), `SELECT status FROM `+table+` WHERE id = 'd1'`).Scan(&status))
		assert.Equal(t, "draft", status)
	})

	t.Run("missing row", func(t *testing.T) {
		err := locker.WithLock(t.Context(), "document", "nope", func(context.Context) error { return nil })
		assert.ErrorIs(t, err, pg.ErrEntityNotFound)
	})

	t.Run("lock timeout", func(t *testing.T) {
		short, err := pg.NewRowLocker(pool, pg.WithTable("document", table), pg.WithLockTimeout(100*time.Millisecond))
		require.NoError(t, err)

		held := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- locker.WithLock(context.Background(), "document", "d1", func(context.Context) error {
				close(held)
				<-release
				return nil
			})
		}()
		<-held

		err = short.WithLock(t.Context(), "document", "d1", func(context.Context) error { return nil })
		close(release)
		require.NoError(t, <-done)
		assert.ErrorIs(t, err, pg.ErrLockTimeout)
	})
}

func TestQueueRepositoryIntegration(t *testing.T) {
	pool := connect(t)
	repo := pg.NewQueueRepository(pool, 0)
	queueName := "it_" + uuid.NewString()[:8]

	enq, err := queue.NewEnqueuer(repo, queue.WithDefaultQueue(queueName), queue.WithDefaultMaxRetries(1))
	require.NoError(t, err)

	type payload struct {
		N int `json:"n"`
	}

	var calls atomic.Int32
	w, err := queue.NewWorker(repo, queue.WithQueues(queueName), queue.WithWorkerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	require.NoError(t, w.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, p payload) error {
		calls.Add(1)
		if p.N < 0 {
			return assert.AnError
		}
		return nil
	})))

	okID, err := enq.Enqueue(t.Context(), payload{N: 1})
	require.NoError(t, err)
	badID, err := enq.Enqueue(t.Context(), payload{N: -1}, queue.WithPriority(queue.PriorityLow))
	require.NoError(t, err)

	n, err := w.Drain(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(3), calls.Load())

	task, err := repo.Task(t.Context(), okID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusCompleted, task.Status)
	assert.NotNil(t, task.ProcessedAt)

	_, err = repo.Task(t.Context(), badID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)

	dead, err := repo.DeadTasks(t.Context(), 1000)
	require.NoError(t, err)
	var found bool
	for _, d := range dead {
		if d.TaskID == badID {
			found = true
			assert.Equal(t, int8(2), d.RetryCount)
			assert.Equal(t, assert.AnError.Error(), d.Error)
		}
	}
	assert.True(t, found, "failed task should be in the dead letter queue")
}

func TestQueueRepositoryJoinsTransaction(t *testing.T) {
	pool := connect(t)
	repo := pg.NewQueueRepository(pool, 0)
	enq, err := queue.NewEnqueuer(repo, queue.WithDefaultQueue("tx_"+uuid.NewString()[:8]))
	require.NoError(t, err)

	var id uuid.UUID
	err = pg.WithTx(t.Context(), pool, func(ctx context.Context) error {
		var err error
		id, err = enq.Enqueue(ctx, map[string]int{"n": 1}, queue.WithTaskName("tx.task"))
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = repo.Task(t.Context(), id)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}
