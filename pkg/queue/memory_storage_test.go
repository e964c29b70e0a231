package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/queue"
)

func newTask(queueName string, priority queue.Priority, scheduledAt time.Time) *queue.Task {
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       queueName,
		TaskName:    "test.task",
		Payload:     []byte(`{}`),
		Status:      queue.TaskStatusPending,
		Priority:    priority,
		MaxRetries:  1,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
}

func newStorage(t *testing.T, opts ...queue.MemoryStorageOption) *queue.MemoryStorage {
	t.Helper()
	s := queue.NewMemoryStorage(opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStorage_CreateTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStorage(t)

	task := newTask(queue.DefaultQueueName, queue.PriorityDefault, time.Now())
	require.NoError(t, s.CreateTask(ctx, task))
	assert.Error(t, s.CreateTask(ctx, task), "duplicate id")
	assert.Error(t, s.CreateTask(ctx, nil))

	stored, err := s.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)
	assert.Equal(t, 1, s.Count(queue.TaskStatusPending))

	_, err = s.Task(ctx, uuid.New())
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func TestMemoryStorage_ClaimTask(t *testing.T) {
	t.Parallel()

	t.Run("no task", func(t *testing.T) {
		t.Parallel()

		s := newStorage(t)
		task, err := s.ClaimTask(context.Background(), uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
		assert.Nil(t, task)
	})

	t.Run("priority first then schedule time", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s := newStorage(t)
		now := time.Now()

		low := newTask(queue.DefaultQueueName, queue.PriorityLow, now.Add(-3*time.Second))
		highLate := newTask(queue.DefaultQueueName, queue.PriorityHigh, now.Add(-time.Second))
		highEarly := newTask(queue.DefaultQueueName, queue.PriorityHigh, now.Add(-2*time.Second))
		for _, task := range []*queue.Task{low, highLate, highEarly} {
			require.NoError(t, s.CreateTask(ctx, task))
		}

		workerID := uuid.New()
		var order []uuid.UUID
		for range 3 {
			task, err := s.ClaimTask(ctx, workerID, []string{queue.DefaultQueueName}, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, queue.TaskStatusProcessing, task.Status)
			require.NotNil(t, task.LockedBy)
			assert.Equal(t, workerID, *task.LockedBy)
			order = append(order, task.ID)
		}
		assert.Equal(t, []uuid.UUID{highEarly.ID, highLate.ID, low.ID}, order)
	})

	t.Run("skips future and foreign queue tasks", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s := newStorage(t)
		require.NoError(t, s.CreateTask(ctx, newTask(queue.DefaultQueueName, queue.PriorityMax, time.Now().Add(time.Hour))))
		require.NoError(t, s.CreateTask(ctx, newTask("other", queue.PriorityMax, time.Now())))

		_, err := s.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
	})
}

func TestMemoryStorage_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("complete", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s := newStorage(t)
		task := newTask(queue.DefaultQueueName, queue.PriorityDefault, time.Now())
		require.NoError(t, s.CreateTask(ctx, task))

		assert.Error(t, s.CompleteTask(ctx, task.ID), "pending task cannot complete")

		_, err := s.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.ExtendLock(ctx, task.ID, time.Hour))
		require.NoError(t, s.CompleteTask(ctx, task.ID))

		stored, err := s.Task(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusCompleted, stored.Status)
		assert.NotNil(t, stored.ProcessedAt)
		assert.Nil(t, stored.LockedBy)
	})

	t.Run("fail reschedules then exhausts", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s := newStorage(t, queue.WithRetryBackoff(0))
		task := newTask(queue.DefaultQueueName, queue.PriorityDefault, time.Now())
		require.NoError(t, s.CreateTask(ctx, task))

		_, err := s.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.FailTask(ctx, task.ID, "first"))

		stored, err := s.Task(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusPending, stored.Status)
		assert.Equal(t, int8(1), stored.RetryCount)
		require.NotNil(t, stored.Error)
		assert.Equal(t, "first", *stored.Error)

		_, err = s.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.FailTask(ctx, task.ID, "second"))

		stored, err = s.Task(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusFailed, stored.Status)
	})

	t.Run("move to dlq", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s := newStorage(t)
		task := newTask(queue.DefaultQueueName, queue.PriorityDefault, time.Now())
		require.NoError(t, s.CreateTask(ctx, task))

		require.NoError(t, s.MoveToDLQ(ctx, task.ID))
		assert.ErrorIs(t, s.MoveToDLQ(ctx, task.ID), queue.ErrTaskNotFound)

		dead := s.DeadTasks()
		require.Len(t, dead, 1)
		assert.Equal(t, task.ID, dead[0].TaskID)
		assert.Equal(t, 0, s.Count(queue.TaskStatusPending))
	})
}

func TestMemoryStorage_LockExpiration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStorage(t)
	task := newTask(queue.DefaultQueueName, queue.PriorityDefault, time.Now())
	require.NoError(t, s.CreateTask(ctx, task))

	_, err := s.ClaimTask(ctx, uuid.New(), []string{queue.DefaultQueueName}, 10*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return s.Count(queue.TaskStatusPending) == 1
	}, 3*time.Second, 50*time.Millisecond)
}
