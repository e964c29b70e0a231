package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/queue"
)

type mockEnqueuerRepo struct {
	createFunc func(ctx context.Context, task *queue.Task) error
	tasks      []*queue.Task
}

func (m *mockEnqueuerRepo) CreateTask(ctx context.Context, task *queue.Task) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, task)
	}
	m.tasks = append(m.tasks, task)
	return nil
}

type enqueueTestPayload struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

func TestNewEnqueuer(t *testing.T) {
	t.Parallel()

	t.Run("nil repository", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
		assert.Nil(t, enqueuer)
	})

	t.Run("defaults applied to tasks", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo,
			queue.WithDefaultQueue("transitions"),
			queue.WithDefaultPriority(queue.PriorityHigh),
			queue.WithDefaultMaxRetries(5))
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "hi"})
		require.NoError(t, err)
		require.Len(t, repo.tasks, 1)

		task := repo.tasks[0]
		assert.Equal(t, "transitions", task.Queue)
		assert.Equal(t, queue.PriorityHigh, task.Priority)
		assert.Equal(t, int8(5), task.MaxRetries)
		assert.Equal(t, queue.TaskStatusPending, task.Status)
	})
}

func TestEnqueuer_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("returns the stored task id", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		id, err := enqueuer.Enqueue(context.Background(), enqueueTestPayload{Message: "test", Value: 42})
		require.NoError(t, err)
		require.Len(t, repo.tasks, 1)

		task := repo.tasks[0]
		assert.Equal(t, id, task.ID)
		assert.NotEqual(t, uuid.Nil, id)
		assert.Equal(t, "queue_test.enqueueTestPayload", task.TaskName)
		assert.Equal(t, queue.DefaultQueueName, task.Queue)
		assert.Equal(t, int8(3), task.MaxRetries)

		var decoded enqueueTestPayload
		require.NoError(t, json.Unmarshal(task.Payload, &decoded))
		assert.Equal(t, enqueueTestPayload{Message: "test", Value: 42}, decoded)
	})

	t.Run("nil payload", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(&mockEnqueuerRepo{})
		require.NoError(t, err)

		id, err := enqueuer.Enqueue(context.Background(), nil)
		assert.ErrorIs(t, err, queue.ErrPayloadNil)
		assert.Equal(t, uuid.Nil, id)
	})

	t.Run("invalid priority", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(&mockEnqueuerRepo{})
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{}, queue.WithPriority(queue.Priority(101)))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)
	})

	t.Run("unmarshalable payload", func(t *testing.T) {
		t.Parallel()

		enqueuer, err := queue.NewEnqueuer(&mockEnqueuerRepo{})
		require.NoError(t, err)

		_, err = enqueuer.Enqueue(context.Background(), struct{ Ch chan int }{Ch: make(chan int)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal payload")
	})

	t.Run("repository error is wrapped", func(t *testing.T) {
		t.Parallel()

		repoErr := errors.New("database down")
		enqueuer, err := queue.NewEnqueuer(&mockEnqueuerRepo{
			createFunc: func(context.Context, *queue.Task) error { return repoErr },
		})
		require.NoError(t, err)

		id, err := enqueuer.Enqueue(context.Background(), enqueueTestPayload{})
		assert.ErrorIs(t, err, repoErr)
		assert.Equal(t, uuid.Nil, id)
	})

	t.Run("options override defaults", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		at := time.Now().Add(time.Hour).Truncate(time.Second)
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{},
			queue.WithQueue("urgent"),
			queue.WithPriority(queue.PriorityMax),
			queue.WithMaxRetries(0),
			queue.WithTaskName("custom.task"),
			queue.WithDelay(time.Minute),
			queue.WithScheduledAt(at))
		require.NoError(t, err)

		task := repo.tasks[0]
		assert.Equal(t, "urgent", task.Queue)
		assert.Equal(t, queue.PriorityMax, task.Priority)
		assert.Equal(t, int8(0), task.MaxRetries)
		assert.Equal(t, "custom.task", task.TaskName)
		assert.True(t, task.ScheduledAt.Equal(at))
	})

	t.Run("delay postpones the task", func(t *testing.T) {
		t.Parallel()

		repo := &mockEnqueuerRepo{}
		enqueuer, err := queue.NewEnqueuer(repo)
		require.NoError(t, err)

		before := time.Now()
		_, err = enqueuer.Enqueue(context.Background(), enqueueTestPayload{}, queue.WithDelay(time.Minute))
		require.NoError(t, err)

		assert.True(t, repo.tasks[0].ScheduledAt.After(before.Add(59*time.Second)))
	})
}

func TestPriority_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority queue.Priority
		valid    bool
	}{
		{"min", queue.PriorityMin, true},
		{"default", queue.PriorityDefault, true},
		{"max", queue.PriorityMax, true},
		{"below min", queue.Priority(-1), false},
		{"above max", queue.Priority(101), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.valid, tt.priority.Valid())
		})
	}
}
