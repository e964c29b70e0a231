package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/statekit/pkg/queue"
)

const taskColumns = `id, queue, task_name, payload, status, priority, retry_count, max_retries,
	scheduled_at, locked_until, locked_by, processed_at, error, created_at`

// QueueRepository stores queue tasks in PostgreSQL. It implements
// queue.EnqueuerRepository and queue.WorkerRepository.
//
// CreateTask joins the transaction carried by ctx, so a task scheduled while
// an entity row is locked is committed together with the entity change.
type QueueRepository struct {
	pool    *pgxpool.Pool
	backoff time.Duration
}

// NewQueueRepository creates a repository; the n-th retry of a failed task
// waits n*backoff.
func NewQueueRepository(pool *pgxpool.Pool, backoff time.Duration) *QueueRepository {
	return &QueueRepository{pool: pool, backoff: max(backoff, 0)}
}

func (r *QueueRepository) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return queue.ErrPayloadNil
	}

	_, err := Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO statekit_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		task.ID, task.Queue, task.TaskName, task.Payload, string(task.Status), int16(task.Priority),
		int16(task.RetryCount), int16(task.MaxRetries), task.ScheduledAt, task.LockedUntil,
		task.LockedBy, task.ProcessedAt, task.Error, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

// ClaimTask takes the highest priority due task, and also reclaims tasks
// whose lock expired. Concurrent workers skip rows locked by each other.
func (r *QueueRepository) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	row := r.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM statekit_tasks
			WHERE queue = ANY($1)
			  AND ((status = 'pending' AND scheduled_at <= now())
			    OR (status = 'processing' AND locked_until < now()))
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE statekit_tasks t
		SET status = 'processing', locked_by = $2, locked_until = $3
		FROM next
		WHERE t.id = next.id
		RETURNING t.id, t.queue, t.task_name, t.payload, t.status, t.priority, t.retry_count,
			t.max_retries, t.scheduled_at, t.locked_until, t.locked_by, t.processed_at, t.error, t.created_at`,
		queues, workerID, time.Now().Add(lockDuration))

	task, err := scanTask(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, queue.ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func (r *QueueRepository) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	return r.exec(ctx, taskID, `
		UPDATE statekit_tasks
		SET status = 'completed', processed_at = now(), locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND status = 'processing'`, taskID)
}

// FailTask returns the task to pending with a linear backoff, or marks it
// failed once its retries are exhausted.
func (r *QueueRepository) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	return r.exec(ctx, taskID, `
		UPDATE statekit_tasks
		SET retry_count = retry_count + 1,
			error = $2,
			locked_by = NULL,
			locked_until = NULL,
			status = CASE WHEN retry_count + 1 > max_retries THEN 'failed' ELSE 'pending' END,
			scheduled_at = CASE WHEN retry_count + 1 > max_retries THEN scheduled_at
				ELSE now() + make_interval(secs => $3::float8 * (retry_count + 1)) END
		WHERE id = $1 AND status = 'processing'`,
		taskID, errorMsg, r.backoff.Seconds())
}

func (r *QueueRepository) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	return r.exec(ctx, taskID, `
		WITH moved AS (
			DELETE FROM statekit_tasks WHERE id = $1
			RETURNING id, queue, task_name, payload, priority, error, retry_count
		)
		INSERT INTO statekit_tasks_dlq (id, task_id, queue, task_name, payload, priority, error, retry_count, failed_at)
		SELECT $2::uuid, id, queue, task_name, payload, priority, COALESCE(error, ''), retry_count, now()
		FROM moved`, taskID, uuid.New())
}

func (r *QueueRepository) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	return r.exec(ctx, taskID, `
		UPDATE statekit_tasks SET locked_until = $2
		WHERE id = $1 AND status = 'processing'`, taskID, time.Now().Add(duration))
}

// Task loads a task by id.
func (r *QueueRepository) Task(ctx context.Context, taskID uuid.UUID) (*queue.Task, error) {
	row := Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+taskColumns+` FROM statekit_tasks WHERE id = $1`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	return task, nil
}

// DeadTasks lists dead letter entries, oldest first.
func (r *QueueRepository) DeadTasks(ctx context.Context, limit int) ([]queue.DeadTask, error) {
	rows, err := Conn(ctx, r.pool).Query(ctx, `
		SELECT id, task_id, queue, task_name, payload, priority, error, retry_count, failed_at
		FROM statekit_tasks_dlq
		ORDER BY failed_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead tasks: %w", err)
	}

	dead, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (queue.DeadTask, error) {
		var (
			d                    queue.DeadTask
			priority, retryCount int16
		)
		err := row.Scan(&d.ID, &d.TaskID, &d.Queue, &d.TaskName, &d.Payload, &priority, &d.Error, &retryCount, &d.FailedAt)
		d.Priority = queue.Priority(priority)
		d.RetryCount = int8(retryCount)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan dead tasks: %w", err)
	}
	return dead, nil
}

func (r *QueueRepository) exec(ctx context.Context, taskID uuid.UUID, sql string, args ...any) error {
	tag, err := Conn(ctx, r.pool).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	return nil
}

func scanTask(row pgx.Row) (*queue.Task, error) {
	var (
		t                                queue.Task
		status                           string
		priority, retryCount, maxRetries int16
	)
	if err := row.Scan(&t.ID, &t.Queue, &t.TaskName, &t.Payload, &status, &priority, &retryCount,
		&maxRetries, &t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Status = queue.TaskStatus(status)
	t.Priority = queue.Priority(priority)
	t.RetryCount = int8(retryCount)
	t.MaxRetries = int8(maxRetries)
	return &t, nil
}
