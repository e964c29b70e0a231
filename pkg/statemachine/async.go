package statemachine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/queue"
)

// TaskName is the queue task name of asynchronous transitions.
const TaskName = "statemachine.transition"

// Enqueuer accepts task payloads for background execution.
// *queue.Enqueuer satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// TaskKind tells the worker how to address the transition.
type TaskKind string

const (
	TaskKindState TaskKind = "state"
	TaskKindEdge  TaskKind = "edge"
)

// TransitionTask is the payload of an asynchronous transition.
type TransitionTask struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Field      string          `json:"field"`
	Kind       TaskKind        `json:"kind"`
	Target     json.RawMessage `json:"target_state,omitempty"`
	Edge       string          `json:"edge,omitempty"`
	Through    bool            `json:"transition_through,omitempty"`
}

// ScheduleTransitionTo enqueues a TransitionTo call for a persisted entity.
func (m *Machine[E, S]) ScheduleTransitionTo(ctx context.Context, e E, target S, args Args, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	return m.scheduleState(ctx, e, target, false, args, opts)
}

// ScheduleTransitionThrough enqueues a TransitionThrough call for a persisted entity.
func (m *Machine[E, S]) ScheduleTransitionThrough(ctx context.Context, e E, goal S, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	return m.scheduleState(ctx, e, goal, true, nil, opts)
}

// ScheduleInvoke enqueues an Invoke call for a persisted entity.
func (m *Machine[E, S]) ScheduleInvoke(ctx context.Context, e E, edge string, args Args, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	if err := m.canSchedule(e, args); err != nil {
		return uuid.Nil, err
	}
	if !m.graph.HasEdge(edge) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownEdge, edge)
	}

	return m.enqueue(ctx, TransitionTask{
		EntityType: e.EntityType(),
		EntityID:   e.EntityID(),
		Field:      m.field.Name,
		Kind:       TaskKindEdge,
		Edge:       edge,
	}, opts)
}

func (m *Machine[E, S]) scheduleState(ctx context.Context, e E, target S, through bool, args Args, opts []queue.EnqueueOption) (uuid.UUID, error) {
	if err := m.canSchedule(e, args); err != nil {
		return uuid.Nil, err
	}

	raw, err := json.Marshal(target)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode target state %s: %w", m.Label(target), err)
	}

	return m.enqueue(ctx, TransitionTask{
		EntityType: e.EntityType(),
		EntityID:   e.EntityID(),
		Field:      m.field.Name,
		Kind:       TaskKindState,
		Target:     raw,
		Through:    through,
	}, opts)
}

func (m *Machine[E, S]) canSchedule(e E, args Args) error {
	if e.EntityID() == "" {
		return fmt.Errorf("%w: %s", ErrNotPersisted, e.EntityType())
	}
	if len(args) > 0 {
		return ErrAsyncArgs
	}
	if m.enqueuer == nil {
		return ErrNoScheduler
	}
	return nil
}

func (m *Machine[E, S]) enqueue(ctx context.Context, task TransitionTask, opts []queue.EnqueueOption) (uuid.UUID, error) {
	opts = append([]queue.EnqueueOption{queue.WithTaskName(TaskName)}, opts...)

	id, err := m.enqueuer.Enqueue(ctx, task, opts...)
	if err != nil {
		return uuid.Nil, fmt.Errorf("schedule %s transition of %s %s: %w", task.Kind, task.EntityType, task.EntityID, err)
	}

	tasksScheduled.WithLabelValues(task.EntityType, string(task.Kind)).Inc()
	m.logger.DebugContext(ctx, "transition scheduled",
		logger.EntityType(task.EntityType),
		logger.EntityID(task.EntityID),
		slog.String("kind", string(task.Kind)),
		slog.String("task_id", id.String()))

	return id, nil
}

// run replays a scheduled transition through the locked entry points.
func (m *Machine[E, S]) run(ctx context.Context, e E, task TransitionTask) error {
	switch task.Kind {
	case TaskKindEdge:
		_, err := m.Invoke(ctx, e, task.Edge, nil)
		return err
	case TaskKindState:
		var target S
		if err := json.Unmarshal(task.Target, &target); err != nil {
			return fmt.Errorf("decode target state: %w", err)
		}
		if task.Through {
			_, err := m.TransitionThrough(ctx, e, target)
			return err
		}
		_, err := m.TransitionTo(ctx, e, target, nil)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTaskKind, task.Kind)
	}
}

// Loader rehydrates an entity by its persisted identity.
type Loader[E Entity] func(ctx context.Context, id string) (E, error)

type dispatchKey struct {
	entityType string
	field      string
}

// Dispatcher routes transition tasks to the machine registered for the
// task's entity type and field.
type Dispatcher struct {
	mu      sync.RWMutex
	runners map[dispatchKey]func(ctx context.Context, task TransitionTask) error
	logger  *slog.Logger
}

func NewDispatcher(l *slog.Logger) *Dispatcher {
	if l == nil {
		l = slog.Default()
	}
	return &Dispatcher{
		runners: make(map[dispatchKey]func(ctx context.Context, task TransitionTask) error),
		logger:  l.With(logger.Component("statemachine.dispatcher")),
	}
}

// Register binds m to tasks for entityType. load is called for every task to
// fetch the entity; the machine refreshes it again under lock.
func Register[E Entity, S comparable](d *Dispatcher, m *Machine[E, S], entityType string, load Loader[E]) error {
	if m == nil || load == nil || entityType == "" {
		return fmt.Errorf("%w: dispatcher registration requires a machine, entity type and loader", ErrConfiguration)
	}

	key := dispatchKey{entityType: entityType, field: m.field.Name}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.runners[key]; exists {
		return fmt.Errorf("%w: machine for %s.%s already registered", ErrConfiguration, entityType, m.field.Name)
	}

	d.runners[key] = func(ctx context.Context, task TransitionTask) error {
		e, err := load(ctx, task.EntityID)
		if err != nil {
			return fmt.Errorf("load %s %s: %w", task.EntityType, task.EntityID, err)
		}
		return m.run(ctx, e, task)
	}
	return nil
}

// Run executes a transition task. Errors are returned so the queue can retry
// the task or move it to the dead letter queue.
func (d *Dispatcher) Run(ctx context.Context, task TransitionTask) error {
	d.mu.RLock()
	run, ok := d.runners[dispatchKey{entityType: task.EntityType, field: task.Field}]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrNoMachineRegistered, task.EntityType, task.Field)
	}

	if err := run(ctx, task); err != nil {
		d.logger.WarnContext(ctx, "scheduled transition failed",
			logger.EntityType(task.EntityType),
			logger.EntityID(task.EntityID),
			logger.Field(task.Field),
			logger.Error(err))
		return err
	}
	return nil
}

// Handler exposes the dispatcher as a queue handler for TaskName.
func (d *Dispatcher) Handler() queue.Handler {
	return queue.NewNamedTaskHandler(TaskName, d.Run)
}
