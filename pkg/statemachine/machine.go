package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

// Machine drives the state field of entities of type E through a Graph.
// A Machine holds no per-entity state and is safe to share across goroutines.
type Machine[E Entity, S comparable] struct {
	field    Field[E, S]
	start    S
	graph    *Graph[E, S]
	labels   map[S]string
	locker   Locker
	locks    *LockRegistry
	notifier Notifier
	enqueuer Enqueuer
	logger   *slog.Logger
	maxHops  int
}

// New creates a state machine bound to field, starting in start.
func New[E Entity, S comparable](field Field[E, S], start S, transitions []Transition[E, S], opts ...Option) (*Machine[E, S], error) {
	if field.Name == "" || field.Get == nil || field.Set == nil {
		return nil, ErrInvalidField
	}

	graph, err := NewGraph(transitions...)
	if err != nil {
		return nil, err
	}
	if !graph.HasState(start) {
		return nil, fmt.Errorf("%w: %s", ErrStartNotInGraph, stateName(start))
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	var labels map[S]string
	if o.labels != nil {
		l, ok := o.labels.(map[S]string)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrInvalidLabels, o.labels)
		}
		labels = l
	}

	return &Machine[E, S]{
		field:    field,
		start:    start,
		graph:    graph,
		labels:   labels,
		locker:   o.locker,
		locks:    o.registry,
		notifier: o.notifier,
		enqueuer: o.enqueuer,
		logger:   o.logger.With(logger.Component("statemachine"), logger.Field(field.Name)),
		maxHops:  o.maxHops,
	}, nil
}

// MustNew creates a new state machine and panics on configuration errors.
func MustNew[E Entity, S comparable](field Field[E, S], start S, transitions []Transition[E, S], opts ...Option) *Machine[E, S] {
	m, err := New(field, start, transitions, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// FieldName returns the name of the bound state field.
func (m *Machine[E, S]) FieldName() string {
	return m.field.Name
}

// Start returns the initial state of the machine definition.
func (m *Machine[E, S]) Start() S {
	return m.start
}

func (m *Machine[E, S]) Graph() *Graph[E, S] {
	return m.graph
}

// Current returns the entity's current state as held in memory.
func (m *Machine[E, S]) Current(e E) S {
	return m.field.Get(e)
}

// Label returns the human-readable name of state.
func (m *Machine[E, S]) Label(state S) string {
	if l, ok := m.labels[state]; ok {
		return l
	}
	return stateName(state)
}

// PossibleTransitions lists the transitions from the current state whose
// preconditions currently pass. It takes no locks.
func (m *Machine[E, S]) PossibleTransitions(ctx context.Context, e E) []Transition[E, S] {
	var out []Transition[E, S]
	for _, t := range m.graph.TransitionsFrom(m.field.Get(e)) {
		if t.Precondition == nil || t.Precondition(ctx, e) {
			out = append(out, t)
		}
	}
	return out
}

// CanTransitionTo reports whether exactly one edge leads to target and its
// precondition passes. It takes no locks.
func (m *Machine[E, S]) CanTransitionTo(ctx context.Context, e E, target S) bool {
	t, err := m.resolve(e, target)
	if err != nil {
		return false
	}
	return t.Precondition == nil || t.Precondition(ctx, e)
}

// TransitionTo moves the entity to target through the single edge that
// connects its current state with target.
func (m *Machine[E, S]) TransitionTo(ctx context.Context, e E, target S, args Args) (S, error) {
	return m.guard(ctx, e, "transition_to", func(ctx context.Context) (S, error) {
		return m.resolveAndPerform(ctx, e, target, args)
	})
}

// Apply performs the given transition. The current state is not compared
// with tr.From; the precondition still applies.
func (m *Machine[E, S]) Apply(ctx context.Context, e E, tr Transition[E, S], args Args) (S, error) {
	return m.guard(ctx, e, "apply", func(ctx context.Context) (S, error) {
		return m.perform(ctx, e, tr, args)
	})
}

// Invoke performs the edge named edge leaving the current state.
func (m *Machine[E, S]) Invoke(ctx context.Context, e E, edge string, args Args) (S, error) {
	if !m.graph.HasEdge(edge) {
		return m.field.Get(e), fmt.Errorf("%w: %q", ErrUnknownEdge, edge)
	}
	return m.guard(ctx, e, "invoke", func(ctx context.Context) (S, error) {
		tr, err := m.resolveEdge(e, edge)
		if err != nil {
			return m.field.Get(e), err
		}
		return m.perform(ctx, e, tr, args)
	})
}

// TransitionThrough walks the graph from the current state toward goal,
// one hop at a time, recomputing the path after every hop. It stops when
// goal is reached or no longer reachable. All hops run under one lock.
func (m *Machine[E, S]) TransitionThrough(ctx context.Context, e E, goal S) (S, error) {
	return m.guard(ctx, e, "transition_through", func(ctx context.Context) (S, error) {
		for hop := 0; ; hop++ {
			current := m.field.Get(e)
			path, ok := m.graph.FindPath(current, goal)
			if !ok || len(path) == 0 {
				return current, nil
			}
			if hop >= m.maxHops {
				return current, fmt.Errorf("%w: gave up after %d hops toward '%s'", ErrTooManyHops, hop, m.Label(goal))
			}
			if _, err := m.resolveAndPerform(ctx, e, path[0], nil); err != nil {
				return m.field.Get(e), err
			}
		}
	})
}

// guard runs op under the in-process lock and, for persisted entities, the
// cross-process lock followed by a refresh. Calls made with a context that
// already holds the entity's lock run op directly and emit no event. An
// event is emitted only when op committed at least one hop.
func (m *Machine[E, S]) guard(ctx context.Context, e E, operation string, op func(ctx context.Context) (S, error)) (S, error) {
	key := lockKey(e)
	if holding(ctx, key) {
		return op(ctx)
	}

	outer := ctx
	ctx, c := withCommits(ctx, m)

	end, err := m.locked(ctx, e, key, operation, op)
	if err != nil || c.n == 0 {
		return end, err
	}

	m.notify(outer, e, end)
	return end, nil
}

// locked acquires both lock tiers around op and records the call span and
// duration, including when op panics.
func (m *Machine[E, S]) locked(ctx context.Context, e E, key any, operation string, op func(ctx context.Context) (S, error)) (end S, err error) {
	entityType := e.EntityType()
	started := time.Now()

	ctx, span := startCallSpan(ctx, operation, e, m.field.Name)
	defer func() {
		r := recover()
		recorded := err
		if r != nil {
			recorded = fmt.Errorf("panic: %v", r)
		}
		callDuration.WithLabelValues(entityType, operation, outcome(recorded)).Observe(time.Since(started).Seconds())
		endSpan(span, recorded)
		if r != nil {
			panic(r)
		}
	}()

	unlock := m.locks.Lock(key)
	defer unlock()
	lockWait.WithLabelValues(entityType, "local").Observe(time.Since(started).Seconds())
	ctx = withHeld(ctx, key)

	id := e.EntityID()
	if id == "" {
		return op(ctx)
	}

	remoteStarted := time.Now()
	err = m.locker.WithLock(ctx, entityType, id, func(ctx context.Context) error {
		lockWait.WithLabelValues(entityType, "remote").Observe(time.Since(remoteStarted).Seconds())
		if rerr := e.Refresh(ctx); rerr != nil {
			end = m.field.Get(e)
			return fmt.Errorf("refresh %s %s: %w", entityType, id, rerr)
		}
		var opErr error
		end, opErr = op(ctx)
		return opErr
	})
	return end, err
}

func (m *Machine[E, S]) resolveAndPerform(ctx context.Context, e E, target S, args Args) (S, error) {
	tr, err := m.resolve(e, target)
	if err != nil {
		return m.field.Get(e), err
	}
	return m.perform(ctx, e, tr, args)
}

// redirectTo follows a side effect redirect. Redirect chains share the hop
// budget of the machine.
func (m *Machine[E, S]) redirectTo(ctx context.Context, e E, target S, args Args) (S, error) {
	depth := redirectDepth(ctx) + 1
	if depth > m.maxHops {
		return m.field.Get(e), fmt.Errorf("%w: gave up after %d redirects toward '%s'", ErrTooManyRedirects, depth-1, m.Label(target))
	}
	return m.resolveAndPerform(withRedirectDepth(ctx, depth), e, target, args)
}

// resolve selects the single edge from the current state to target.
func (m *Machine[E, S]) resolve(e E, target S) (Transition[E, S], error) {
	current := m.field.Get(e)

	var candidates []Transition[E, S]
	for _, t := range m.graph.TransitionsFrom(current) {
		if t.To == target {
			candidates = append(candidates, t)
		}
	}

	switch len(candidates) {
	case 0:
		return Transition[E, S]{}, NewErrNoSuchTransition(m.Label(current), m.Label(target), "")
	case 1:
		return candidates[0], nil
	default:
		edges := make([]string, 0, len(candidates))
		for _, t := range candidates {
			if t.Name == "" {
				edges = append(edges, "<automatic>")
				continue
			}
			edges = append(edges, t.Name)
		}
		return Transition[E, S]{}, NewErrAmbiguousTransition(m.Label(current), m.Label(target), edges)
	}
}

// resolveEdge selects the edge named edge leaving the current state.
func (m *Machine[E, S]) resolveEdge(e E, edge string) (Transition[E, S], error) {
	current := m.field.Get(e)
	for _, t := range m.graph.TransitionsFrom(current) {
		if t.Name == edge {
			return t, nil
		}
	}
	return Transition[E, S]{}, NewErrNoSuchTransition(m.Label(current), "", edge)
}

// perform validates and executes a single transition and commits its end state.
func (m *Machine[E, S]) perform(ctx context.Context, e E, tr Transition[E, S], args Args) (_ S, err error) {
	from, to := m.Label(tr.From), m.Label(tr.To)
	ctx, span := startHopSpan(ctx, from, to, tr.Name)
	defer func() { endSpan(span, err) }()

	if err := checkParams(tr.Params, args); err != nil {
		return m.field.Get(e), fmt.Errorf("%s: %w", tr, err)
	}

	if tr.Precondition != nil && !tr.Precondition(ctx, e) {
		return m.field.Get(e), NewErrPreconditionFailed(from, to, tr.Name)
	}

	if tr.SideEffect != nil {
		res := tr.SideEffect(ctx, e, tr, args)
		switch res.kind {
		case resultRedirect:
			target, ok := res.state.(S)
			if !ok {
				return m.field.Get(e), fmt.Errorf("%w: edge %q returned %T", ErrInvalidRedirect, tr.Name, res.state)
			}
			redirectsTotal.WithLabelValues(e.EntityType(), m.field.Name, m.Label(target)).Inc()
			m.logger.WarnContext(ctx, "side effect redirected transition",
				logger.EntityType(e.EntityType()),
				logger.EntityID(e.EntityID()),
				logger.Edge(tr.Name),
				slog.String("from", from),
				slog.String("to", to),
				slog.String("redirect", m.Label(target)))
			return m.resolveAndPerform(ctx, e, target, res.args)
		case resultFail:
			return m.field.Get(e), fmt.Errorf("side effect %q: %w", tr.Name, res.err)
		}
	}

	previous := m.field.Get(e)
	m.field.Set(e, tr.To)
	if err := e.Save(ctx); err != nil {
		m.field.Set(e, previous)
		return previous, fmt.Errorf("save %s after %s: %w", e.EntityType(), tr, err)
	}
	committed(ctx, m)

	transitionsTotal.WithLabelValues(e.EntityType(), m.field.Name, from, to).Inc()
	m.logger.DebugContext(ctx, "transition committed",
		logger.EntityType(e.EntityType()),
		logger.EntityID(e.EntityID()),
		logger.Edge(tr.Name),
		slog.String("from", from),
		slog.String("to", to))

	return m.field.Get(e), nil
}

type (
	commitsKey       struct{}
	redirectDepthKey struct{}
)

// commits counts the hops a top-level call of owner committed.
type commits struct {
	owner any
	n     int
}

func withCommits(ctx context.Context, owner any) (context.Context, *commits) {
	c := &commits{owner: owner}
	return context.WithValue(ctx, commitsKey{}, c), c
}

func committed(ctx context.Context, owner any) {
	if c, ok := ctx.Value(commitsKey{}).(*commits); ok && c.owner == owner {
		c.n++
	}
}

func redirectDepth(ctx context.Context) int {
	d, _ := ctx.Value(redirectDepthKey{}).(int)
	return d
}

func withRedirectDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, redirectDepthKey{}, depth)
}

func (m *Machine[E, S]) notify(ctx context.Context, e E, state S) {
	if m.notifier == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			notificationFailures.WithLabelValues(e.EntityType()).Inc()
			m.logger.ErrorContext(ctx, "state change notifier panicked",
				logger.EntityType(e.EntityType()),
				logger.EntityID(e.EntityID()),
				slog.Any("panic", r))
		}
	}()

	m.notifier.Notify(ctx, StateChanged{
		EntityType: e.EntityType(),
		EntityID:   e.EntityID(),
		Field:      m.field.Name,
		State:      state,
		Entity:     e,
		At:         time.Now(),
	})
}

// checkParams requires args to carry exactly the declared parameter names.
func checkParams(params []string, args Args) error {
	for _, p := range params {
		if _, ok := args[p]; !ok {
			return fmt.Errorf("%w: missing %q", ErrParamMismatch, p)
		}
	}
	for name := range args {
		if !slices.Contains(params, name) {
			return fmt.Errorf("%w: unexpected %q", ErrParamMismatch, name)
		}
	}
	return nil
}
