package statemachine

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/statekit/pkg/queue"
)

// Bound ties a machine to a single entity so call sites need not pass it around.
type Bound[E Entity, S comparable] struct {
	m *Machine[E, S]
	e E
}

// Bind returns the per-entity facade of m.
func (m *Machine[E, S]) Bind(e E) *Bound[E, S] {
	return &Bound[E, S]{m: m, e: e}
}

func (b *Bound[E, S]) Entity() E {
	return b.e
}

func (b *Bound[E, S]) Current() S {
	return b.m.Current(b.e)
}

func (b *Bound[E, S]) PossibleTransitions(ctx context.Context) []Transition[E, S] {
	return b.m.PossibleTransitions(ctx, b.e)
}

func (b *Bound[E, S]) CanTransitionTo(ctx context.Context, target S) bool {
	return b.m.CanTransitionTo(ctx, b.e, target)
}

func (b *Bound[E, S]) TransitionTo(ctx context.Context, target S, args Args) (S, error) {
	return b.m.TransitionTo(ctx, b.e, target, args)
}

func (b *Bound[E, S]) Apply(ctx context.Context, tr Transition[E, S], args Args) (S, error) {
	return b.m.Apply(ctx, b.e, tr, args)
}

func (b *Bound[E, S]) Invoke(ctx context.Context, edge string, args Args) (S, error) {
	return b.m.Invoke(ctx, b.e, edge, args)
}

func (b *Bound[E, S]) TransitionThrough(ctx context.Context, goal S) (S, error) {
	return b.m.TransitionThrough(ctx, b.e, goal)
}

func (b *Bound[E, S]) ScheduleTransitionTo(ctx context.Context, target S, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	return b.m.ScheduleTransitionTo(ctx, b.e, target, nil, opts...)
}

func (b *Bound[E, S]) ScheduleTransitionThrough(ctx context.Context, goal S, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	return b.m.ScheduleTransitionThrough(ctx, b.e, goal, opts...)
}

func (b *Bound[E, S]) ScheduleInvoke(ctx context.Context, edge string, opts ...queue.EnqueueOption) (uuid.UUID, error) {
	return b.m.ScheduleInvoke(ctx, b.e, edge, nil, opts...)
}
