package statemachine

import "fmt"

// Builder provides a fluent API for declaring transitions.
//
//	m, err := statemachine.NewBuilder[*Doc, statemachine.StringState]().
//		From(Draft).To(Review).Via("submit", submit).Add().
//		From(Review).To(Published).Guard(isApproved).Add().
//		Build(field, Draft)
type Builder[E Entity, S comparable] struct {
	transitions []Transition[E, S]
	current     Transition[E, S]
	hasFrom     bool
	hasTo       bool
	err         error
}

// NewBuilder creates an empty builder.
func NewBuilder[E Entity, S comparable]() *Builder[E, S] {
	return &Builder[E, S]{}
}

// From starts a new transition, discarding an unfinished one.
func (b *Builder[E, S]) From(state S) *Builder[E, S] {
	b.reset()
	b.current.From = state
	b.hasFrom = true
	return b
}

// To sets the end state of the current transition.
func (b *Builder[E, S]) To(state S) *Builder[E, S] {
	b.current.To = state
	b.hasTo = true
	return b
}

// Via names the edge and attaches its side effect. A nil fn declares a named
// automatic edge.
func (b *Builder[E, S]) Via(name string, fn SideEffect[E, S]) *Builder[E, S] {
	b.current.Name = name
	b.current.SideEffect = fn
	return b
}

// Guard sets the precondition of the current transition.
func (b *Builder[E, S]) Guard(g Guard[E]) *Builder[E, S] {
	b.current.Precondition = g
	return b
}

// Params declares the argument names the side effect requires.
func (b *Builder[E, S]) Params(names ...string) *Builder[E, S] {
	b.current.Params = append(b.current.Params, names...)
	return b
}

// Add finalizes the current transition. The first error is kept and
// reported by Transitions and Build.
func (b *Builder[E, S]) Add() *Builder[E, S] {
	if b.err == nil && (!b.hasFrom || !b.hasTo) {
		b.err = fmt.Errorf("transition[%d]: %w", len(b.transitions), ErrIncompleteBuilder)
	}
	if b.err == nil {
		b.transitions = append(b.transitions, b.current)
	}
	b.reset()
	return b
}

// Transitions returns the declared transitions.
func (b *Builder[E, S]) Transitions() ([]Transition[E, S], error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.transitions, nil
}

// Build creates a machine from the declared transitions.
func (b *Builder[E, S]) Build(field Field[E, S], start S, opts ...Option) (*Machine[E, S], error) {
	transitions, err := b.Transitions()
	if err != nil {
		return nil, err
	}
	return New(field, start, transitions, opts...)
}

func (b *Builder[E, S]) reset() {
	b.current = Transition[E, S]{}
	b.hasFrom = false
	b.hasTo = false
}
