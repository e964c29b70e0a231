package statemachine

import (
	"context"
	"fmt"
)

// Named is implemented by states that carry their own display name.
type Named interface {
	Name() string
}

// StringState provides a simple string-based state implementation for basic use cases.
type StringState string

func (s StringState) Name() string {
	return string(s)
}

// Entity is a persistent object whose state field is driven by a Machine.
// Implementations are expected to be pointer types.
type Entity interface {
	// EntityType identifies the kind of entity, e.g. a table or collection name.
	EntityType() string
	// EntityID returns the persisted identity or an empty string if the entity
	// has never been saved.
	EntityID() string
	// Save durably commits the entity. It may mutate fields, including the
	// state field; the machine re-reads the state after Save returns.
	Save(ctx context.Context) error
	// Refresh replaces all fields with the authoritative stored version.
	Refresh(ctx context.Context) error
}

// Args holds named arguments passed to a side effect.
type Args map[string]any

// Guard evaluates whether a transition may run against the given entity.
type Guard[E any] func(ctx context.Context, entity E) bool

// SideEffect runs while the transition is in progress, before the new state
// is committed. The returned Result decides how the transition proceeds.
type SideEffect[E any, S comparable] func(ctx context.Context, entity E, tr Transition[E, S], args Args) Result

// Transition is an immutable edge of the state graph.
type Transition[E any, S comparable] struct {
	From S
	To   S
	// Name addresses the edge; required when SideEffect is set.
	Name         string
	Precondition Guard[E]
	SideEffect   SideEffect[E, S]
	// Params lists the argument names the side effect requires.
	Params []string
}

// Automatic reports whether the transition is a pass-through edge without a side effect.
func (t Transition[E, S]) Automatic() bool {
	return t.SideEffect == nil
}

func (t Transition[E, S]) String() string {
	if t.Name == "" {
		return fmt.Sprintf("%s -> %s", stateName(t.From), stateName(t.To))
	}
	return fmt.Sprintf("%s -> %s via %s", stateName(t.From), stateName(t.To), t.Name)
}

// Field binds the state machine to a named state field of E.
type Field[E any, S comparable] struct {
	Name string
	Get  func(E) S
	Set  func(E, S)
}

type resultKind uint8

const (
	resultOK resultKind = iota
	resultRedirect
	resultFail
)

// Result is the outcome of a side effect.
// The zero value is equivalent to Ok().
type Result struct {
	kind  resultKind
	state any
	args  Args
	err   error
}

// Ok lets the transition proceed to its end state.
func Ok() Result {
	return Result{}
}

// Redirect abandons the current transition and resolves a transition to
// state instead, replaying args to its side effect.
func Redirect(state any, args Args) Result {
	return Result{kind: resultRedirect, state: state, args: args}
}

// Fail aborts the transition and returns err to the caller.
// A nil err is treated as Ok.
func Fail(err error) Result {
	if err == nil {
		return Ok()
	}
	return Result{kind: resultFail, err: err}
}

// Do adapts a plain error-returning function to a SideEffect.
func Do[E any, S comparable](fn func(ctx context.Context, entity E, args Args) error) SideEffect[E, S] {
	return func(ctx context.Context, entity E, _ Transition[E, S], args Args) Result {
		return Fail(fn(ctx, entity, args))
	}
}

func stateName(s any) string {
	switch v := s.(type) {
	case Named:
		return v.Name()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
