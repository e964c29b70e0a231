package statemachine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is the parent of every error caused by a misconfigured
// machine or call site. It is raised before any lock is taken.
var ErrConfiguration = errors.New("statemachine: configuration error")

var (
	ErrNoTransitions     = fmt.Errorf("%w: no transitions declared", ErrConfiguration)
	ErrStartNotInGraph   = fmt.Errorf("%w: start state is not part of the graph", ErrConfiguration)
	ErrInvalidField      = fmt.Errorf("%w: state field requires a name, getter and setter", ErrConfiguration)
	ErrUnnamedSideEffect = fmt.Errorf("%w: transition with a side effect must be named", ErrConfiguration)
	ErrDuplicateEdge     = fmt.Errorf("%w: duplicate edge name from the same state", ErrConfiguration)
	ErrInvalidLabels     = fmt.Errorf("%w: state labels do not match the state type", ErrConfiguration)
	ErrNotPersisted      = fmt.Errorf("%w: entity must be saved before it can be transitioned asynchronously", ErrConfiguration)
	ErrAsyncArgs         = fmt.Errorf("%w: asynchronous transitions do not support arguments", ErrConfiguration)
	ErrNoScheduler       = fmt.Errorf("%w: no enqueuer configured for asynchronous transitions", ErrConfiguration)
	ErrIncompleteBuilder = fmt.Errorf("%w: transition requires both from and to states", ErrConfiguration)
)

var (
	// ErrParamMismatch indicates the arguments do not match the side effect parameters.
	ErrParamMismatch = errors.New("statemachine: arguments do not match side effect parameters")
	// ErrUnknownEdge indicates the edge name is not declared anywhere in the graph.
	ErrUnknownEdge = errors.New("statemachine: unknown edge")
	// ErrTooManyHops indicates TransitionThrough exceeded its hop budget.
	ErrTooManyHops = errors.New("statemachine: too many hops")
	// ErrTooManyRedirects indicates side effects kept redirecting past the hop budget.
	ErrTooManyRedirects = errors.New("statemachine: too many redirects")
	// ErrInvalidRedirect indicates a side effect redirected to a value of the wrong state type.
	ErrInvalidRedirect = errors.New("statemachine: redirect state does not match the state type")
	// ErrNoMachineRegistered indicates an async task targets a machine the dispatcher does not know.
	ErrNoMachineRegistered = errors.New("statemachine: no machine registered for task")
	// ErrUnknownTaskKind indicates an async task payload carries an unsupported kind.
	ErrUnknownTaskKind = errors.New("statemachine: unknown task kind")
)

// ErrPreconditionFailed indicates the transition guard rejected the entity.
// No mutation has happened.
type ErrPreconditionFailed struct {
	From string
	To   string
	Edge string
}

func (e *ErrPreconditionFailed) Error() string {
	if e.Edge == "" {
		return fmt.Sprintf("cannot transition from '%s' to '%s', precondition failed", e.From, e.To)
	}
	return fmt.Sprintf("cannot transition from '%s' to '%s' using '%s', precondition failed", e.From, e.To, e.Edge)
}

func NewErrPreconditionFailed(from, to, edge string) *ErrPreconditionFailed {
	return &ErrPreconditionFailed{
		From: from,
		To:   to,
		Edge: edge,
	}
}

// ErrNoSuchTransition indicates no single-hop edge leads from the current
// state to the requested target state or through the requested edge.
type ErrNoSuchTransition struct {
	From string
	To   string
	Edge string
}

func (e *ErrNoSuchTransition) Error() string {
	if e.Edge != "" {
		return fmt.Sprintf("cannot transition from '%s' using edge '%s'", e.From, e.Edge)
	}
	return fmt.Sprintf("cannot transition from '%s' to '%s'", e.From, e.To)
}

func NewErrNoSuchTransition(from, to, edge string) *ErrNoSuchTransition {
	return &ErrNoSuchTransition{
		From: from,
		To:   to,
		Edge: edge,
	}
}

// ErrAmbiguousTransition indicates several edges lead to the requested state.
// Invoke one of Edges by name instead.
type ErrAmbiguousTransition struct {
	From  string
	To    string
	Edges []string
}

func (e *ErrAmbiguousTransition) Error() string {
	return fmt.Sprintf("ambiguous transition '%s' -> '%s', invoke one of the edges instead: %s",
		e.From, e.To, strings.Join(e.Edges, ", "))
}

func NewErrAmbiguousTransition(from, to string, edges []string) *ErrAmbiguousTransition {
	return &ErrAmbiguousTransition{
		From:  from,
		To:    to,
		Edges: edges,
	}
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsPreconditionFailedError(err error) bool {
	var e *ErrPreconditionFailed
	return errors.As(err, &e)
}

func IsNoSuchTransitionError(err error) bool {
	var e *ErrNoSuchTransition
	return errors.As(err, &e)
}

func IsAmbiguousTransitionError(err error) bool {
	var e *ErrAmbiguousTransition
	return errors.As(err, &e)
}
