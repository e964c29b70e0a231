// Package statemachine drives the state field of long-lived persistent
// entities through a declared graph of transitions, safely under concurrent
// access from many goroutines and processes.
//
// A Machine binds an immutable Graph of Transition values to a named state
// Field of an Entity type. The machine holds no per-entity state, so one
// instance serves every entity of that type.
//
// # Declaring transitions
//
// Transitions are plain values; a Builder offers a fluent alternative:
//
//	const (
//	    Draft     = statemachine.StringState("draft")
//	    Review    = statemachine.StringState("review")
//	    Published = statemachine.StringState("published")
//	    Failed    = statemachine.StringState("failed")
//	)
//
//	field := statemachine.Field[*Doc, statemachine.StringState]{
//	    Name: "status",
//	    Get:  func(d *Doc) statemachine.StringState { return d.Status },
//	    Set:  func(d *Doc, s statemachine.StringState) { d.Status = s },
//	}
//
//	m, err := statemachine.New(field, Draft, []statemachine.Transition[*Doc, statemachine.StringState]{
//	    {From: Draft, To: Review},
//	    {From: Review, To: Published, Name: "publish", SideEffect: publish, Params: []string{"channel"}},
//	    {From: Review, To: Failed, Name: "fail"},
//	}, statemachine.WithLocker(locker))
//
// A transition without a side effect is automatic: it only connects states.
// A side effect returns Ok, Fail(err) or Redirect(state, args). A redirect
// abandons the transition and resolves a transition to the given state
// instead, which is how a side effect sends an entity to a known failure state.
//
// # Driving entities
//
//   - TransitionTo moves to a state reachable through exactly one edge.
//   - Invoke performs a named edge leaving the current state.
//   - Apply performs an explicit Transition.
//   - TransitionThrough walks a multi-hop path, recomputing it after every hop.
//
// Every call runs under a process-local mutex keyed by entity identity. For
// persisted entities the configured Locker additionally provides a
// cross-process lock, and the entity is refreshed inside it before anything
// else runs. Calls made from a side effect with the context it received
// re-enter the held lock instead of deadlocking. Save is durable when the
// Locker releases the lock only if the Locker owns the transaction: a call
// made inside a caller-owned transaction commits after the lock is gone.
// Schedule follow-up work from a side effect so that it shares the
// locking transaction.
//
// After a successful top-level call that committed at least one hop the
// Notifier receives one StateChanged event with the final state. EventBus
// and MultiNotifier isolate their subscribers from each other and from the
// caller.
//
// # Asynchronous transitions
//
// ScheduleTransitionTo, ScheduleTransitionThrough and ScheduleInvoke enqueue
// a TransitionTask through the configured Enqueuer. On the worker side a
// Dispatcher rehydrates the entity and replays the call through the same
// locked entry points:
//
//	d := statemachine.NewDispatcher(logger)
//	_ = statemachine.Register(d, m, "documents", repo.Load)
//	_ = worker.RegisterHandlers(d.Handler())
//
// # Error Handling
//
// Configuration mistakes wrap ErrConfiguration and are reported before any
// lock is taken. Rejected calls return ErrPreconditionFailed,
// ErrNoSuchTransition or ErrAmbiguousTransition and leave the entity
// untouched; use the Is* helpers or errors.As to inspect them. Redirect
// chains longer than the hop budget fail with ErrTooManyRedirects.
package statemachine
