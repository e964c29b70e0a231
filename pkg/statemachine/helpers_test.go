package statemachine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

type S = statemachine.StringState

const (
	Draft     S = "draft"
	Review    S = "review"
	Published S = "published"
	Archived  S = "archived"

	Start             S = "start"
	TheWayToFailure   S = "the_way_to_failure"
	FailureIsAnOption S = "failure_is_actually_an_option"
	Fail              S = "fail"
)

var errNotStored = errors.New("document not stored")

// store is an in-memory table of documents shared by entity instances.
type store struct {
	mu       sync.Mutex
	rows     map[string]row
	saves    atomic.Int32
	failSave error
}

type row struct {
	status S
	review S
}

func newStore() *store {
	return &store{rows: make(map[string]row)}
}

func (s *store) put(id string, status S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = row{status: status}
}

func (s *store) status(id string) S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].status
}

// load returns a fresh instance, as a repository would.
func (s *store) load(_ context.Context, id string) (*doc, error) {
	d := &doc{ID: id, store: s}
	if err := d.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

type doc struct {
	ID     string
	Status S
	Review S

	store     *store
	refreshes atomic.Int32
	// onSave runs first in Save and may change fields, like a database trigger.
	onSave func(d *doc)
}

func (d *doc) EntityType() string { return "document" }
func (d *doc) EntityID() string   { return d.ID }

func (d *doc) Save(context.Context) error {
	if d.onSave != nil {
		d.onSave(d)
	}
	if d.store == nil {
		return nil
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	if d.store.failSave != nil {
		return d.store.failSave
	}
	d.store.saves.Add(1)
	d.store.rows[d.ID] = row{status: d.Status, review: d.Review}
	return nil
}

func (d *doc) Refresh(context.Context) error {
	d.refreshes.Add(1)
	if d.store == nil {
		return nil
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	r, ok := d.store.rows[d.ID]
	if !ok {
		return fmt.Errorf("%w: %s", errNotStored, d.ID)
	}
	d.Status, d.Review = r.status, r.review
	return nil
}

var statusField = statemachine.Field[*doc, S]{
	Name: "status",
	Get:  func(d *doc) S { return d.Status },
	Set:  func(d *doc, s S) { d.Status = s },
}

var reviewField = statemachine.Field[*doc, S]{
	Name: "review",
	Get:  func(d *doc) S { return d.Review },
	Set:  func(d *doc, s S) { d.Review = s },
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// events records completion events.
type events struct {
	mu  sync.Mutex
	got []statemachine.StateChanged
}

func (e *events) Notify(_ context.Context, evt statemachine.StateChanged) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, evt)
}

func (e *events) all() []statemachine.StateChanged {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]statemachine.StateChanged(nil), e.got...)
}

// failureGraph redirects the side effect of the only edge into
// FailureIsAnOption to Fail.
func failureGraph(calls *atomic.Int32) []statemachine.Transition[*doc, S] {
	return []statemachine.Transition[*doc, S]{
		{From: Start, To: TheWayToFailure},
		{
			From: TheWayToFailure,
			To:   FailureIsAnOption,
			Name: "try",
			SideEffect: func(context.Context, *doc, statemachine.Transition[*doc, S], statemachine.Args) statemachine.Result {
				if calls != nil {
					calls.Add(1)
				}
				return statemachine.Redirect(Fail, nil)
			},
		},
		{From: TheWayToFailure, To: Fail},
	}
}
