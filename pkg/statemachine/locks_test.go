package statemachine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

const (
	Pending  S = "pending"
	Approved S = "approved"
)

func TestConcurrentTransitionsAreSerialized(t *testing.T) {
	t.Parallel()

	st := newStore()
	st.put("c1", Draft)
	reg := statemachine.NewLockRegistry()

	var calls atomic.Int32
	m := newMachine(t, statusField, Draft, []T{
		{From: Draft, To: Review, Name: "submit", SideEffect: func(context.Context, *doc, T, statemachine.Args) statemachine.Result {
			calls.Add(1)
			time.Sleep(5 * time.Millisecond)
			return statemachine.Ok()
		}},
	}, statemachine.WithLockRegistry(reg))

	const n = 8
	var (
		wg                  sync.WaitGroup
		succeeded, rejected atomic.Int32
		start               = make(chan struct{})
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Every caller holds its own stale copy, as separate requests would.
			d, err := st.load(context.Background(), "c1")
			if !assert.NoError(t, err) {
				return
			}
			<-start

			_, err = m.TransitionTo(context.Background(), d, Review, nil)
			switch {
			case err == nil:
				succeeded.Add(1)
			case statemachine.IsNoSuchTransitionError(err):
				assert.Equal(t, Review, d.Status, "loser must observe the committed state")
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "side effect must run once")
	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(n-1), rejected.Load())
	assert.Equal(t, Review, st.status("c1"))
	assert.Zero(t, reg.Len(), "registry entries are dropped after release")
}

func TestCrossProcessLockSerializesMachines(t *testing.T) {
	t.Parallel()

	st := newStore()
	st.put("c2", Draft)

	// Two machines with separate registries stand in for two processes.
	var (
		remote sync.Mutex
		locked atomic.Int32
	)
	locker := statemachine.LockerFunc(func(ctx context.Context, entityType, id string, fn func(context.Context) error) error {
		assert.Equal(t, "document", entityType)
		assert.Equal(t, "c2", id)
		remote.Lock()
		defer remote.Unlock()
		locked.Add(1)
		return fn(ctx)
	})

	var calls atomic.Int32
	ts := []T{{From: Draft, To: Review, Name: "submit", SideEffect: func(context.Context, *doc, T, statemachine.Args) statemachine.Result {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return statemachine.Ok()
	}}}
	m1 := newMachine(t, statusField, Draft, ts, statemachine.WithLocker(locker))
	m2 := newMachine(t, statusField, Draft, ts, statemachine.WithLocker(locker))

	var wg sync.WaitGroup
	for _, m := range []*statemachine.Machine[*doc, S]{m1, m2, m1, m2} {
		d, err := st.load(t.Context(), "c2")
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.TransitionTo(context.Background(), d, Review, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(4), locked.Load())
	assert.Equal(t, Review, st.status("c2"))
}

func TestReentrantTransitionFromSideEffect(t *testing.T) {
	t.Parallel()

	st := newStore()
	st.mu.Lock()
	st.rows["r1"] = row{status: Review, review: Pending}
	st.mu.Unlock()

	reg := statemachine.NewLockRegistry()
	var lockCalls atomic.Int32
	locker := statemachine.LockerFunc(func(ctx context.Context, _, _ string, fn func(context.Context) error) error {
		lockCalls.Add(1)
		return fn(ctx)
	})

	statusEvents, reviewEvents := &events{}, &events{}

	reviews := newMachine(t, reviewField, Pending, []T{{From: Pending, To: Approved}},
		statemachine.WithLockRegistry(reg),
		statemachine.WithLocker(locker),
		statemachine.WithNotifier(reviewEvents))

	statuses := newMachine(t, statusField, Review, []T{
		{From: Review, To: Published, Name: "publish", SideEffect: func(ctx context.Context, d *doc, _ T, _ statemachine.Args) statemachine.Result {
			_, err := reviews.TransitionTo(ctx, d, Approved, nil)
			return statemachine.Fail(err)
		}},
	},
		statemachine.WithLockRegistry(reg),
		statemachine.WithLocker(locker),
		statemachine.WithNotifier(statusEvents))

	d, err := st.load(t.Context(), "r1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := statuses.Invoke(context.Background(), d, "publish", nil)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("nested transition deadlocked")
	}

	assert.Equal(t, Published, d.Status)
	assert.Equal(t, Approved, d.Review)
	assert.Equal(t, int32(1), lockCalls.Load(), "nested call must reuse the held lock")
	assert.Equal(t, int32(2), d.refreshes.Load(), "load and the outer call refresh, the nested call does not")
	assert.Len(t, statusEvents.all(), 1)
	assert.Empty(t, reviewEvents.all(), "nested calls emit no completion event")
	assert.Zero(t, reg.Len())
}

func TestUnpersistedEntitiesLockOnIdentity(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	m := newMachine(t, statusField, Draft, []T{{From: Draft, To: Review, Name: "submit", SideEffect: func(context.Context, *doc, T, statemachine.Args) statemachine.Result {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return statemachine.Ok()
	}}}, statemachine.WithLocker(statemachine.LockerFunc(func(context.Context, string, string, func(context.Context) error) error {
		t.Error("unpersisted entities must not take the cross-process lock")
		return nil
	})))

	d := &doc{Status: Draft}
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.TransitionTo(context.Background(), d, Review, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, d.refreshes.Load(), "unpersisted entities are not refreshed")

	// A second, distinct object is an independent entity.
	other := &doc{Status: Draft}
	_, err := m.TransitionTo(t.Context(), other, Review, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLockFailures(t *testing.T) {
	t.Parallel()

	t.Run("locker error", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		st.put("l1", Draft)
		m := newMachine(t, statusField, Draft, []T{{From: Draft, To: Review}},
			statemachine.WithLocker(statemachine.LockerFunc(func(context.Context, string, string, func(context.Context) error) error {
				return assert.AnError
			})))

		d, err := st.load(t.Context(), "l1")
		require.NoError(t, err)

		_, err = m.TransitionTo(t.Context(), d, Review, nil)
		require.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, Draft, st.status("l1"))
	})

	t.Run("refresh error", func(t *testing.T) {
		t.Parallel()

		st := newStore()
		m := newMachine(t, statusField, Draft, []T{{From: Draft, To: Review}})

		d := &doc{ID: "gone", Status: Draft, store: st}
		_, err := m.TransitionTo(t.Context(), d, Review, nil)
		require.ErrorIs(t, err, errNotStored)
		assert.Contains(t, err.Error(), "refresh document gone")
		assert.Equal(t, Draft, d.Status)
	})

	t.Run("side effect panic releases the lock", func(t *testing.T) {
		t.Parallel()

		reg := statemachine.NewLockRegistry()
		m := newMachine(t, statusField, Draft, []T{{From: Draft, To: Review, Name: "submit", SideEffect: func(context.Context, *doc, T, statemachine.Args) statemachine.Result {
			panic("boom")
		}}}, statemachine.WithLockRegistry(reg))

		d := &doc{Status: Draft}
		assert.Panics(t, func() {
			_, _ = m.TransitionTo(t.Context(), d, Review, nil)
		})
		assert.Zero(t, reg.Len())
		assert.Equal(t, Draft, d.Status)
	})
}

func TestLockRegistry(t *testing.T) {
	t.Parallel()

	reg := statemachine.NewLockRegistry()

	unlock := reg.Lock("a")
	assert.Equal(t, 1, reg.Len())

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		reg.Lock("a")()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}

	other := reg.Lock("b")
	other()

	unlock()
	<-acquired
	assert.Zero(t, reg.Len())

	ephemeral := reg.Lock(nil)
	assert.Zero(t, reg.Len())
	ephemeral()
}

func TestNopLocker(t *testing.T) {
	t.Parallel()

	err := statemachine.NopLocker{}.WithLock(t.Context(), "document", "1", func(context.Context) error {
		return errors.New("inner")
	})
	assert.EqualError(t, err, "inner")
}
