package statemachine

import (
	"context"
	"reflect"
	"sync"
)

// Locker provides mutual exclusion across processes for a persisted entity.
// Implementations run fn while no other process holds the lock for the same
// entity type and id. The context passed to fn may carry a transaction that
// Entity.Save and Entity.Refresh must join.
type Locker interface {
	WithLock(ctx context.Context, entityType, id string, fn func(ctx context.Context) error) error
}

// LockerFunc adapts a function to the Locker interface.
type LockerFunc func(ctx context.Context, entityType, id string, fn func(ctx context.Context) error) error

func (f LockerFunc) WithLock(ctx context.Context, entityType, id string, fn func(ctx context.Context) error) error {
	return f(ctx, entityType, id, fn)
}

// NopLocker runs fn without a cross-process lock. Suitable for single-process deployments.
type NopLocker struct{}

func (NopLocker) WithLock(ctx context.Context, _, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// LockRegistry hands out in-process mutexes keyed by entity identity.
// Mutexes are created lazily and dropped once the last holder releases them.
type LockRegistry struct {
	mu    sync.Mutex // guards locks; held only while looking up or creating entries
	locks map[any]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

var defaultRegistry = NewLockRegistry()

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[any]*refMutex)}
}

// Lock blocks until the mutex for key is held and returns its release func.
// A nil key yields a private mutex.
func (r *LockRegistry) Lock(key any) (unlock func()) {
	if key == nil {
		var m sync.Mutex
		m.Lock()
		return m.Unlock
	}

	r.mu.Lock()
	m, ok := r.locks[key]
	if !ok {
		m = &refMutex{}
		r.locks[key] = m
	}
	m.refs++
	r.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		r.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

type persistedKey struct {
	entityType string
	id         string
}

// lockKey identifies the entity for the in-process lock: the persisted
// identity when there is one, the object identity otherwise. Entities whose
// dynamic type is not comparable get no shared key.
func lockKey(e Entity) any {
	if id := e.EntityID(); id != "" {
		return persistedKey{entityType: e.EntityType(), id: id}
	}
	if t := reflect.TypeOf(e); t != nil && t.Comparable() {
		return e
	}
	return nil
}

type heldLocksKey struct{}

type heldLock struct {
	key    any
	parent *heldLock
}

// holding reports whether ctx was derived from a call that holds key.
func holding(ctx context.Context, key any) bool {
	if key == nil {
		return false
	}
	for h, _ := ctx.Value(heldLocksKey{}).(*heldLock); h != nil; h = h.parent {
		if h.key == key {
			return true
		}
	}
	return false
}

func withHeld(ctx context.Context, key any) context.Context {
	if key == nil {
		return ctx
	}
	parent, _ := ctx.Value(heldLocksKey{}).(*heldLock)
	return context.WithValue(ctx, heldLocksKey{}, &heldLock{key: key, parent: parent})
}
