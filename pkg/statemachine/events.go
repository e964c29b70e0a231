package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/statekit/pkg/broadcast"
	"github.com/dmitrymomot/statekit/pkg/logger"
)

// StateChanged describes the final state reached by a top-level transition call.
type StateChanged struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Field      string    `json:"field"`
	State      any       `json:"state"`
	Entity     any       `json:"-"`
	At         time.Time `json:"at"`
}

// Notifier receives completion events. Notify must not block for long; it
// runs on the goroutine that performed the transition, after all locks are
// released.
type Notifier interface {
	Notify(ctx context.Context, evt StateChanged)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, evt StateChanged)

func (f NotifierFunc) Notify(ctx context.Context, evt StateChanged) {
	f(ctx, evt)
}

// MultiNotifier fans an event out to every notifier in order. A panicking
// notifier is logged with the default logger and the rest still run.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, evt StateChanged) {
	for _, n := range m {
		if n != nil {
			notifyOne(ctx, n, evt)
		}
	}
}

func notifyOne(ctx context.Context, n Notifier, evt StateChanged) {
	defer func() {
		if r := recover(); r != nil {
			notificationFailures.WithLabelValues(evt.EntityType).Inc()
			slog.Default().ErrorContext(ctx, "state change notifier panicked",
				logger.EntityType(evt.EntityType),
				logger.EntityID(evt.EntityID),
				slog.Any("panic", r))
		}
	}()
	n.Notify(ctx, evt)
}

// Subscriber handles a completion event. Returned errors are logged by the bus.
type Subscriber func(ctx context.Context, evt StateChanged) error

// EventBus delivers completion events to subscribers. Each subscriber runs
// in isolation: an error or a panic is logged and never reaches other
// subscribers or the transition that produced the event.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[uint64]Subscriber
	order  []uint64
	nextID uint64
	logger *slog.Logger
}

// NewEventBus creates an empty bus. A nil logger falls back to slog.Default.
func NewEventBus(l *slog.Logger) *EventBus {
	if l == nil {
		l = slog.Default()
	}
	return &EventBus{
		subs:   make(map[uint64]Subscriber),
		logger: l.With(logger.Component("statemachine.events")),
	}
}

// Subscribe registers fn for every event and returns a func removing it.
func (b *EventBus) Subscribe(fn Subscriber) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// OnState registers fn for events where the given field of entityType
// reaches state.
func (b *EventBus) OnState(entityType, field string, state any, fn Subscriber) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return b.Subscribe(func(ctx context.Context, evt StateChanged) error {
		if evt.EntityType != entityType || evt.Field != field || evt.State != state {
			return nil
		}
		return fn(ctx, evt)
	})
}

// Notify implements Notifier.
func (b *EventBus) Notify(ctx context.Context, evt StateChanged) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, id := range b.order {
		subs = append(subs, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		if err := b.call(ctx, fn, evt); err != nil {
			notificationFailures.WithLabelValues(evt.EntityType).Inc()
			b.logger.ErrorContext(ctx, "state change subscriber failed",
				logger.EntityType(evt.EntityType),
				logger.EntityID(evt.EntityID),
				logger.Field(evt.Field),
				logger.State(evt.State),
				logger.Error(err))
		}
	}
}

func (b *EventBus) call(ctx context.Context, fn Subscriber, evt StateChanged) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return fn(ctx, evt)
}

// BroadcastNotifier publishes completion events to a broadcaster so that
// consumers can receive them over a channel.
type BroadcastNotifier struct {
	b      broadcast.Broadcaster[StateChanged]
	logger *slog.Logger
}

func NewBroadcastNotifier(b broadcast.Broadcaster[StateChanged], l *slog.Logger) *BroadcastNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &BroadcastNotifier{b: b, logger: l}
}

func (n *BroadcastNotifier) Notify(ctx context.Context, evt StateChanged) {
	if err := n.b.Broadcast(ctx, broadcast.Message[StateChanged]{Data: evt}); err != nil {
		notificationFailures.WithLabelValues(evt.EntityType).Inc()
		n.logger.ErrorContext(ctx, "failed to broadcast state change",
			logger.EntityType(evt.EntityType),
			logger.EntityID(evt.EntityID),
			logger.Error(err))
	}
}
