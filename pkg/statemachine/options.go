package statemachine

import (
	"log/slog"
)

// Config holds the tunables of a machine that are usually set from the environment.
type Config struct {
	// MaxHops bounds the number of hops a single TransitionThrough call may take
	// and the length of a chain of side effect redirects.
	MaxHops int `env:"STATEMACHINE_MAX_HOPS" envDefault:"64"`
}

const defaultMaxHops = 64

// Option configures a state machine during construction.
type Option func(*options)

type options struct {
	locker   Locker
	registry *LockRegistry
	notifier Notifier
	enqueuer Enqueuer
	logger   *slog.Logger
	labels   any
	maxHops  int
}

func defaultOptions() *options {
	return &options{
		locker:   NopLocker{},
		registry: defaultRegistry,
		logger:   slog.Default(),
		maxHops:  defaultMaxHops,
	}
}

// WithConfig applies values loaded from the environment.
func WithConfig(cfg Config) Option {
	return WithMaxHops(cfg.MaxHops)
}

// WithLocker sets the cross-process lock provider used for persisted entities.
func WithLocker(locker Locker) Option {
	return func(o *options) {
		if locker != nil {
			o.locker = locker
		}
	}
}

// WithLockRegistry replaces the process-wide registry of in-process locks.
// Machines sharing entities must share a registry.
func WithLockRegistry(r *LockRegistry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithNotifier sets the sink receiving completion events.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithEnqueuer enables asynchronous transitions.
func WithEnqueuer(e Enqueuer) Option {
	return func(o *options) {
		o.enqueuer = e
	}
}

// WithLogger sets the logger, ignoring nil.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxHops bounds TransitionThrough and chains of side effect redirects.
// Non-positive values are ignored.
func WithMaxHops(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHops = n
		}
	}
}

// WithStateLabels registers human-readable labels used in error messages,
// logs and metrics. The map key type must match the machine's state type.
func WithStateLabels[S comparable](labels map[S]string) Option {
	return func(o *options) {
		o.labels = labels
	}
}
