// Command fsmworker runs the editorial review workflow: it moves submitted
// documents into review and executes the scheduled transitions that take
// them to publication or rejection.
package main

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/statekit/pkg/broadcast"
	"github.com/dmitrymomot/statekit/pkg/config"
	"github.com/dmitrymomot/statekit/pkg/httpserver"
	"github.com/dmitrymomot/statekit/pkg/logger"
	"github.com/dmitrymomot/statekit/pkg/pg"
	"github.com/dmitrymomot/statekit/pkg/queue"
	"github.com/dmitrymomot/statekit/pkg/redis"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = "fsmworker_migrations"

func main() {
	if err := run(); err != nil {
		slog.Error("fsmworker stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.FromConfig(cfg.Logger), logger.WithTraceContext())
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.MigrateQueue(ctx, pool, log); err != nil {
		return err
	}
	if err := pg.MigrateFS(ctx, pool, migrations, "migrations", migrationsTable, log); err != nil {
		return err
	}
	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	locker, lockerChecks, closeLocker, err := newLocker(ctx, cfg, pool, log)
	if err != nil {
		return err
	}
	defer closeLocker()
	checks = append(checks, lockerChecks...)

	tasks := pg.NewQueueRepository(pool, cfg.Queue.RetryBackoff)
	enqueuer, err := queue.NewEnqueuer(tasks, queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries))
	if err != nil {
		return fmt.Errorf("create enqueuer: %w", err)
	}
	worker, err := queue.NewWorker(tasks, queue.WithWorkerConfig(cfg.Queue), queue.WithWorkerLogger(log))
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	events := broadcast.NewMemoryBroadcaster[statemachine.StateChanged](cfg.Worker.EventBuffer)
	defer events.Close()

	bus := statemachine.NewEventBus(log)
	bus.OnState(documentsTable, statusField, Published, func(ctx context.Context, evt statemachine.StateChanged) error {
		log.InfoContext(ctx, "document published", logger.EntityID(evt.EntityID))
		return nil
	})
	bus.OnState(documentsTable, statusField, Rejected, func(ctx context.Context, evt statemachine.StateChanged) error {
		if doc, ok := evt.Entity.(*Document); ok {
			log.InfoContext(ctx, "document rejected",
				logger.EntityID(evt.EntityID),
				slog.String("reason", doc.Reason))
		}
		return nil
	})

	machine, err := newReviewMachine(cfg.Review,
		statemachine.WithConfig(cfg.Machine),
		statemachine.WithLocker(locker),
		statemachine.WithEnqueuer(enqueuer),
		statemachine.WithNotifier(statemachine.MultiNotifier{
			bus,
			statemachine.NewBroadcastNotifier(events, log),
		}),
		statemachine.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("create review machine: %w", err)
	}

	docs := newDocumentStore(pool)
	dispatcher := statemachine.NewDispatcher(log)
	if err := statemachine.Register(dispatcher, machine, documentsTable, docs.Load); err != nil {
		return err
	}
	if err := worker.RegisterHandlers(dispatcher.Handler()); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	sw := &sweeper{
		docs:     docs,
		machine:  machine,
		interval: cfg.Worker.SweepInterval,
		batch:    cfg.Worker.SweepBatch,
		logger:   log.With(logger.Component("fsmworker.sweeper")),
	}
	ops := httpserver.NewFromConfig(cfg.Ops, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(func() error { return sw.Run(ctx) })
	g.Go(func() error { return recordHistory(ctx, events, docs, log) })
	g.Go(func() error {
		return ops.Run(ctx, httpserver.OpsHandler(log, nil, cfg.Ops.CheckTimeout, checks...))
	})

	log.InfoContext(ctx, "fsmworker started", slog.String("lock_backend", cfg.Worker.LockBackend))
	return g.Wait()
}

// newLocker builds the cross-process entity lock selected by LOCK_BACKEND.
func newLocker(ctx context.Context, cfg appConfig, pool *pgxpool.Pool, log *slog.Logger) (statemachine.Locker, []httpserver.Check, func(), error) {
	switch cfg.Worker.LockBackend {
	case lockBackendPostgres, "":
		locker, err := pg.NewRowLocker(pool,
			pg.WithTable(documentsTable, documentsTable),
			pg.WithLockTimeout(cfg.PG.LockTimeout),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create row locker: %w", err)
		}
		return locker, nil, func() {}, nil

	case lockBackendRedis:
		var rc redisConfig
		if err := config.Load(&rc); err != nil {
			return nil, nil, nil, fmt.Errorf("load redis config: %w", err)
		}
		client, err := redis.Connect(ctx, rc.Conn)
		if err != nil {
			return nil, nil, nil, err
		}
		closeClient := func() {
			if err := client.Close(); err != nil {
				log.Error("failed to close redis client", logger.Error(err))
			}
		}
		checks := []httpserver.Check{{Name: "redis", Fn: redis.Healthcheck(client)}}
		// The lease covers a database transaction, so the status change and
		// the scheduled task commit before another process can take the lease.
		lease := redis.NewLocker(client, rc.Lock)
		locker := statemachine.LockerFunc(func(ctx context.Context, entityType, id string, fn func(context.Context) error) error {
			return lease.WithLock(ctx, entityType, id, func(ctx context.Context) error {
				return pg.WithTx(ctx, pool, fn)
			})
		})
		return locker, checks, closeClient, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Worker.LockBackend)
	}
}
