// Package pg is the PostgreSQL backend of statekit, built on pgx/v5 and goose.
//
// It covers connecting with retries (Connect), schema migrations (Migrate for
// application migrations, MigrateQueue for the embedded task queue schema),
// health checks and error classification helpers.
//
// # Entity locking
//
// RowLocker implements statemachine.Locker with SELECT ... FOR UPDATE on the
// entity row. The lock lives in a transaction that is carried by the context
// handed to the locked function, so a state machine refresh and save made
// through Conn run inside the same transaction and commit atomically:
//
//	locker, err := pg.NewRowLocker(pool,
//	    pg.WithTable("documents", "public.documents"),
//	    pg.WithLockTimeout(cfg.LockTimeout),
//	)
//
//	func (r *Repo) Save(ctx context.Context, d *Doc) error {
//	    _, err := pg.Conn(ctx, r.pool).Exec(ctx,
//	        "UPDATE documents SET status = $2 WHERE id = $1", d.ID, d.Status)
//	    return err
//	}
//
// # Task queue
//
// QueueRepository stores queue tasks with FOR UPDATE SKIP LOCKED claims, so any
// number of workers can share one table. Tasks enqueued while an entity lock
// is held are written in the locking transaction.
//
// # Configuration
//
// Config is populated from PG_* environment variables via
// github.com/caarlos0/env; see the field tags for names and defaults.
package pg
