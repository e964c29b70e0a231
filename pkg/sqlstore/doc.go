// Package sqlstore provides database/sql backends for statekit: SQLite through
// the pure Go modernc.org/sqlite driver and MySQL through go-sql-driver/mysql.
//
// Open returns a configured *sql.DB together with its Dialect. RowLocker
// implements statemachine.Locker; the locking transaction is carried by the
// context, and repositories join it through Conn:
//
//	db, dialect, err := sqlstore.Open(ctx, cfg)
//	locker, err := sqlstore.NewRowLocker(db, dialect, sqlstore.WithTable("document", "documents"))
//
//	func (r *Repo) Save(ctx context.Context, d *Doc) error {
//	    _, err := sqlstore.Conn(ctx, r.db).ExecContext(ctx,
//	        "UPDATE documents SET status = ? WHERE id = ?", d.Status, d.ID)
//	    return err
//	}
//
// SQLite has no row locks, so the locker takes the database write lock and
// every locked call is serialized across the whole file.
package sqlstore
