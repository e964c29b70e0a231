package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/statekit/pkg/pg"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

const documentsTable = "documents"

var errDocumentNotFound = errors.New("document not found")

// Document is a piece of content moving through editorial review.
type Document struct {
	ID          uuid.UUID
	Title       string
	Body        string
	Status      statemachine.StringState
	Revision    int
	Reason      string
	PublishedAt *time.Time
	UpdatedAt   time.Time

	store documentStore
}

type documentStore interface {
	get(ctx context.Context, id uuid.UUID) (*Document, error)
	put(ctx context.Context, d *Document) error
}

func (d *Document) EntityType() string { return documentsTable }

func (d *Document) EntityID() string {
	if d.ID == uuid.Nil {
		return ""
	}
	return d.ID.String()
}

func (d *Document) Save(ctx context.Context) error {
	d.UpdatedAt = time.Now().UTC()
	return d.store.put(ctx, d)
}

func (d *Document) Refresh(ctx context.Context) error {
	fresh, err := d.store.get(ctx, d.ID)
	if err != nil {
		return err
	}
	store := d.store
	*d = *fresh
	d.store = store
	return nil
}

// pgDocuments reads and writes documents through the transaction carried by
// ctx, so saves made under an entity lock commit with it.
type pgDocuments struct {
	pool *pgxpool.Pool
}

func newDocumentStore(pool *pgxpool.Pool) *pgDocuments {
	return &pgDocuments{pool: pool}
}

// Load implements statemachine.Loader for the dispatcher.
func (s *pgDocuments) Load(ctx context.Context, id string) (*Document, error) {
	docID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errDocumentNotFound, id)
	}
	return s.get(ctx, docID)
}

func (s *pgDocuments) get(ctx context.Context, id uuid.UUID) (*Document, error) {
	d := &Document{store: s}
	var status string
	err := pg.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT id, title, body, status, revision, reason, published_at, updated_at
		FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.Title, &d.Body, &status, &d.Revision, &d.Reason, &d.PublishedAt, &d.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", errDocumentNotFound, id)
		}
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	d.Status = statemachine.StringState(status)
	return d, nil
}

func (s *pgDocuments) put(ctx context.Context, d *Document) error {
	_, err := pg.Conn(ctx, s.pool).Exec(ctx, `
		UPDATE documents
		SET title = $2, body = $3, status = $4, revision = $5, reason = $6, published_at = $7, updated_at = $8
		WHERE id = $1`,
		d.ID, d.Title, d.Body, string(d.Status), d.Revision, d.Reason, d.PublishedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save document %s: %w", d.ID, err)
	}
	return nil
}

// pending returns up to limit documents waiting in status, oldest first.
func (s *pgDocuments) pending(ctx context.Context, status statemachine.StringState, limit int) ([]uuid.UUID, error) {
	rows, err := pg.Conn(ctx, s.pool).Query(ctx, `
		SELECT id FROM documents WHERE status = $1 ORDER BY updated_at LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s documents: %w", status, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list %s documents: %w", status, err)
	}
	return ids, nil
}

func (s *pgDocuments) appendHistory(ctx context.Context, evt statemachine.StateChanged) error {
	_, err := pg.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO document_history (document_id, status, changed_at) VALUES ($1::uuid, $2, $3)`,
		evt.EntityID, fmt.Sprint(evt.State), evt.At)
	if err != nil {
		return fmt.Errorf("record history of document %s: %w", evt.EntityID, err)
	}
	return nil
}
