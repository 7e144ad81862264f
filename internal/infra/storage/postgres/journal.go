package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vietddude/lnbridge/internal/infra/storage"
)

// Journal implements storage.Journal on the node_events table.
type Journal struct {
	db *DB
}

var _ storage.Journal = (*Journal)(nil)

// NewJournal creates a journal backed by db.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

const insertEvent = `
INSERT INTO node_events (id, kind, payload, received_at)
VALUES (:id, :kind, :payload, :received_at)
ON CONFLICT (id) DO NOTHING`

// Append stores a record. Re-appending the same id is a no-op.
func (j *Journal) Append(ctx context.Context, rec storage.Record) error {
	if _, err := j.db.NamedExecContext(ctx, insertEvent, rec); err != nil {
		return fmt.Errorf("failed to insert event %s: %w", rec.ID, err)
	}
	return nil
}

// List returns records newest first.
func (j *Journal) List(ctx context.Context, filter storage.ListFilter) ([]storage.Record, error) {
	query, args := listQuery(filter)

	var recs []storage.Record
	if err := j.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return recs, nil
}

func listQuery(filter storage.ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		where = append(where, fmt.Sprintf("received_at > $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT id, kind, payload, received_at FROM node_events")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, filter.EffectiveLimit())
	fmt.Fprintf(&b, " ORDER BY received_at DESC LIMIT $%d", len(args))
	return b.String(), args
}

// Prune deletes records received before the cutoff.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM node_events WHERE received_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying connection pool.
func (j *Journal) Close() error {
	return j.db.Close()
}
