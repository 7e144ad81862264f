package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

var (
	// ErrJournalClosed is returned when writing to a closed journal
	ErrJournalClosed = errors.New("journal closed")
)

// DefaultListLimit caps List results when no limit is given.
const DefaultListLimit = 100

// Record is one journaled node event.
type Record struct {
	ID         uuid.UUID        `db:"id" json:"id"`
	Kind       domain.EventKind `db:"kind" json:"kind"`
	Payload    json.RawMessage  `db:"payload" json:"payload"`
	ReceivedAt time.Time        `db:"received_at" json:"received_at"`
}

// NewRecord serializes ev into a journal record.
func NewRecord(ev domain.Event, at time.Time) (Record, error) {
	payload, err := domain.MarshalEvent(ev)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:         uuid.New(),
		Kind:       ev.Kind(),
		Payload:    payload,
		ReceivedAt: at.UTC(),
	}, nil
}

// Event decodes the record payload.
func (r Record) Event() (domain.Event, error) {
	return domain.UnmarshalEvent(r.Payload)
}

// ListFilter narrows List results.
type ListFilter struct {
	// Kind restricts results to one event kind when set
	Kind domain.EventKind

	// Since restricts results to records received after it when set
	Since time.Time

	// Limit caps the number of records, newest first
	Limit int
}

// EffectiveLimit returns Limit or the default.
func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 10*DefaultListLimit {
		return DefaultListLimit
	}
	return f.Limit
}

// Journal stores dispatched node events
type Journal interface {
	// Append stores a record
	Append(ctx context.Context, rec Record) error

	// List returns records newest first
	List(ctx context.Context, filter ListFilter) ([]Record, error)

	// Close releases resources
	Close() error
}

// Pruner is implemented by journals that support a retention window.
type Pruner interface {
	// Prune deletes records received before the cutoff and returns how many
	Prune(ctx context.Context, before time.Time) (int64, error)
}
