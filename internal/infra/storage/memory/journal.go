package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/lnbridge/internal/infra/storage"
)

// DefaultCapacity is the number of records kept when none is configured.
const DefaultCapacity = 1024

// Journal is a fixed size ring of records. The oldest record is overwritten
// once the ring is full.
type Journal struct {
	mu     sync.RWMutex
	ring   []storage.Record
	next   int
	full   bool
	closed bool
}

var _ storage.Journal = (*Journal)(nil)

func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{ring: make([]storage.Record, capacity)}
}

func (j *Journal) Append(ctx context.Context, rec storage.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return storage.ErrJournalClosed
	}
	j.ring[j.next] = rec
	j.next = (j.next + 1) % len(j.ring)
	if j.next == 0 {
		j.full = true
	}
	return nil
}

func (j *Journal) List(ctx context.Context, filter storage.ListFilter) ([]storage.Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	size := j.next
	if j.full {
		size = len(j.ring)
	}
	limit := filter.EffectiveLimit()

	out := make([]storage.Record, 0, min(limit, size))
	for i := 1; i <= size && len(out) < limit; i++ {
		rec := j.ring[(j.next-i+len(j.ring))%len(j.ring)]
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if !filter.Since.IsZero() && !rec.ReceivedAt.After(filter.Since) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Prune drops records received before the cutoff, keeping the order of the rest.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, storage.ErrJournalClosed
	}

	size := j.next
	if j.full {
		size = len(j.ring)
	}
	kept := make([]storage.Record, 0, size)
	for i := size; i >= 1; i-- {
		rec := j.ring[(j.next-i+len(j.ring))%len(j.ring)]
		if rec.ReceivedAt.Before(before) {
			continue
		}
		kept = append(kept, rec)
	}

	ring := make([]storage.Record, len(j.ring))
	copy(ring, kept)
	j.ring = ring
	j.next = len(kept) % len(ring)
	j.full = len(kept) == len(ring)
	return int64(size - len(kept)), nil
}

// Len returns the number of stored records.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.full {
		return len(j.ring)
	}
	return j.next
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}
