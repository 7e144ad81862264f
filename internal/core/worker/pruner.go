package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/lnbridge/internal/infra/storage"
)

// Pruner deletes journaled events older than the retention period.
type Pruner struct {
	retention time.Duration
	journal   storage.Pruner
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, journal storage.Pruner, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		journal:   journal,
		log:       log.With("component", "pruner"),
	}
}

// Interval is how often the pruner runs: 10% of the retention period,
// between one minute and one hour.
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	removed, err := p.journal.Prune(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune journal", "cutoff", cutoff, "error", err)
		return
	}
	if removed > 0 {
		p.log.Info("Pruned journal", "removed", removed, "cutoff", cutoff)
	}
}
