// Package sink attaches persistent consumers to the dispatcher.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/dispatch"
	"github.com/vietddude/lnbridge/internal/infra/storage"
	"github.com/vietddude/lnbridge/internal/metrics"
)

// writeTimeout bounds a single sink write.
const writeTimeout = 5 * time.Second

// Sink consumes dispatched events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev domain.Event) error
}

// Journal adapts a storage.Journal to a Sink.
type Journal struct {
	journal storage.Journal
}

func NewJournal(j storage.Journal) *Journal {
	return &Journal{journal: j}
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Write(ctx context.Context, ev domain.Event) error {
	rec, err := storage.NewRecord(ev, time.Now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return j.journal.Append(ctx, rec)
}

// Runner feeds one dispatcher subscription into a set of sinks.
type Runner struct {
	dispatcher *dispatch.Dispatcher
	sinks      []Sink
	capacity   int
	retry      RetryStrategy
	log        *slog.Logger
}

// NewRunner creates a runner. capacity sizes the subscription buffer.
func NewRunner(d *dispatch.Dispatcher, capacity int, log *slog.Logger, sinks ...Sink) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		dispatcher: d,
		sinks:      sinks,
		capacity:   capacity,
		retry:      DefaultBackoff(),
		log:        log.With("component", "sink"),
	}
}

// Run subscribes and writes every event to each sink until ctx is done.
// When the dispatcher drops the subscription for falling behind, Run
// subscribes again so sinks keep receiving later events.
func (r *Runner) Run(ctx context.Context) {
	if len(r.sinks) == 0 {
		return
	}
	for {
		sub := dispatch.NewSubscriber("sinks", r.capacity)
		r.dispatcher.Subscribe(sub)

		if r.drain(ctx, sub) {
			sub.Close()
			_ = r.dispatcher.Unsubscribe(sub)
			return
		}
		r.log.Warn("Sink subscription dropped, resubscribing")
	}
}

// drain returns true when ctx is done and false when the subscription ended.
func (r *Runner) drain(ctx context.Context, sub *dispatch.Subscriber) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-sub.Events():
			if !ok {
				return ctx.Err() != nil
			}
			r.write(ctx, ev)
		}
	}
}

// SetRetryStrategy replaces the default backoff for failed writes.
func (r *Runner) SetRetryStrategy(s RetryStrategy) {
	r.retry = s
}

func (r *Runner) write(ctx context.Context, ev domain.Event) {
	for _, s := range r.sinks {
		if err := r.writeWithRetry(ctx, s, ev); err != nil {
			metrics.SinkWrites.WithLabelValues(s.Name(), "error").Inc()
			r.log.Error("Sink write failed", "sink", s.Name(), "kind", ev.Kind(), "error", err)
			continue
		}
		metrics.SinkWrites.WithLabelValues(s.Name(), "ok").Inc()
	}
}

func (r *Runner) writeWithRetry(ctx context.Context, s Sink, ev domain.Event) error {
	for attempt := 0; ; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := s.Write(wctx, ev)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !r.retry.ShouldRetry(err, attempt) {
			return err
		}

		metrics.SinkWrites.WithLabelValues(s.Name(), "retry").Inc()
		delay := r.retry.GetDelay(attempt)
		r.log.Debug("Retrying sink write", "sink", s.Name(), "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
}
