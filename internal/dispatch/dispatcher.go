// Package dispatch fans node events out to in-process subscribers and, for a
// whitelisted subset, to an external broker.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/metrics"
)

// ErrSubscriberNotFound is returned when unsubscribing a handle that is not registered.
var ErrSubscriberNotFound = errors.New("subscriber not found")

// Publisher forwards serialized events to an external exchange.
type Publisher interface {
	Publish(ctx context.Context, kind domain.EventKind, payload []byte) error
}

// Report summarizes one Notify call.
type Report struct {
	Delivered int
	Failed    int
	Published bool
	BrokerErr error
}

// Dispatcher is the single fan-out point. One mutex guards the registry and
// the delivery path, so events never interleave.
type Dispatcher struct {
	mu        sync.Mutex
	registry  *Registry
	publisher Publisher
	log       *slog.Logger

	lastEvent time.Time
}

// NewDispatcher creates a dispatcher over an owned registry. publisher may be
// nil when no broker is configured.
func NewDispatcher(registry *Registry, publisher Publisher, log *slog.Logger) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		publisher: publisher,
		log:       log.With("component", "dispatcher"),
	}
}

// Subscribe registers a handle.
func (d *Dispatcher) Subscribe(s *Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.registry.Add(s)
	metrics.Subscribers.Set(float64(d.registry.Len()))
	d.log.Debug("Subscriber registered", "subscriber", s.Name(), "count", d.registry.Len())
}

// Unsubscribe removes the first registration of s. Once s has no
// registrations left its channel is closed.
func (d *Dispatcher) Unsubscribe(s *Subscriber) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registry.Remove(s) {
		return ErrSubscriberNotFound
	}
	if !d.registry.Contains(s) {
		s.detach()
	}
	metrics.Subscribers.Set(float64(d.registry.Len()))
	d.log.Debug("Subscriber removed", "subscriber", s.Name(), "count", d.registry.Len())
	return nil
}

// SubscriberCount returns the number of registrations.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry.Len()
}

// LastEventAt returns when the last event was dispatched.
func (d *Dispatcher) LastEventAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastEvent
}

// BrokerEnabled reports whether a publisher is attached.
func (d *Dispatcher) BrokerEnabled() bool {
	return d.publisher != nil
}

// Notify publishes ev to the broker when applicable and delivers it to every
// registered handle in order. Handles that could not take the event are
// removed before Notify returns.
func (d *Dispatcher) Notify(ctx context.Context, ev domain.Event) Report {
	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var report Report

	if d.publisher != nil {
		if payload, ok := BrokerPayload(ev); ok {
			if err := d.publisher.Publish(ctx, ev.Kind(), payload); err != nil {
				report.BrokerErr = err
				metrics.BrokerPublishes.WithLabelValues(ev.Kind().String(), "error").Inc()
				d.log.Error("Failed to publish event to broker", "kind", ev.Kind(), "error", err)
			} else {
				report.Published = true
				metrics.BrokerPublishes.WithLabelValues(ev.Kind().String(), "ok").Inc()
			}
		}
	}

	var failed map[*Subscriber]struct{}
	d.registry.Each(func(s *Subscriber) {
		if err := s.deliver(ev); err != nil {
			if failed == nil {
				failed = make(map[*Subscriber]struct{})
			}
			failed[s] = struct{}{}
			report.Failed++
			metrics.DeliveryFailures.WithLabelValues(s.Name(), failureReason(err)).Inc()
			d.log.Warn("Delivery to subscriber failed",
				"subscriber", s.Name(), "kind", ev.Kind(), "error", err)
			return
		}
		report.Delivered++
	})

	if len(failed) > 0 {
		d.registry.compact(failed)
		for s := range failed {
			s.detach()
		}
		metrics.Subscribers.Set(float64(d.registry.Len()))
		d.log.Info("Removed failed subscribers", "removed", len(failed), "remaining", d.registry.Len())
	}

	d.lastEvent = time.Now()
	metrics.EventsDispatched.WithLabelValues(ev.Kind().String()).Inc()
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())

	return report
}

// brokerMessage is the wire body published for payment-received events.
type brokerMessage struct {
	PaymentHash string `json:"payment_hash"`
	AmountMsat  uint64 `json:"amount_msat"`
}

// BrokerPayload returns the broker body for ev and false for kinds that are
// kept in-process.
func BrokerPayload(ev domain.Event) ([]byte, bool) {
	switch e := ev.(type) {
	case domain.PaymentReceived:
		body, err := json.Marshal(brokerMessage{
			PaymentHash: e.PaymentHash.String(),
			AmountMsat:  e.AmountMsat,
		})
		if err != nil {
			return nil, false
		}
		return body, true
	default:
		return nil, false
	}
}
