package dispatch

import (
	"errors"
	"sync"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// DefaultCapacity is the buffer size used when a subscriber asks for none.
const DefaultCapacity = 64

var (
	errSubscriberClosed = errors.New("subscriber closed")
	errSubscriberFull   = errors.New("subscriber buffer full")
	errSubscriberGone   = errors.New("subscriber channel already closed")
)

// Subscriber is a delivery handle for one consumer. Handles are compared by
// identity; registering the same handle twice delivers every event twice.
type Subscriber struct {
	name string
	ch   chan domain.Event
	done chan struct{}

	closeOnce sync.Once

	// guarded by the owning dispatcher's lock
	detached bool
}

// NewSubscriber creates a handle whose channel buffers up to capacity events.
func NewSubscriber(name string, capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Subscriber{
		name: name,
		ch:   make(chan domain.Event, capacity),
		done: make(chan struct{}),
	}
}

// Name returns the label used in logs and metrics.
func (s *Subscriber) Name() string { return s.name }

// Events returns the delivery channel. It is closed once the handle is
// removed from the dispatcher.
func (s *Subscriber) Events() <-chan domain.Event { return s.ch }

// Close marks the receiving side as gone. The next delivery fails and the
// dispatcher drops the handle.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// deliver attempts a non-blocking send. A handle whose channel was already
// closed by an earlier removal fails instead of sending.
func (s *Subscriber) deliver(ev domain.Event) error {
	if s.detached {
		return errSubscriberGone
	}
	select {
	case <-s.done:
		return errSubscriberClosed
	default:
	}

	select {
	case s.ch <- ev:
		return nil
	default:
		return errSubscriberFull
	}
}

// detach closes the delivery channel. Only the dispatcher sends on it, and
// it calls detach with its lock held, so no send can race the close.
func (s *Subscriber) detach() {
	if s.detached {
		return
	}
	s.detached = true
	close(s.ch)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errSubscriberClosed):
		return "closed"
	case errors.Is(err, errSubscriberFull):
		return "full"
	case errors.Is(err, errSubscriberGone):
		return "detached"
	default:
		return "unknown"
	}
}
