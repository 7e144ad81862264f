package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/vietddude/lnbridge/internal/core/domain"
)

// MockPublisher for testing
type MockPublisher struct {
	mu        sync.Mutex
	Published []published
	Err       error
}

type published struct {
	Kind    domain.EventKind
	Payload []byte
}

func (m *MockPublisher) Publish(ctx context.Context, kind domain.EventKind, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Published = append(m.Published, published{Kind: kind, Payload: payload})
	return nil
}

func received(amount uint64) domain.PaymentReceived {
	var h domain.PaymentHash
	h[0] = byte(amount)
	h[31] = 0xff
	return domain.PaymentReceived{PaymentHash: h, AmountMsat: amount}
}

func drain(s *Subscriber) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestDispatcher_FanOutInOrder(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil)
	ctx := context.Background()

	subs := []*Subscriber{
		NewSubscriber("a", 8),
		NewSubscriber("b", 8),
		NewSubscriber("c", 8),
	}
	for _, s := range subs {
		d.Subscribe(s)
	}

	events := []domain.Event{
		received(1),
		domain.ChannelReady{UserChannelID: 7},
		received(2),
	}
	for _, ev := range events {
		report := d.Notify(ctx, ev)
		if report.Delivered != 3 || report.Failed != 0 {
			t.Fatalf("expected 3 deliveries and no failures, got %+v", report)
		}
	}

	for _, s := range subs {
		got := drain(s)
		if len(got) != len(events) {
			t.Fatalf("subscriber %s: expected %d events, got %d", s.Name(), len(events), len(got))
		}
		for i := range events {
			if got[i] != events[i] {
				t.Errorf("subscriber %s: event %d out of order: got %+v want %+v", s.Name(), i, got[i], events[i])
			}
		}
	}
}

func TestDispatcher_BrokerWhitelist(t *testing.T) {
	pub := &MockPublisher{}
	d := NewDispatcher(NewRegistry(), pub, nil)
	ctx := context.Background()

	others := []domain.Event{
		domain.PaymentSuccessful{},
		domain.PaymentFailed{},
		domain.ChannelPending{},
		domain.ChannelReady{},
		domain.ChannelClosed{},
	}
	for _, ev := range others {
		if report := d.Notify(ctx, ev); report.Published {
			t.Errorf("%s must not be published", ev.Kind())
		}
	}
	if len(pub.Published) != 0 {
		t.Fatalf("expected 0 broker publishes, got %d", len(pub.Published))
	}

	ev := received(42)
	if report := d.Notify(ctx, ev); !report.Published {
		t.Fatalf("expected payment received to be published, report %+v", report)
	}
	if len(pub.Published) != 1 {
		t.Fatalf("expected 1 broker publish, got %d", len(pub.Published))
	}

	msg := pub.Published[0]
	if msg.Kind != domain.EventKindPaymentReceived {
		t.Errorf("expected kind paymentreceived, got %s", msg.Kind)
	}
	var body struct {
		PaymentHash string `json:"payment_hash"`
		AmountMsat  uint64 `json:"amount_msat"`
	}
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body.PaymentHash != ev.PaymentHash.String() || body.AmountMsat != 42 {
		t.Errorf("unexpected payload %s", msg.Payload)
	}
}

func TestDispatcher_BrokerFailureDoesNotBlockFanOut(t *testing.T) {
	pub := &MockPublisher{Err: errors.New("connection reset")}
	d := NewDispatcher(NewRegistry(), pub, nil)
	sub := NewSubscriber("a", 1)
	d.Subscribe(sub)

	report := d.Notify(context.Background(), received(1))
	if report.BrokerErr == nil {
		t.Error("expected broker error in report")
	}
	if report.Delivered != 1 {
		t.Errorf("expected delivery despite broker failure, got %+v", report)
	}
}

func TestDispatcher_UnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil)
	ctx := context.Background()

	first := NewSubscriber("first", 4)
	second := NewSubscriber("second", 4)
	d.Subscribe(first)
	d.Subscribe(second)

	d.Notify(ctx, received(1))

	if err := d.Unsubscribe(first); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	d.Notify(ctx, received(2))

	if got := drain(first); len(got) != 1 {
		t.Errorf("expected first to see only the event before unsubscribe, got %d", len(got))
	}
	if got := drain(second); len(got) != 2 {
		t.Errorf("expected second to see both events, got %d", len(got))
	}

	if _, ok := <-first.Events(); ok {
		t.Error("expected channel of unsubscribed handle to be closed")
	}

	if err := d.Unsubscribe(first); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("expected ErrSubscriberNotFound on second unsubscribe, got %v", err)
	}
}

func TestDispatcher_UnsubscribeUnknown(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil)
	if err := d.Unsubscribe(NewSubscriber("never", 1)); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("expected ErrSubscriberNotFound, got %v", err)
	}
}

func TestDispatcher_RemovesFullSubscriber(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil)
	ctx := context.Background()

	slow := NewSubscriber("slow", 1)
	fast := NewSubscriber("fast", 8)
	d.Subscribe(slow)
	d.Subscribe(fast)

	d.Notify(ctx, received(1))
	report := d.Notify(ctx, received(2))

	if report.Failed != 1 || report.Delivered != 1 {
		t.Fatalf("expected 1 failure and 1 delivery, got %+v", report)
	}
	if d.SubscriberCount() != 1 {
		t.Fatalf("expected full subscriber to be removed, count %d", d.SubscriberCount())
	}

	// slow keeps the event it buffered, then sees its channel closed
	if got := drain(slow); len(got) != 1 {
		t.Errorf("expected 1 buffered event for slow subscriber, got %d", len(got))
	}
	if err := d.Unsubscribe(slow); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("expected removed subscriber to be unknown, got %v", err)
	}

	d.Notify(ctx, received(3))
	if got := drain(fast); len(got) != 3 {
		t.Errorf("expected fast subscriber to keep receiving, got %d", len(got))
	}
}

func TestDispatcher_RemovesClosedSubscriber(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil)
	ctx := context.Background()

	gone := NewSubscriber("gone", 8)
	alive := NewSubscriber("alive", 8)
	d.Subscribe(gone)
	d.Subscribe(alive)

	gone.Close()
	report := d.Notify(ctx, received(1))

	if report.Failed != 1 || report.Delivered != 1 {
		t.Fatalf("expected 1 failure and 1 delivery, got %+v", report)
	}
	if d.SubscriberCount() != 1 {
		t.Errorf("expected closed subscriber to be removed, count %d", d.SubscriberCount())
	}
}

func TestDispatcher_DuplicateRegistration(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil)
	ctx := context.Background()

	s := NewSubscriber("twice", 8)
	d.Subscribe(s)
	d.Subscribe(s)

	if report := d.Notify(ctx, received(1)); report.Delivered != 2 {
		t.Fatalf("expected 2 deliveries for a handle registered twice, got %+v", report)
	}

	if err := d.Unsubscribe(s); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if d.SubscriberCount() != 1 {
		t.Fatalf("expected one registration left, got %d", d.SubscriberCount())
	}
	if report := d.Notify(ctx, received(2)); report.Delivered != 1 {
		t.Errorf("expected 1 delivery, got %+v", report)
	}
	if got := drain(s); len(got) != 3 {
		t.Errorf("expected 3 events total, got %d", len(got))
	}
}

func TestDispatcher_ResubscribeAfterRemoval(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil)
	ctx := context.Background()

	s := NewSubscriber("again", 1)
	other := NewSubscriber("other", 8)
	d.Subscribe(s)
	d.Subscribe(other)
	if err := d.Unsubscribe(s); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	d.Subscribe(s)

	report := d.Notify(ctx, received(1))
	if report.Failed != 1 || report.Delivered != 1 {
		t.Fatalf("expected the detached handle to fail delivery, got %+v", report)
	}
	if d.SubscriberCount() != 1 {
		t.Errorf("expected detached handle to be dropped, count %d", d.SubscriberCount())
	}

	// a handle removed for being full is detached the same way
	full := NewSubscriber("full", 1)
	d.Subscribe(full)
	d.Notify(ctx, received(2))
	d.Notify(ctx, received(3))
	d.Subscribe(full)
	if report := d.Notify(ctx, received(4)); report.Failed != 1 {
		t.Errorf("expected re-registered full handle to fail, got %+v", report)
	}
	if got := drain(other); len(got) != 4 {
		t.Errorf("expected other subscriber to receive every event, got %d", len(got))
	}
}

func TestDispatcher_ConcurrentSubscribe(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := NewSubscriber("worker", 128)
			d.Subscribe(s)
			_ = d.Unsubscribe(s)
		}()
		go func() {
			defer wg.Done()
			d.Notify(ctx, received(uint64(i)))
		}()
	}
	wg.Wait()

	if d.SubscriberCount() != 0 {
		t.Errorf("expected all subscribers removed, got %d", d.SubscriberCount())
	}
}
