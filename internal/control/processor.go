package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/lnbridge/internal/core/domain"
	"github.com/vietddude/lnbridge/internal/dispatch"
	"github.com/vietddude/lnbridge/internal/infra/node"
	"github.com/vietddude/lnbridge/internal/metrics"
)

// DefaultPollInterval is the delay between polls when no event is pending.
const DefaultPollInterval = 100 * time.Millisecond

// TriggerAmountMsat is the amount carried by synthesized payment events.
const TriggerAmountMsat = 350000

// ErrInvalidPaymentHash is returned by TriggerPaymentEvent for malformed hashes.
var ErrInvalidPaymentHash = errors.New("invalid payment hash")

// State is the processor lifecycle state.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ProcessorConfig holds the poll loop settings.
type ProcessorConfig struct {
	PollInterval time.Duration
}

// Processor owns the embedded node's lifecycle and moves its events into the
// dispatcher. Exactly one poll goroutine runs while the processor is running.
type Processor struct {
	cfg        ProcessorConfig
	node       node.Node
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger

	state atomic.Int32

	// mu serializes Start and Stop; cancel and done are set before the
	// state becomes Running.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessor creates a processor in the NotStarted state.
func NewProcessor(cfg ProcessorConfig, n node.Node, d *dispatch.Dispatcher, log *slog.Logger) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		cfg:        cfg,
		node:       n,
		dispatcher: d,
		log:        log.With("component", "processor"),
	}
}

// State returns the current lifecycle state.
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Running reports whether the poll loop is active.
func (p *Processor) Running() bool {
	return p.State() == StateRunning
}

// Status returns the lifecycle state name.
func (p *Processor) Status() string {
	return p.State().String()
}

// Dispatcher returns the dispatcher events are routed through.
func (p *Processor) Dispatcher() *dispatch.Dispatcher {
	return p.dispatcher
}

// Start starts the node and spawns the poll loop. The loop ends when ctx is
// cancelled or Stop is called. A stopped processor cannot be started again.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateStopped:
		return domain.ErrStopped
	case StateNotStarted:
	default:
		return domain.ErrAlreadyStarted
	}
	p.state.Store(int32(StateStarting))

	if err := p.node.Start(); err != nil {
		p.state.Store(int32(StateNotStarted))
		return fmt.Errorf("%w: %w", domain.ErrNodeStart, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.state.Store(int32(StateRunning))

	go p.run(loopCtx, done)

	p.log.Info("Processor started", "node_id", p.node.NodeID(), "poll_interval", p.cfg.PollInterval)
	return nil
}

// Stop ends the poll loop, waiting for it at most until ctx expires, then
// stops the node. A Stop issued while Start is in progress waits for it.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateRunning:
	case StateStopped:
		return domain.ErrStopped
	default:
		return domain.ErrNotStarted
	}
	p.state.Store(int32(StateStopped))

	p.cancel()
	select {
	case <-p.done:
	case <-ctx.Done():
		p.log.Warn("Poll loop did not finish before shutdown deadline")
	}

	if err := p.node.Stop(); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}
	p.log.Info("Processor stopped")
	return nil
}

func (p *Processor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var wake <-chan struct{}
	if n, ok := p.node.(node.EventNotifier); ok {
		wake = n.EventReady()
	}

	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		handled, err := p.pollOnce(ctx)
		if err != nil {
			p.log.Error("Event poll failed", "error", err)
		}
		if handled && err == nil {
			continue
		}

		timer.Reset(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-wake:
		}
	}
}

// pollOnce moves at most one event from the node to the dispatcher. The event
// is acknowledged only after every subscriber was offered it.
func (p *Processor) pollOnce(ctx context.Context) (bool, error) {
	ev, err := p.node.NextEvent()
	if err != nil {
		metrics.PollErrors.WithLabelValues("next").Inc()
		return false, fmt.Errorf("next event: %w", err)
	}
	if ev == nil {
		return false, nil
	}
	metrics.EventsPolled.WithLabelValues(ev.Kind().String()).Inc()

	report := p.dispatcher.Notify(ctx, ev)
	p.log.Debug("Event dispatched",
		"kind", ev.Kind(),
		"delivered", report.Delivered,
		"failed", report.Failed,
		"published", report.Published,
	)

	if err := p.node.EventHandled(); err != nil {
		metrics.PollErrors.WithLabelValues("ack").Inc()
		return true, fmt.Errorf("acknowledge %s: %w", ev.Kind(), err)
	}
	return true, nil
}

// TriggerPaymentEvent synthesizes a PaymentReceived event and routes it
// through the dispatcher like a node event. An empty hash yields a random one.
func (p *Processor) TriggerPaymentEvent(ctx context.Context, paymentHash string) (domain.PaymentReceived, error) {
	var hash domain.PaymentHash
	if paymentHash == "" {
		for i := range hash {
			hash[i] = byte(rand.Intn(255) + 1)
		}
	} else {
		h, err := domain.ParsePaymentHash(paymentHash)
		if err != nil {
			return domain.PaymentReceived{}, fmt.Errorf("%w: %w", ErrInvalidPaymentHash, err)
		}
		hash = h
	}

	ev := domain.PaymentReceived{PaymentHash: hash, AmountMsat: TriggerAmountMsat}
	report := p.dispatcher.Notify(ctx, ev)
	p.log.Info("Triggered payment event",
		"payment_hash", hash,
		"delivered", report.Delivered,
		"published", report.Published,
	)
	return ev, nil
}
