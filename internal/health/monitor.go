package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how often dependencies are probed.
const DefaultCacheTTL = 2 * time.Second

// Processor exposes the event processor lifecycle.
type Processor interface {
	Running() bool
	Status() string
}

// DispatchStats exposes dispatcher counters.
type DispatchStats interface {
	SubscriberCount() int
	LastEventAt() time.Time
	BrokerEnabled() bool
}

// Checker probes an external dependency.
type Checker interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	processor Processor
	stats     DispatchStats
	checkers  map[string]Checker
	ttl       time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new health monitor.
func NewMonitor(processor Processor, stats DispatchStats) *Monitor {
	return &Monitor{
		processor: processor,
		stats:     stats,
		checkers:  make(map[string]Checker),
		ttl:       DefaultCacheTTL,
	}
}

// Register adds a named dependency probe. Not safe to call after serving starts.
func (m *Monitor) Register(name string, c Checker) {
	m.checkers[name] = c
}

// CheckHealth builds a report. A stopped processor is critical, a failing
// dependency degrades the system.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.ttl {
		return *m.lastReport
	}

	report := Report{
		SystemStatus:  StatusHealthy,
		Processor:     m.processor.Status(),
		Subscribers:   m.stats.SubscriberCount(),
		BrokerEnabled: m.stats.BrokerEnabled(),
		Components:    make(map[string]ComponentHealth, len(m.checkers)),
		CheckedAt:     time.Now().UTC(),
	}
	if at := m.stats.LastEventAt(); !at.IsZero() {
		report.LastEventAt = &at
	}

	for name, c := range m.checkers {
		probeCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := c.Health(probeCtx)
		cancel()

		if err != nil {
			report.Components[name] = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
			report.SystemStatus = StatusDegraded
			continue
		}
		report.Components[name] = ComponentHealth{Status: StatusHealthy}
	}

	if !m.processor.Running() {
		report.SystemStatus = StatusCritical
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
