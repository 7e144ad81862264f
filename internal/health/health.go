// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the state of one external dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus  SystemStatus               `json:"system_status"`
	Processor     string                     `json:"processor"`
	Subscribers   int                        `json:"subscribers"`
	BrokerEnabled bool                       `json:"broker_enabled"`
	LastEventAt   *time.Time                 `json:"last_event_at,omitempty"`
	Components    map[string]ComponentHealth `json:"components"`
	CheckedAt     time.Time                  `json:"checked_at"`
}
