// Package health provides system health monitoring and status reporting.
package health

import "context"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth contains the health state of a single dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
}

// Checker probes a single dependency. A nil error means healthy.
type Checker func(ctx context.Context) error

// Monitor aggregates dependency checks into a report. critical marks
// components whose failure makes the whole system critical rather than
// degraded.
type Monitor struct {
	checkers map[string]Checker
	critical map[string]bool
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		checkers: make(map[string]Checker),
		critical: make(map[string]bool),
	}
}

// Register adds a dependency check.
func (m *Monitor) Register(name string, critical bool, check Checker) {
	m.checkers[name] = check
	m.critical[name] = critical
}

// CheckHealth runs all registered checks. Worst case wins for the
// aggregate status.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	report := Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}
	for name, check := range m.checkers {
		if err := check(ctx); err != nil {
			status := StatusDegraded
			if m.critical[name] {
				status = StatusCritical
			}
			report.Components[name] = ComponentHealth{Status: status, Error: err.Error()}
			if status == StatusCritical {
				report.SystemStatus = StatusCritical
			} else if report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
			continue
		}
		report.Components[name] = ComponentHealth{Status: StatusHealthy}
	}
	return report
}
