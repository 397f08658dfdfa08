package health

import (
	"context"
	"errors"
	"testing"
)

func TestCheckHealth_AllHealthy(t *testing.T) {
	m := NewMonitor()
	m.Register("postgres", true, func(ctx context.Context) error { return nil })
	m.Register("redis", false, func(ctx context.Context) error { return nil })

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("Expected healthy, got %s", report.SystemStatus)
	}
	if len(report.Components) != 2 {
		t.Errorf("Expected 2 components, got %d", len(report.Components))
	}
}

func TestCheckHealth_DegradedOnNonCritical(t *testing.T) {
	m := NewMonitor()
	m.Register("postgres", true, func(ctx context.Context) error { return nil })
	m.Register("redis", false, func(ctx context.Context) error { return errors.New("connection refused") })

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("Expected degraded, got %s", report.SystemStatus)
	}
	if report.Components["redis"].Status != StatusDegraded {
		t.Errorf("Expected redis degraded, got %s", report.Components["redis"].Status)
	}
}

func TestCheckHealth_CriticalWins(t *testing.T) {
	m := NewMonitor()
	m.Register("postgres", true, func(ctx context.Context) error { return errors.New("down") })
	m.Register("redis", false, func(ctx context.Context) error { return errors.New("down") })

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("Expected critical, got %s", report.SystemStatus)
	}
}
