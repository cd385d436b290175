package pipeline

import (
	"sync"
	"time"
)

// Status is a component health level.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusUnhealthy Status = "unhealthy"
)

// warningErrorRatio is the error ratio above which a component degrades to
// warning.
const warningErrorRatio = 0.1

// ComponentStats exposes a component's success/error counters. A non-nil err
// means the counters cannot be read and the component is unhealthy.
type ComponentStats interface {
	Stats() (successes, errors uint64, err error)
}

// ComponentHealth is the derived status of one component.
type ComponentHealth struct {
	Status    Status `json:"status"`
	Successes uint64 `json:"successes"`
	Errors    uint64 `json:"errors"`
	Message   string `json:"message,omitempty"`
}

// HealthSnapshot is the per-component status plus the overall aggregate,
// fully replaced on each check.
type HealthSnapshot struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Overall    Status                     `json:"overall_status"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker derives component statuses from their counters.
type HealthChecker struct {
	mu   sync.Mutex
	last HealthSnapshot
}

// NewHealthChecker creates an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// Check computes a fresh snapshot over the given components and replaces the
// previous one.
func (h *HealthChecker) Check(components map[string]ComponentStats) HealthSnapshot {
	snapshot := HealthSnapshot{
		Timestamp:  time.Now(),
		Overall:    StatusHealthy,
		Components: make(map[string]ComponentHealth, len(components)),
	}

	for name, component := range components {
		health := checkComponent(component)
		snapshot.Components[name] = health

		switch health.Status {
		case StatusUnhealthy:
			snapshot.Overall = StatusUnhealthy
		case StatusWarning:
			if snapshot.Overall != StatusUnhealthy {
				snapshot.Overall = StatusWarning
			}
		}
	}

	h.mu.Lock()
	h.last = snapshot
	h.mu.Unlock()
	return snapshot
}

// Last returns the most recent snapshot.
func (h *HealthChecker) Last() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func checkComponent(component ComponentStats) ComponentHealth {
	successes, errors, err := component.Stats()
	if err != nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}

	health := ComponentHealth{
		Status:    StatusHealthy,
		Successes: successes,
		Errors:    errors,
	}
	total := successes + errors
	if total > 0 && float64(errors)/float64(total) > warningErrorRatio {
		health.Status = StatusWarning
		health.Message = "High error rate detected"
	}
	return health
}
