package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/piyushrajyadav/drop-fade/internal/blob"
)

// Check probes one dependency; a non-nil error marks it down.
type Check func(ctx context.Context) error

const (
	checkTimeout       = 2 * time.Second
	slowCheckThreshold = time.Second
)

// HealthStatus represents the overall health of the service.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of one component.
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Commit     string                     `json:"commit,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   map[string]any  `json:"details,omitempty"`
}

// health reports every component and answers 503 when any is down.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	report := h.checkHealth(r.Context())

	status := http.StatusOK
	if report.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// live only tells that the process is serving.
func (h *handlers) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ready answers 503 until the blob backend and every extra check pass.
func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	report := h.checkHealth(r.Context())
	if report.Status == HealthStatusUnhealthy {
		var down []string
		for name, c := range report.Components {
			if c.Status == ComponentStatusDown {
				down = append(down, name)
			}
		}
		sort.Strings(down)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"down":   down,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) checkHealth(ctx context.Context) Health {
	report := Health{
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		Commit:     h.commit,
		Components: make(map[string]ComponentHealth, len(h.checks)+2),
	}

	report.Components["blob"] = h.checkBlob(ctx)
	report.Components["registry"] = ComponentHealth{
		Status:  ComponentStatusUp,
		Details: map[string]any{"records": h.gw.Len()},
	}
	for name, check := range h.checks {
		report.Components[name] = runCheck(ctx, check)
	}

	report.Status = overallHealth(report.Components)
	return report
}

func (h *handlers) checkBlob(ctx context.Context) ComponentHealth {
	backend := h.gw.Backend()
	c := runCheck(ctx, func(ctx context.Context) error {
		return h.gw.Ping(ctx)
	})
	c.Details = map[string]any{"backend": backend.Name()}

	if g, ok := backend.(*blob.Guarded); ok {
		state := g.Breaker().State()
		c.Details["circuit"] = state.String()
		c.Details["rejected"] = g.Breaker().Rejected()
		if state == blob.StateOpen && c.Status == ComponentStatusUp {
			c.Status = ComponentStatusDegraded
			c.Message = "circuit open"
		}
	}
	return c
}

func runCheck(ctx context.Context, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{Status: ComponentStatusDown, Message: err.Error()}
	}
	c := ComponentHealth{
		Status:    ComponentStatusUp,
		LatencyMs: float64(latency.Microseconds()) / 1000,
	}
	if latency > slowCheckThreshold {
		c.Status = ComponentStatusDegraded
		c.Message = "latency high"
	}
	return c
}

// overallHealth is unhealthy if anything is down and degraded if anything is degraded.
func overallHealth(components map[string]ComponentHealth) HealthStatus {
	status := HealthStatusHealthy
	for _, c := range components {
		switch c.Status {
		case ComponentStatusDown:
			return HealthStatusUnhealthy
		case ComponentStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}
