// Package health provides a concurrent health-check framework. Components
// register liveness and readiness Check functions, and the Checker runs them
// in parallel to produce an aggregate Report for orchestrator probes.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Probe selects which set of checks to run.
type Probe string

const (
	Liveness  Probe = "liveness"
	Readiness Probe = "readiness"
)

// Check is a function that probes a single dependency and returns its status.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth holds the result of a single component check.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// FromBool maps a boolean probe to a ComponentHealth.
func FromBool(ok bool, message string) ComponentHealth {
	if ok {
		return ComponentHealth{Status: StatusUp}
	}
	return ComponentHealth{Status: StatusDown, Message: message}
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker manages registered health checks and runs them concurrently.
type Checker struct {
	checks  map[Probe]map[string]Check
	mu      sync.RWMutex
	logger  *slog.Logger
	timeout time.Duration
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		checks: map[Probe]map[string]Check{
			Liveness:  {},
			Readiness: {},
		},
		logger:  slog.Default().With("component", "health"),
		timeout: 5 * time.Second,
	}
}

// Register adds a named check to the given probe.
func (c *Checker) Register(probe Probe, name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[probe][name] = check
}

// Run executes all checks registered for probe concurrently and returns an
// aggregated Report. The overall status is down if any component is down.
func (c *Checker) Run(ctx context.Context, probe Probe) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks[probe]))
	for name, check := range c.checks[probe] {
		checks[name] = check
	}
	c.mu.RUnlock()
	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, check := range checks {
		wg.Add(1)
		go func(n string, ch Check) {
			defer wg.Done()
			start := time.Now()
			result := ch(ctx)
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			mu.Lock()
			report.Components[n] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	for name, comp := range report.Components {
		if comp.Status == StatusDown {
			report.Status = StatusDown
			c.logger.Warn("health check failed", "probe", probe, "check", name, "message", comp.Message)
		}
	}
	return report
}

// LiveHandler returns an HTTP handler for liveness probes.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return c.handler(Liveness)
}

// ReadyHandler returns an HTTP handler for readiness probes.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.handler(Readiness)
}

// handler answers 200 when every check is up and 500 otherwise.
func (c *Checker) handler(probe Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		report := c.Run(ctx, probe)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUp {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		json.NewEncoder(w).Encode(report)
	}
}
