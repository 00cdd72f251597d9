package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// BuildInfo carries the build metadata reported on the health endpoint.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessCheck probes one downstream dependency for /readyz.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	build  BuildInfo
	clock  func() time.Time
	checks map[string]ReadinessCheck
}

// HealthOption customises a HealthHandlers instance.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health endpoints with optional build metadata
// and readiness checks.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		build:  BuildInfo{StartedAt: time.Now()},
		clock:  time.Now,
		checks: map[string]ReadinessCheck{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

// WithHealthBuildInfo sets the build metadata included in health responses.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		if info.StartedAt.IsZero() {
			info.StartedAt = h.build.StartedAt
		}
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime calculation.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithReadinessCheck registers a named dependency probe run on /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// Healthz reports process liveness with build metadata and uptime.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz runs the registered dependency probes and reports 503 when any fail.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{}
	failed := false
	for _, name := range h.checkNames() {
		if err := h.checks[name](ctx); err != nil {
			checks[name] = err.Error()
			failed = true
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	payload := map[string]any{
		"status":    "ok",
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	}
	if len(checks) > 0 {
		payload["checks"] = checks
	}
	if failed {
		status = http.StatusServiceUnavailable
		payload["status"] = "unavailable"
	}

	writeJSONResponse(w, status, payload)
}

func (h *HealthHandlers) checkNames() []string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
