// Package health provides HTTP liveness and readiness handlers.
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when every registered
//     [Probe] passes.
//
// Responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map with the result of each named probe.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// defaultProbeTimeout bounds a single readiness probe.
const defaultProbeTimeout = 5 * time.Second

// Probe is a named readiness check. Check returns nil when the dependency
// is healthy and must respect context cancellation.
type Probe struct {
	// Name labels this probe in the JSON response (e.g. "recognizer",
	// "smtp").
	Name string

	// Check probes the dependency.
	Check func(ctx context.Context) error
}

// response is the JSON body for both endpoints.
type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. Safe for concurrent use; the probe
// list is fixed at construction time.
type Handler struct {
	probes  []Probe
	timeout time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithProbeTimeout overrides the per-probe deadline.
func WithProbeTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a Handler that evaluates the given probes, in order, on each
// /readyz request.
func New(probes []Probe, opts ...Option) *Handler {
	h := &Handler{
		probes:  append([]Probe(nil), probes...),
		timeout: defaultProbeTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz is the liveness probe. A process that can serve HTTP is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz returns 200 only when every registered probe passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.probes))
	status := http.StatusOK
	res := response{Status: "ok", Checks: checks}

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := p.Check(ctx)
		cancel()

		if err != nil {
			checks[p.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			checks[p.Name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code, falling back to a
// plain-text 500 on encoding failure.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
