package handler

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
)

// goroutineThreshold fails liveness when the process is clearly leaking.
const goroutineThreshold = 10000

func newHealth(checks []ReadyCheck, timeout time.Duration) healthcheck.Handler {
	hc := healthcheck.NewHandler()
	hc.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))
	for _, c := range checks {
		hc.AddReadinessCheck(c.Name, healthcheck.Timeout(c.Check, timeout))
	}
	return hc
}

// handleHealth handles GET /health. Add ?full=1 for per-check results.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.health.LiveEndpoint(w, r)
}

// handleReady handles GET /ready.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	h.health.ReadyEndpoint(w, r)
}
