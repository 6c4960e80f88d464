package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/infra/buildinfo"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// handleAdminStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	counts := h.mgr.CountByState()
	byState := make(map[string]int, len(domain.AllStates))
	total := 0
	for _, st := range domain.AllStates {
		byState[string(st)] = counts[st]
		total += counts[st]
	}

	h.writeJSON(w, r, http.StatusOK, StatusSummaryResponse{
		Build:             buildinfo.Get(),
		Sessions:          total,
		ByState:           byState,
		PendingReconnects: h.mgr.PendingReconnects(),
		Time:              time.Now().UTC(),
	})
}

// handleBackup handles GET /admin/v1/backup. The body is a credential
// store backup; sealed records stay sealed.
func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrServiceUnavailable.Code,
			"storage driver does not support backups", nil)
		return
	}

	name := "pairlink-" + time.Now().UTC().Format("20060102T150405Z") + ".bak"
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)

	if err := h.backup.Backup(r.Context(), w); err != nil {
		// Headers are gone; the truncated body is all the client sees.
		logger.L(r.Context()).Error("backup failed", "error", err)
		return
	}
	logger.L(r.Context()).Info("backup streamed", "file", name)
}
