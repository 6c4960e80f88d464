package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// The legacy routes answer with bare bodies instead of the envelope so
// existing integrations keep working unchanged.

// handleLegacyStart handles POST /start-session.
func (h *Handler) handleLegacyStart(w http.ResponseWriter, r *http.Request) {
	var req LegacyStartRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil || req.SessionName == "" {
		h.writeRaw(w, r, http.StatusBadRequest, LegacyError{Error: "sessionName is required", Code: domain.ErrMissingArgument.Code})
		return
	}

	resp, err := h.mgr.StartSession(r.Context(), &service.StartSessionRequest{Name: req.SessionName})
	if err != nil {
		h.writeLegacyError(w, r, err)
		return
	}
	s := resp.Session
	if s.State != domain.StateConnected && s.Pairing == nil {
		h.writeLegacyUnavailable(w, r, s, resp.Ready)
		return
	}

	body := LegacyStartResponse{
		Connected: s.State == domain.StateConnected,
		User:      s.Identity,
		State:     s.State,
	}
	if s.Pairing != nil {
		body.QR = s.Pairing.Image
	}
	h.writeRaw(w, r, http.StatusOK, body)
}

// writeLegacyUnavailable answers a start that produced neither a pairing
// code nor a connection. A session that stopped reports its recorded
// cause; anything else timed out.
func (h *Handler) writeLegacyUnavailable(w http.ResponseWriter, r *http.Request, s *domain.Session, ready bool) {
	if s.State.IsTerminal() && s.LastError != nil {
		h.writeRaw(w, r, StatusForCode(s.LastError.Code), LegacyError{Error: s.LastError.Message, Code: s.LastError.Code})
		return
	}
	code := domain.ErrWaitTimeout.Code
	if ready {
		code = domain.ErrSessionNotConnected.Code
	}
	h.writeRaw(w, r, http.StatusGatewayTimeout, LegacyError{Error: "timed out waiting for pairing code", Code: code})
}

// handleLegacyStatus handles GET /status/{name}.
func (h *Handler) handleLegacyStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.mgr.Status(r.Context(), r.PathValue("name"))
	if domain.IsDomainError(err, domain.ErrSessionNotFound.Code) {
		h.writeRaw(w, r, http.StatusOK, LegacyStatusResponse{Connected: false, Message: "session not found"})
		return
	}
	if err != nil {
		h.writeLegacyError(w, r, err)
		return
	}
	h.writeRaw(w, r, http.StatusOK, LegacyStatusResponse{
		Connected: s.State == domain.StateConnected,
		User:      s.Identity,
		State:     s.State,
	})
}

// handleLegacyLogout handles POST /logout/{name}.
func (h *Handler) handleLegacyLogout(w http.ResponseWriter, r *http.Request) {
	resp, err := h.mgr.Logout(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeLegacyError(w, r, err)
		return
	}
	if !resp.Existed {
		h.writeRaw(w, r, http.StatusNotFound, LegacyError{Error: "session not found", Code: domain.ErrSessionNotFound.Code})
		return
	}
	h.writeRaw(w, r, http.StatusOK, LegacyResult{Success: true})
}

// handleLegacySend handles POST /send-message.
func (h *Handler) handleLegacySend(w http.ResponseWriter, r *http.Request) {
	var req LegacySendRequest
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
	if err != nil || req.SessionName == "" || req.Number == "" || req.Message == "" {
		h.writeRaw(w, r, http.StatusBadRequest, LegacyError{Error: "sessionName, number and message are required", Code: domain.ErrMissingArgument.Code})
		return
	}

	resp, err := h.mgr.SendText(r.Context(), &service.SendTextRequest{
		Name: req.SessionName,
		To:   req.Number,
		Text: req.Message,
	})
	switch {
	case err == nil:
		h.writeRaw(w, r, http.StatusOK, LegacyResult{Success: true, MessageID: resp.MessageID})
	case domain.IsDomainError(err, domain.ErrSessionNotFound.Code),
		domain.IsDomainError(err, domain.ErrSessionNotConnected.Code):
		h.writeRaw(w, r, http.StatusBadRequest, LegacyError{Error: "session is not connected", Code: domain.ErrSessionNotConnected.Code})
	default:
		h.writeLegacyError(w, r, err)
	}
}

func (h *Handler) writeLegacyError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.GetErrorCode(err)
	if code == "" {
		logger.L(r.Context()).Error("internal error", "error", err)
		h.writeRaw(w, r, http.StatusInternalServerError, LegacyError{Error: domain.ErrInternalServer.Message, Code: domain.ErrInternalServer.Code})
		return
	}
	h.writeRaw(w, r, StatusForCode(code), LegacyError{Error: err.Error(), Code: code})
}
