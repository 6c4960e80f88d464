package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
)

// QR image bounds for the size query parameter.
const (
	minQRSize = 64
	maxQRSize = 1024
)

// handleStartSession handles POST /sessions.
func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.mgr.StartSession(r.Context(), &service.StartSessionRequest{
		Name: req.SessionName,
		Wait: h.waitDuration(req.WaitSeconds),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	body := StartSessionResponse{
		Session: resp.Session,
		Created: resp.Created,
		Ready:   resp.Ready,
	}
	if !resp.Ready {
		h.writePending(w, r, body)
		return
	}
	h.writeJSON(w, r, http.StatusOK, body)
}

// handleListSessions handles GET /sessions.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	all := h.mgr.List(r.Context())

	if v := r.URL.Query().Get("state"); v != "" {
		state, ok := domain.ParseState(v)
		if !ok {
			h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "unknown state "+v, nil)
			return
		}
		filtered := all[:0]
		for _, s := range all {
			if s.State == state {
				filtered = append(filtered, s)
			}
		}
		all = filtered
	}

	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{
		Items: all,
		Total: len(all),
	})
}

// handleGetSession handles GET /sessions/{name}.
//
// With ?wait=<seconds> the call long-polls until the session leaves the
// state given by ?state= or the version given by ?version=. Without
// either, it waits for any change from the current snapshot.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	current, err := h.mgr.Status(r.Context(), name)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	q := r.URL.Query()
	if q.Get("wait") == "" {
		h.writeJSON(w, r, http.StatusOK, current)
		return
	}

	secs, err := strconv.ParseFloat(q.Get("wait"), 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "wait must be a number of seconds", nil)
		return
	}
	wait := h.waitDuration(&secs)
	if wait <= 0 {
		h.writeJSON(w, r, http.StatusOK, current)
		return
	}

	waitFn, err := h.changeWaiter(name, current, q.Get("state"), q.Get("version"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	s, err := waitFn(ctx)
	switch {
	case err == nil:
		h.writeJSON(w, r, http.StatusOK, s)
	case domain.IsDomainError(err, domain.ErrWaitTimeout.Code) && s != nil:
		h.writePending(w, r, s)
	default:
		h.handleServiceError(w, r, err)
	}
}

// changeWaiter picks what a long poll waits for: leaving a known state,
// or any commit past a known version (the current one by default).
func (h *Handler) changeWaiter(name string, current *domain.Session, state, version string) (func(context.Context) (*domain.Session, error), error) {
	if state != "" {
		known, ok := domain.ParseState(state)
		if !ok {
			return nil, domain.ErrInvalidArgument.WithDetails("unknown state " + state)
		}
		return func(ctx context.Context) (*domain.Session, error) {
			return h.mgr.Wait(ctx, name, func(s *domain.Session) bool { return s.State != known })
		}, nil
	}

	known := current.Version
	if version != "" {
		v, err := strconv.ParseUint(version, 10, 64)
		if err != nil {
			return nil, domain.ErrInvalidArgument.WithDetails("version must be an unsigned integer")
		}
		known = v
	}
	return func(ctx context.Context) (*domain.Session, error) {
		return h.mgr.WaitChange(ctx, name, known)
	}, nil
}

// handleSessionQR handles GET /sessions/{name}/qr.png.
func (h *Handler) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	s, err := h.mgr.Status(r.Context(), r.PathValue("name"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if s.Pairing == nil {
		h.writeError(w, r, http.StatusNotFound, domain.ErrSessionNotFound.Code,
			"no pairing code available", map[string]string{"state": string(s.State)})
		return
	}

	size := h.qrSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minQRSize || n > maxQRSize {
			h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code,
				"size must be between 64 and 1024", nil)
			return
		}
		size = n
	}

	png, err := h.renderer.PNG(s.Pairing.Code, size)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Expires", s.Pairing.ExpiresAt.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// handleLogout handles POST /sessions/{name}/logout and DELETE /sessions/{name}.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	resp, err := h.mgr.Logout(r.Context(), r.PathValue("name"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, LogoutResponse{
		SessionName: resp.Name,
		Existed:     resp.Existed,
	})
}

// handleSendMessage handles POST /sessions/{name}/messages.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.mgr.SendText(r.Context(), &service.SendTextRequest{
		Name: r.PathValue("name"),
		To:   req.To,
		Text: req.Text,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, SendMessageResponse{MessageID: resp.MessageID})
}

// writePending answers 202 with the snapshot of a session that is still
// progressing.
func (h *Handler) writePending(w http.ResponseWriter, r *http.Request, data any) {
	w.Header().Set("X-Error-Code", domain.ErrWaitTimeout.Code)
	h.writeRaw(w, r, http.StatusAccepted, &Response{
		Code:      domain.ErrWaitTimeout.Code,
		Message:   domain.ErrWaitTimeout.Message,
		RequestID: getRequestID(r),
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}
