package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// SessionManager is the lifecycle surface the handlers drive.
type SessionManager interface {
	StartSession(ctx context.Context, req *service.StartSessionRequest) (*service.StartSessionResponse, error)
	Status(ctx context.Context, name string) (*domain.Session, error)
	List(ctx context.Context) []*domain.Session
	Wait(ctx context.Context, name string, pred func(*domain.Session) bool) (*domain.Session, error)
	WaitChange(ctx context.Context, name string, known uint64) (*domain.Session, error)
	Logout(ctx context.Context, name string) (*service.LogoutResponse, error)
	SendText(ctx context.Context, req *service.SendTextRequest) (*service.SendTextResponse, error)
	CountByState() map[domain.State]int
	PendingReconnects() int
}

// PNGRenderer renders a pairing code as PNG bytes.
type PNGRenderer interface {
	PNG(code string, size int) ([]byte, error)
}

// Backuper streams a credential store backup.
type Backuper interface {
	Backup(ctx context.Context, w io.Writer) error
}

// ReadyCheck is a named readiness probe.
type ReadyCheck struct {
	Name  string
	Check healthcheck.Check
}

// Config configures a Handler.
type Config struct {
	Manager  SessionManager
	Renderer PNGRenderer

	// Backup is optional; the backup endpoint answers 503 without it.
	Backup Backuper

	// Ready lists readiness probes. Each is bounded by CheckTimeout.
	Ready        []ReadyCheck
	CheckTimeout time.Duration

	// MaxWait caps caller-supplied wait durations.
	MaxWait time.Duration

	// QRSize is the edge length of served PNG images.
	QRSize int

	Logger logger.Logger
}

// Handler serves the session API.
type Handler struct {
	mgr      SessionManager
	renderer PNGRenderer
	backup   Backuper
	health   healthcheck.Handler
	maxWait  time.Duration
	qrSize   int
	logger   logger.Logger
	mux      *http.ServeMux
}

// New creates a Handler.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = 256
	}

	h := &Handler{
		mgr:      cfg.Manager,
		renderer: cfg.Renderer,
		backup:   cfg.Backup,
		health:   newHealth(cfg.Ready, cfg.CheckTimeout),
		maxWait:  cfg.MaxWait,
		qrSize:   cfg.QRSize,
		logger:   cfg.Logger.With("component", "http"),
		mux:      http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /sessions", h.handleListSessions)
	h.mux.HandleFunc("POST /sessions", h.handleStartSession)
	h.mux.HandleFunc("GET /sessions/{name}", h.handleGetSession)
	h.mux.HandleFunc("GET /sessions/{name}/qr.png", h.handleSessionQR)
	h.mux.HandleFunc("POST /sessions/{name}/logout", h.handleLogout)
	h.mux.HandleFunc("DELETE /sessions/{name}", h.handleLogout)
	h.mux.HandleFunc("POST /sessions/{name}/messages", h.handleSendMessage)

	h.mux.HandleFunc("POST /start-session", h.handleLegacyStart)
	h.mux.HandleFunc("GET /status/{name}", h.handleLegacyStatus)
	h.mux.HandleFunc("POST /logout/{name}", h.handleLegacyLogout)
	h.mux.HandleFunc("POST /send-message", h.handleLegacySend)

	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleAdminStatus)
	h.mux.HandleFunc("GET /admin/v1/backup", h.handleBackup)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	h.writeRaw(w, r, status, NewResponse(getRequestID(r), data))
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("X-Error-Code", code)
	h.writeRaw(w, r, status, NewErrorResponse(getRequestID(r), code, message, details))
}

// writeRaw writes v as JSON without the envelope.
func (h *Handler) writeRaw(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if id := getRequestID(r); id != "" {
		w.Header().Set("X-Request-ID", id)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// getRequestID returns the ID assigned by the RequestID middleware,
// falling back to the inbound header.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// decode reads a JSON body into v.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrBadRequest.Code, "invalid request body", nil)
		return false
	}
	return true
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := StatusForCode(de.Code)
		if status >= http.StatusInternalServerError {
			logger.L(r.Context()).Error("request failed", "code", de.Code, "error", err)
		}
		var details any
		if de.Details != "" {
			details = de.Details
		}
		h.writeError(w, r, status, de.Code, de.Message, details)
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
}

// StatusForCode maps error codes to HTTP status codes.
func StatusForCode(code string) int {
	switch {
	case code == domain.ErrWaitTimeout.Code:
		return http.StatusAccepted
	case strings.HasPrefix(code, "PL-CRED-5"):
		return http.StatusServiceUnavailable
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4080"):
		return http.StatusGone
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "PL-AUTH-401"):
		return http.StatusUnauthorized
	case strings.HasPrefix(code, "PL-AUTH-403"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "PL-ARG-"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, "PL-CONN-5"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// waitDuration parses seconds from a request and caps it at MaxWait.
// A nil value means the server default (zero).
func (h *Handler) waitDuration(seconds *float64) time.Duration {
	if seconds == nil {
		return 0
	}
	if *seconds <= 0 {
		return -1
	}
	d := time.Duration(*seconds * float64(time.Second))
	if h.maxWait > 0 && d > h.maxWait {
		d = h.maxWait
	}
	return d
}
