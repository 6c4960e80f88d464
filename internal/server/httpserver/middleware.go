package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/server/httpserver/handler"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// Context keys for request-scoped values.
type contextKey string

const (
	// ContextKeyAPIKey is the context key for authenticated API key.
	ContextKeyAPIKey contextKey = "api_key"

	// ContextKeyStartTime is the context key for request start time.
	ContextKeyStartTime contextKey = "start_time"

	// contextKeyCaller holds the *caller slot filled in by Auth.
	contextKeyCaller contextKey = "caller"
)

// caller is filled in by Auth so outer middlewares can see who called.
type caller struct {
	apiKey *domain.APIKey
}

// RequestMetrics receives per-request observations.
type RequestMetrics interface {
	RecordRequest(method, route, status string)
	ObserveRequestDuration(method, route string, seconds float64)
	RecordAuthFailure(reason string)
	IncRateLimited()
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(string, string, string) {}
func (nopMetrics) ObserveRequestDuration(string, string, float64) {}
func (nopMetrics) RecordAuthFailure(string) {}
func (nopMetrics) IncRateLimited() {}

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is
// the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// MiddlewareConfig holds configuration for middlewares.
type MiddlewareConfig struct {
	AuthService *service.AuthService
	Logger      logger.Logger
	Metrics     RequestMetrics
}

// RequestID assigns each request a ULID-based ID unless the caller sent one.
// The ID is echoed in X-Request-ID and attached to the request logger.
func RequestID(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > 128 {
				requestID = "req-" + ulid.MustNew(ulid.Now(), rand.Reader).String()
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			ctx = logger.WithLogger(ctx, log)
			ctx = context.WithValue(ctx, ContextKeyStartTime, time.Now())
			ctx = context.WithValue(ctx, contextKeyCaller, &caller{})
			if name := r.PathValue("name"); name != "" {
				ctx = logger.WithSession(ctx, name)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Auth validates the caller's API key. It is a no-op while no keys are
// configured, so a local deployment works without credentials.
func Auth(cfg *MiddlewareConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.AuthService.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			keyID, keySecret := extractAPIKeyCredentials(r)
			if keyID == "" || keySecret == "" {
				cfg.Metrics.RecordAuthFailure("missing")
				writeMiddlewareError(w, r, domain.ErrAPIKeyMissing)
				return
			}

			resp, err := cfg.AuthService.ValidateAPIKey(r.Context(), &service.ValidateAPIKeyRequest{
				KeyID:     keyID,
				KeySecret: keySecret,
				ClientIP:  getClientIP(r),
			})
			if err != nil {
				cfg.Metrics.RecordAuthFailure(authFailureReason(err))
				logger.L(r.Context()).Warn("api key rejected", "api_key_id", keyID, "error", err)
				writeMiddlewareError(w, r, err)
				return
			}

			if err := cfg.AuthService.CheckRateLimit(r.Context(), keyID); err != nil {
				cfg.Metrics.IncRateLimited()
				w.Header().Set("Retry-After", "1")
				writeMiddlewareError(w, r, err)
				return
			}

			if c, ok := r.Context().Value(contextKeyCaller).(*caller); ok {
				c.apiKey = resp.APIKey
			}
			ctx := context.WithValue(r.Context(), ContextKeyAPIKey, resp.APIKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authFailureReason(err error) string {
	switch domain.GetErrorCode(err) {
	case domain.ErrPermissionDenied.Code:
		return "ip_denied"
	case domain.ErrAPIKeyMissing.Code:
		return "missing"
	default:
		return "invalid"
	}
}

// RequirePermission rejects callers whose role lacks perm. Like Auth it
// lets everything through while authentication is disabled.
func RequirePermission(cfg *MiddlewareConfig, perm domain.Permission) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.AuthService.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := GetAPIKeyFromContext(r.Context())
			if apiKey == nil {
				writeMiddlewareError(w, r, domain.ErrAPIKeyMissing)
				return
			}

			if err := cfg.AuthService.CheckPermission(apiKey, perm); err != nil {
				cfg.Metrics.RecordAuthFailure("forbidden")
				writeMiddlewareError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies a token bucket per client IP.
func RateLimit(requestsPerSecond int, metrics RequestMetrics) Middleware {
	limiters := service.NewRateLimiterRegistry()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			if !limiters.GetOrCreate(ip, requestsPerSecond).Allow() {
				metrics.IncRateLimited()
				w.Header().Set("Retry-After", "1")
				writeMiddlewareError(w, r, domain.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Instrument records request count and latency by route pattern.
func Instrument(metrics RequestMetrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordRequest(r.Method, route, strconv.Itoa(wrapped.statusCode))
			metrics.ObserveRequestDuration(r.Method, route, time.Since(start).Seconds())
		})
	}
}

// Audit logs every completed request.
func Audit(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			startTime, _ := r.Context().Value(ContextKeyStartTime).(time.Time)
			attrs := []any{
				"request_id", logger.RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(startTime).Milliseconds(),
				"client_ip", getClientIP(r),
			}
			if c, ok := r.Context().Value(contextKeyCaller).(*caller); ok && c.apiKey != nil {
				attrs = append(attrs, "api_key_id", c.apiKey.ID, "role", string(c.apiKey.Role))
			}

			switch {
			case wrapped.statusCode >= 500:
				log.Error("request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.Warn("request completed with client error", attrs...)
			default:
				log.Info("request completed", attrs...)
			}
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error("panic recovered",
						"request_id", logger.RequestIDFromContext(r.Context()),
						"error", err,
						"path", r.URL.Path,
					)
					writeMiddlewareError(w, r, domain.ErrInternalServer)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS adds Cross-Origin Resource Sharing headers.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key-ID, X-API-Key, X-Request-ID, Authorization")
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Error-Code")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKeyCredentials extracts API key credentials from request headers.
// It supports two formats:
// 1. Authorization: Bearer <key_id>:<key_secret>
// 2. X-API-Key-ID + X-API-Key headers
func extractAPIKeyCredentials(r *http.Request) (keyID, keySecret string) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if id, secret, ok := strings.Cut(token, ":"); ok {
			return id, secret
		}
	}

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		if id, secret, ok := strings.Cut(apiKey, ":"); ok {
			return id, secret
		}
	}

	return r.Header.Get("X-API-Key-ID"), r.Header.Get("X-API-Key")
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// GetAPIKeyFromContext retrieves the authenticated API key from context.
func GetAPIKeyFromContext(ctx context.Context) *domain.APIKey {
	if apiKey, ok := ctx.Value(ContextKeyAPIKey).(*domain.APIKey); ok {
		return apiKey
	}
	return nil
}

// writeMiddlewareError writes err in the standard envelope.
func writeMiddlewareError(w http.ResponseWriter, r *http.Request, err error) {
	de := domain.ErrInternalServer
	var target *domain.DomainError
	if errors.As(err, &target) {
		de = target
	}

	var details any
	if de.Details != "" {
		details = de.Details
	}
	resp := handler.NewErrorResponse(logger.RequestIDFromContext(r.Context()), de.Code, de.Message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", de.Code)
	w.WriteHeader(handler.StatusForCode(de.Code))
	_ = json.NewEncoder(w).Encode(resp)
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// net.SplitHostPort handles IPv6 addresses like [::1]:8080.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
