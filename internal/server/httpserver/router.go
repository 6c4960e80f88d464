package httpserver

import (
	"net/http"

	"github.com/yndnr/pairlink-go/internal/core/domain"
	"github.com/yndnr/pairlink-go/internal/core/service"
	"github.com/yndnr/pairlink-go/internal/server/httpserver/handler"
	"github.com/yndnr/pairlink-go/internal/telemetry/logger"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Handler configures the API handlers.
	Handler handler.Config

	// AuthService authenticates API keys. With no keys configured every
	// route is open.
	AuthService *service.AuthService

	Logger logger.Logger

	// Metrics receives request observations (nil = discard).
	Metrics RequestMetrics

	// MetricsHandler serves MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = none).
	CORSAllowedOrigins []string

	// IPRateLimit is the rate limit per client IP in requests/second (0 = off).
	IPRateLimit int

	// EnableAudit logs every completed request.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		MetricsPath: "/metrics",
		IPRateLimit: 100,
		EnableAudit: true,
	}
}

// route binds a pattern to the permission it requires.
type route struct {
	pattern string
	perm    domain.Permission
}

var apiRoutes = []route{
	{"GET /sessions", domain.PermSessionRead},
	{"POST /sessions", domain.PermSessionStart},
	{"GET /sessions/{name}", domain.PermSessionRead},
	{"GET /sessions/{name}/qr.png", domain.PermSessionRead},
	{"POST /sessions/{name}/logout", domain.PermSessionLogout},
	{"DELETE /sessions/{name}", domain.PermSessionLogout},
	{"POST /sessions/{name}/messages", domain.PermMessageSend},

	{"POST /start-session", domain.PermSessionStart},
	{"GET /status/{name}", domain.PermSessionRead},
	{"POST /logout/{name}", domain.PermSessionLogout},
	{"POST /send-message", domain.PermMessageSend},

	{"GET /admin/v1/status/summary", domain.PermSessionRead},
	{"GET /admin/v1/backup", domain.PermSystemConfig},
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	authSvc := cfg.AuthService
	if authSvc == nil {
		authSvc = service.NewAuthService(service.AuthServiceConfig{})
	}

	hcfg := cfg.Handler
	if hcfg.Logger == nil {
		hcfg.Logger = log
	}
	h := handler.New(hcfg)

	mwCfg := &MiddlewareConfig{
		AuthService: authSvc,
		Logger:      log,
		Metrics:     metrics,
	}

	// Order: Recover -> RequestID -> Instrument -> CORS -> RateLimit -> Audit -> Auth -> Permission -> Handler
	base := []Middleware{
		Recover(log),
		RequestID(log),
		Instrument(metrics),
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		base = append(base, CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.IPRateLimit > 0 {
		base = append(base, RateLimit(cfg.IPRateLimit, metrics))
	}
	if cfg.EnableAudit {
		base = append(base, Audit(log))
	}

	protect := func(next http.Handler, perm domain.Permission) http.Handler {
		mws := append(append([]Middleware{}, base...), Auth(mwCfg), RequirePermission(mwCfg, perm))
		return Chain(next, mws...)
	}

	mux := http.NewServeMux()

	// Probes skip auth, rate limiting and audit.
	probe := Chain(h, Recover(log), RequestID(log), Instrument(metrics))
	mux.Handle("GET /health", probe)
	mux.Handle("GET /ready", probe)

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, protect(cfg.MetricsHandler, domain.PermMetricsRead))
	}

	for _, rt := range apiRoutes {
		mux.Handle(rt.pattern, protect(h, rt.perm))
	}

	if len(cfg.CORSAllowedOrigins) > 0 {
		mux.Handle("OPTIONS /", Chain(http.NotFoundHandler(), Recover(log), CORS(cfg.CORSAllowedOrigins)))
	}

	return mux
}
