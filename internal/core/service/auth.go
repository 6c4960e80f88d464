package service

import (
	"context"
	"net"
	"strings"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/pairlink-go/internal/core/domain"
)

// AuthService authenticates API callers against the configured key set.
//
// Keys are static: they come from configuration and are replaced as a
// whole on reload.
type AuthService struct {
	mu           sync.RWMutex
	keys         map[string]*domain.APIKey
	rateLimit    int
	rateLimiters *RateLimiterRegistry
	globalAllow  []string
}

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// Keys is the configured key set. Empty disables authentication.
	Keys []*domain.APIKey

	// RateLimit is the per-key QPS limit (0 = unlimited).
	RateLimit int

	// GlobalAllowlist is the global IP/CIDR allowlist (empty = no restriction).
	GlobalAllowlist []string
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	s := &AuthService{
		rateLimit:    cfg.RateLimit,
		rateLimiters: NewRateLimiterRegistry(),
		globalAllow:  cfg.GlobalAllowlist,
	}
	s.SetKeys(cfg.Keys)
	return s
}

// SetKeys atomically replaces the key set.
func (s *AuthService) SetKeys(keys []*domain.APIKey) {
	m := make(map[string]*domain.APIKey, len(keys))
	for _, k := range keys {
		m[k.ID] = k
	}
	s.mu.Lock()
	s.keys = m
	s.mu.Unlock()
	s.rateLimiters.Clear()
}

// Enabled reports whether any key is configured.
func (s *AuthService) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) > 0
}

// ValidateAPIKeyRequest contains parameters for API key validation.
type ValidateAPIKeyRequest struct {
	KeyID     string
	KeySecret string
	ClientIP  string
}

// ValidateAPIKeyResponse contains the result of API key validation.
type ValidateAPIKeyResponse struct {
	Valid  bool
	APIKey *domain.APIKey
}

// ValidateAPIKey validates an API key and returns the key entity if valid.
func (s *AuthService) ValidateAPIKey(_ context.Context, req *ValidateAPIKeyRequest) (*ValidateAPIKeyResponse, error) {
	if req.KeyID == "" || req.KeySecret == "" {
		return nil, domain.ErrAPIKeyMissing
	}

	if err := s.checkIPAllowlist(req.ClientIP); err != nil {
		return nil, err
	}

	s.mu.RLock()
	key, ok := s.keys[req.KeyID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAPIKeyInvalid.WithDetails("unknown key id")
	}
	if !key.Verify(req.KeySecret) {
		return nil, domain.ErrAPIKeyInvalid.WithDetails("invalid secret")
	}

	return &ValidateAPIKeyResponse{Valid: true, APIKey: key}, nil
}

// CheckPermission checks if an API key has the required permission.
func (s *AuthService) CheckPermission(apiKey *domain.APIKey, perm domain.Permission) error {
	if !domain.HasPermission(apiKey.Role, perm) {
		return domain.ErrPermissionDenied.WithDetails(
			"role " + string(apiKey.Role) + " does not have permission " + string(perm),
		)
	}
	return nil
}

// CheckRateLimit checks if an API key has exceeded its rate limit.
func (s *AuthService) CheckRateLimit(_ context.Context, keyID string) error {
	if s.rateLimit <= 0 {
		return nil
	}
	limiter := s.rateLimiters.GetOrCreate(keyID, s.rateLimit)

	if !limiter.Allow() {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		return domain.ErrRateLimited.WithDetails(
			"rate limit exceeded, retry after " + delay.String(),
		)
	}
	return nil
}

// checkIPAllowlist checks if the client IP is in the global allowlist.
func (s *AuthService) checkIPAllowlist(clientIP string) error {
	if len(s.globalAllow) == 0 {
		return nil
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return domain.ErrPermissionDenied.WithDetails("invalid client IP format")
	}

	for _, entry := range s.globalAllow {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			if ipNet.Contains(ip) {
				return nil
			}
		} else if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return nil
		}
	}

	return domain.ErrPermissionDenied.WithDetails("client IP not in allowlist")
}

// RateLimiterRegistry holds one token bucket per caller, keyed by API key
// ID or client IP.
type RateLimiterRegistry struct {
	limiters cmap.ConcurrentMap[string, *rate.Limiter]
}

// NewRateLimiterRegistry creates an empty registry.
func NewRateLimiterRegistry() *RateLimiterRegistry {
	return &RateLimiterRegistry{limiters: cmap.New[*rate.Limiter]()}
}

// GetOrCreate returns the bucket for key, creating one that allows
// perSecond requests per second with an equal burst.
func (r *RateLimiterRegistry) GetOrCreate(key string, perSecond int) *rate.Limiter {
	if l, ok := r.limiters.Get(key); ok {
		return l
	}
	return r.limiters.Upsert(key, nil, func(exist bool, cur, _ *rate.Limiter) *rate.Limiter {
		if exist {
			return cur
		}
		return rate.NewLimiter(rate.Limit(perSecond), perSecond)
	})
}

// Len returns the number of tracked callers.
func (r *RateLimiterRegistry) Len() int {
	return r.limiters.Count()
}

// Clear drops every bucket.
func (r *RateLimiterRegistry) Clear() {
	r.limiters.Clear()
}
