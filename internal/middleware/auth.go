package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ukydev/fleet-ops/internal/auth"
	"github.com/ukydev/fleet-ops/internal/domain"
	"github.com/ukydev/fleet-ops/internal/models"
)

// contextKey keeps middleware context values from colliding with other packages.
type contextKey string

const UserContextKey contextKey = "user"

// publicPrefixes never require a token. Location pings arrive from tracker
// devices that only hold an API endpoint, not a user session.
var publicPrefixes = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/api/auth/refresh",
	"/api/locations",
	"/health",
	"/metrics",
}

// AuthMiddleware authenticates requests and attaches the caller's claims.
type AuthMiddleware struct {
	authService *auth.Service
}

func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate validates the bearer token and stores the resulting claims in
// the request context. Public paths pass through untouched.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			deny(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		claims, err := m.authService.ValidateToken(header)
		if err != nil {
			deny(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits the named role and admins, rejects everyone else.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if claims.Role != role && claims.Role != models.RoleAdmin {
				deny(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission gates a route on an action permission rather than a
// single role, so manager and admin splits stay in one place.
func (m *AuthMiddleware) RequirePermission(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "authentication required")
				return
			}
			caller := models.User{Role: claims.Role}
			if !caller.HasPermission(action) {
				deny(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext returns the claims Authenticate stored, if any.
func GetUserFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok
}

// ActorFromContext converts the authenticated claims into the actor identity
// the engine operations run as.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	claims, ok := GetUserFromContext(ctx)
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{ID: claims.UserID, Role: claims.Role}, true
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RateLimitMiddleware throttles per client IP over a sliding window. State is
// in memory only, which is enough for a single API instance.
type RateLimitMiddleware struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewRateLimitMiddleware() *RateLimitMiddleware {
	return &RateLimitMiddleware{hits: make(map[string][]time.Time)}
}

// RateLimit admits at most limit requests per client IP within the window.
func (m *RateLimitMiddleware) RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			now := time.Now()

			m.mu.Lock()
			recent := m.hits[ip][:0]
			for _, at := range m.hits[ip] {
				if now.Sub(at) < window {
					recent = append(recent, at)
				}
			}
			if len(recent) >= limit {
				m.hits[ip] = recent
				m.mu.Unlock()
				deny(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			m.hits[ip] = append(recent, now)
			m.mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers proxy headers so limits apply to the real caller when the
// API runs behind a load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
