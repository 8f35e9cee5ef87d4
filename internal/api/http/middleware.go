package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"instrument-rental-backend/internal/config"
	"instrument-rental-backend/internal/logger"
	"instrument-rental-backend/internal/security"
)

const requestIDHeader = "X-Request-ID"

type claimsKey struct{}

// ClaimsFrom returns the verified token claims of the caller, if any.
func ClaimsFrom(ctx context.Context) (*security.UserClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*security.UserClaims)
	return claims, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger tags the request with an id, recovers panics and writes one
// access log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.ContextWithRequestID(r.Context(), id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				logger.ErrorContext(ctx, "Panic while serving request", "panic", p, "path", r.URL.Path)
				writeFailure(rec, http.StatusInternalServerError, kindInternal, "internal server error")
			}
			logger.InfoContext(ctx, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"remote", clientIP(r, false),
				"forwarded_for", r.Header.Get("X-Forwarded-For"),
			)
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// RateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than a full refill are dropped, since a fresh bucket starts out full anyway.
type RateLimiter struct {
	ips   map[string]*clientLimiter
	mu    sync.Mutex
	rate  rate.Limit
	burst int

	// trustForwardedFor keys clients by X-Forwarded-For; only safe behind a proxy that sets it.
	trustForwardedFor bool
	idle              time.Duration
	lastSweep         time.Time
	now               func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(r rate.Limit, b int, trustForwardedFor bool) *RateLimiter {
	return &RateLimiter{
		ips:               make(map[string]*clientLimiter),
		rate:              r,
		burst:             b,
		trustForwardedFor: trustForwardedFor,
		idle:              refillWindow(r, b),
		now:               time.Now,
	}
}

// refillWindow is how long an unused bucket takes to fill up, at least a minute.
func refillWindow(r rate.Limit, b int) time.Duration {
	const floor = time.Minute
	if r <= 0 || r == rate.Inf {
		return floor
	}
	if d := time.Duration(float64(b) / float64(r) * float64(time.Second)); d > floor {
		return d
	}
	return floor
}

func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.idle {
		for key, c := range rl.ips {
			if now.Sub(c.lastSeen) >= rl.idle {
				delete(rl.ips, key)
			}
		}
		rl.lastSweep = now
	}

	if c, exists := rl.ips[ip]; exists {
		c.lastSeen = now
		return c.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.ips[ip] = &clientLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.GetLimiter(clientIP(r, rl.trustForwardedFor)).Allow() {
			writeFailure(w, http.StatusTooManyRequests, kindRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Auth checks the bearer token against the security level of the matched route.
type Auth struct {
	tokenManager security.TokenManager
	enabled      bool
}

func NewAuth(tm security.TokenManager, enabled bool) *Auth {
	return &Auth{tokenManager: tm, enabled: enabled}
}

func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		level := config.GetSecurityLevel(routeKey(r))

		token, ok := extractToken(r)
		if !ok {
			if level == config.SecurityPublic {
				next.ServeHTTP(w, r)
				return
			}
			writeFailure(w, http.StatusUnauthorized, kindUnauthorized, "authorization token is not provided")
			return
		}

		claims, err := a.tokenManager.ValidateToken(token)
		if err != nil {
			if level == config.SecurityPublic {
				next.ServeHTTP(w, r)
				return
			}
			writeFailure(w, http.StatusUnauthorized, kindUnauthorized, "invalid token: "+err.Error())
			return
		}

		if level == config.SecurityAdmin && !claims.HasRole(security.RoleAdmin) {
			writeFailure(w, http.StatusForbidden, kindForbidden, "admin role required")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// routeKey renders the matched route as "METHOD /path/template".
func routeKey(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return r.Method + " " + r.URL.Path
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return r.Method + " " + r.URL.Path
	}
	return r.Method + " " + tmpl
}

func extractToken(r *http.Request) (string, bool) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", false
	}
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return token, true
}
