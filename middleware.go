package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

type ctxKey int

const (
	ctxUser ctxKey = iota
	ctxClaims
)

func userFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(ctxUser).(*User)
	return u, ok
}

func claimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxClaims).(*Claims)
	return c, ok
}

// authenticate runs the mandatory gate: header present, cheap shape check,
// signature/expiry, kind, then user resolution. A vanished user gets the
// same 401 status as any other auth failure so account existence does not
// leak.
func (a *App) authenticate(r *http.Request) (*http.Request, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errAuth(CodeTokenMissing, "Authorization header is required")
	}
	raw := StripBearer(header)
	if strings.Count(raw, ".") != 2 {
		return nil, errAuth(CodeTokenInvalid, "Malformed bearer token")
	}
	claims, err := a.codec.Verify(raw)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, errAuth(CodeTokenExpired, "Token has expired")
		}
		return nil, errAuth(CodeTokenInvalid, "Invalid token")
	}
	if claims.Kind != TokenKindAuth {
		return nil, errAuth(CodeTokenInvalid, "Invalid token type")
	}
	user, err := a.users.FindByID(claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errAuth(CodeUserNotFound, "User no longer exists")
	}
	ctx := context.WithValue(r.Context(), ctxUser, user)
	ctx = context.WithValue(ctx, ctxClaims, claims)
	return r.WithContext(ctx), nil
}

// RequireAuth rejects requests without a valid auth-kind bearer token.
func (a *App) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2, err := a.authenticate(r)
		if err != nil {
			a.respondError(w, err)
			return
		}
		next.ServeHTTP(w, r2)
	})
}

// OptionalAuth proceeds anonymously when no Authorization header is present;
// a present header gets the full mandatory-gate treatment, bad tokens
// included.
func (a *App) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		r2, err := a.authenticate(r)
		if err != nil {
			a.respondError(w, err)
			return
		}
		next.ServeHTTP(w, r2)
	})
}

// RequireOwner compares the authenticated user against the {id} path
// variable. It assumes RequireAuth already ran.
func (a *App) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			a.respondError(w, errAuth(CodeTokenMissing, "Authentication required"))
			return
		}
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || id != user.ID {
			a.respondError(w, errForbidden("You do not have access to this resource"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveRefreshUser validates a refresh token taken from a request body and
// resolves its user. Kind enforcement is an explicit equality check.
func (a *App) resolveRefreshUser(tokenStr string) (*User, *Claims, error) {
	claims, err := a.codec.Verify(tokenStr)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, nil, errAuth(CodeTokenExpired, "Refresh token has expired")
		}
		return nil, nil, errAuth(CodeTokenInvalid, "Invalid refresh token")
	}
	if claims.Kind != TokenKindRefresh {
		return nil, nil, errAuth(CodeTokenInvalid, "Invalid token type")
	}
	user, err := a.users.FindByID(claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, errAuth(CodeUserNotFound, "User no longer exists")
	}
	return user, claims, nil
}

// IPThrottle is a coarse per-client token bucket in front of everything,
// separate from the login attempt limiter.
type IPThrottle struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewIPThrottle(rps float64, burst int) *IPThrottle {
	return &IPThrottle{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (t *IPThrottle) limiter(ip string) *rate.Limiter {
	t.mu.RLock()
	limiter, exists := t.limiters[ip]
	t.mu.RUnlock()

	if !exists {
		t.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = t.limiters[ip]
		if !exists {
			limiter = rate.NewLimiter(t.rps, t.burst)
			t.limiters[ip] = limiter
		}
		t.mu.Unlock()
	}

	return limiter
}

// Throttle enforces the global per-IP rate limit.
func (a *App) Throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") || strings.HasPrefix(r.URL.Path, "/ready") {
			next.ServeHTTP(w, r)
			return
		}
		if !a.throttle.limiter(clientIP(r)).Allow() {
			a.respondError(w, errRateLimited(time.Second))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Logging middleware logs requests
func (a *App) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		a.stats.record(wrapped.statusCode)
		log.Printf("[%s] %s %s %d %v", r.Method, r.URL.Path, r.RemoteAddr, wrapped.statusCode, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeaders middleware adds security headers
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// CORS middleware handles CORS headers
func (a *App) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := len(a.corsOrigins) == 0
			for _, o := range a.corsOrigins {
				if o == origin || o == "*" {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
