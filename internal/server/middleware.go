package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/anchor-vcs/anchor/internal/auth"
	"github.com/anchor-vcs/anchor/internal/authz"
	"github.com/anchor-vcs/anchor/internal/fingerprint"
	"github.com/anchor-vcs/anchor/pkg/errclass"
)

type contextKey int

const claimsKey contextKey = iota

// claimsFrom returns the verified access token claims for a request.
// Handlers behind requireAuth can assume they are present.
func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

func (s *Server) roleOf(claims *auth.Claims) authz.Role {
	return authz.RoleFor(claims.Username(), s.cfg.AdminUsername)
}

// requestLogger logs method, path, status, and latency for every request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
			"peer":     fingerprint.PeerIP(r),
		}).Info("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// secureHeaders sets the standard hardening headers on every response.
func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// maxBodyBytes bounds request bodies; oversized uploads fail with 413.
const maxBodyBytes = 64 << 20

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// ipLimiter tracks a token bucket per client address.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(fingerprint.PeerIP(r)) {
			writeError(w, errclass.ErrRateLimited.WithMessage("too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth verifies the bearer token against the request fingerprint and
// attaches the claims to the context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, errclass.ErrUnauthenticated.WithMessage("missing bearer token"))
			return
		}
		claims, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "), fingerprint.FromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// requirePerm layers a permission check on top of requireAuth.
func (s *Server) requirePerm(perm authz.Permission, next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if err := authz.Check(s.roleOf(claimsFrom(r)), perm); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireStepUp additionally demands a fresh step-up assertion.
func (s *Server) requireStepUp(perm authz.Permission, next http.HandlerFunc) http.HandlerFunc {
	return s.requirePerm(perm, func(w http.ResponseWriter, r *http.Request) {
		if !claimsFrom(r).StepUpFresh(time.Now()) {
			writeError(w, errclass.ErrForbidden.WithMessage("step-up verification required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
