package server

import (
	"log"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chaptergate/internal/engine"
)

// newBanMiddleware answers 403 for banned addresses on the public API. Admin
// routes stay reachable so an operator can lift a ban on themselves.
func newBanMiddleware(basePath string, e engine.Engine, logger *log.Logger) func(http.Handler) http.Handler {
	adminPath := path.Join(basePath, "admin")
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := req.URL.Path
			if !strings.HasPrefix(p, basePath+"/") || p == healthPath || strings.HasPrefix(p, adminPath+"/") || p == adminPath {
				next.ServeHTTP(w, req)
				return
			}
			banned, err := e.IsBanned(req.Context(), clientIP(req))
			if err != nil {
				logger.Printf("ban lookup failed: %v", err)
				respondStatusError(w, newAPIError(req.Context(), http.StatusInternalServerError, "internal_error", "internal error"))
				return
			}
			if banned {
				respondStatusError(w, newAPIError(req.Context(), http.StatusForbidden, "forbidden", "forbidden"))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// ipLimiter keeps one token bucket per client address. Buckets idle for
// longer than idle are full again and get swept.
type ipLimiter struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

const minLimiterIdle = 10 * time.Minute

func newIPLimiter(perMinute, burst int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	every := time.Minute / time.Duration(perMinute)
	idle := every * time.Duration(burst)
	if idle < minLimiterIdle {
		idle = minLimiterIdle
	}
	return &ipLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Every(every),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// sweep drops idle buckets. Caller holds mu.
func (l *ipLimiter) sweep(now time.Time) {
	for ip, e := range l.entries {
		if now.Sub(e.seen) >= l.idle {
			delete(l.entries, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func isAnswerPath(basePath, p string) bool {
	switch p {
	case path.Join(basePath, "plaques/validate"), path.Join(basePath, "keywords/check"):
		return true
	}
	return strings.HasPrefix(p, path.Join(basePath, "puzzles")+"/")
}

// newRateLimitMiddleware throttles answer submissions. A nil limiter disables it.
func newRateLimitMiddleware(basePath string, l *ipLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method == http.MethodPost && isAnswerPath(basePath, req.URL.Path) && !l.allow(clientIP(req)) {
				w.Header().Set("Retry-After", "60")
				respondStatusError(w, newAPIError(req.Context(), http.StatusTooManyRequests, "rate_limited", "too many attempts"))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
