package core

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"emberwatch/internal/types"
)

// clientLimiter pairs a token bucket with the time it was last used so idle
// buckets can be evicted.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiterPool maintains per-client token buckets keyed by remote IP.
type ipLimiterPool struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
}

func newIPLimiterPool(rps float64, burst int) *ipLimiterPool {
	return &ipLimiterPool{
		limiters: make(map[string]*clientLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// get returns the bucket for ip, creating it on first sight. Buckets idle for
// more than ten minutes are evicted opportunistically.
func (p *ipLimiterPool) get(ip string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.limiters) > 1024 {
		for key, cl := range p.limiters {
			if now.Sub(cl.lastSeen) > 10*time.Minute {
				delete(p.limiters, key)
			}
		}
	}

	cl, ok := p.limiters[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.limiters[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimit enforces a per-client request rate using token buckets keyed by
// remote IP. The pool is created lazily from the security config. Requests
// over the limit receive 429 with a Retry-After header.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	var (
		once sync.Once
		pool *ipLimiterPool
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			rps := 20.0
			burst := 40
			if s.Config != nil && s.Config.Security.RateLimitPerSecond > 0 {
				rps = s.Config.Security.RateLimitPerSecond
				burst = s.Config.Security.RateLimitBurst
			}
			pool = newIPLimiterPool(rps, burst)
		})

		ip := clientIP(r)
		limiter := pool.get(ip, time.Now())

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(pool.burst))

		if !limiter.Allow() {
			s.Logger.Warn("rate limit exceeded",
				slog.String("client_ip", ip),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			w.Header().Set("Retry-After", "1")
			JSON(w, r, http.StatusTooManyRequests, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeRateLimit),
					Message:   "rate limit exceeded, retry shortly",
					RequestID: types.GetRequestID(r.Context()),
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, honoring X-Forwarded-For when the
// service runs behind a proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop is the originating client.
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
