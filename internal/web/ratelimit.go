package web

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimiter allows a fixed number of requests per client IP in each
// window. Stale clients are swept lazily on the request path.
type rateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientWindow
	lastSweep time.Time
}

type clientWindow struct {
	start time.Time
	used  int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*clientWindow),
	}
}

// allow consumes one request for ip. When refused it also returns how long
// until the client's window resets.
func (rl *rateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.window {
		for k, c := range rl.clients {
			if now.Sub(c.start) > rl.window {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.clients[ip]
	if !ok || now.Sub(c.start) > rl.window {
		rl.clients[ip] = &clientWindow{start: now, used: 1}
		return true, 0
	}
	if c.used >= rl.limit {
		return false, c.start.Add(rl.window).Sub(now)
	}
	c.used++
	return true, 0
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.allow(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSONStatus(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "Too many requests from this address",
				Action:  "Wait before sending more import requests",
				Code:    "HTTP429",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
