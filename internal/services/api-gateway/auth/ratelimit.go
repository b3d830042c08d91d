package auth

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	Enable bool    `mapstructure:"enable"`
	RPS    float64 `mapstructure:"rps"`
	Burst  int     `mapstructure:"burst"`
	// MaxClients caps how many client addresses are tracked at once.
	MaxClients int           `mapstructure:"max_clients"`
	IdleTTL    time.Duration `mapstructure:"idle_ttl"`
}

// RateLimiter is a per-client-IP token bucket. Idle buckets expire, and the
// least recently seen client is evicted when MaxClients is reached.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	mu      sync.Mutex // makes lookup-or-create atomic per key
	clients *expirable.LRU[string, *rate.Limiter]
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10_000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	return &RateLimiter{
		rps:     rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		clients: expirable.NewLRU[string, *rate.Limiter](cfg.MaxClients, nil, cfg.IdleTTL),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.clients.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.rps, rl.burst)
	rl.clients.Add(key, l)
	return l
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(int(math.Ceil(1/float64(rl.rps))), 1))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP expects RemoteAddr to already be rewritten by a real-ip middleware
// when running behind a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
