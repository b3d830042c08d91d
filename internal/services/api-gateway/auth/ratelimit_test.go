package auth

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerClientBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 0.5, Burst: 2})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	hit := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/google", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1:1001").Code)

	rec := hit("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	assert.Equal(t, http.StatusNoContent, hit("10.0.0.2:1000").Code)
}

func TestRateLimiter_EvictsOldestClient(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 1, Burst: 1, MaxClients: 1, IdleTTL: time.Hour})
	a := rl.limiter("a")
	assert.True(t, a.Allow())
	rl.limiter("b")
	assert.Equal(t, 1, rl.clients.Len())
	assert.True(t, rl.limiter("a").Allow(), "a fresh bucket after eviction")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[::1]:443"
	assert.Equal(t, "::1", clientIP(r))
	r.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(r))
}

func TestRateLimiter_ConcurrentFirstRequestsShareBucket(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPS: 0.001, Burst: 1})

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if rl.limiter("10.0.0.9").Allow() {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load())
	assert.Equal(t, 1, rl.clients.Len())
}
