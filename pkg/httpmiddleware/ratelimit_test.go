package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/delivery-api/internal/domain/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for _, fn := range mutate {
		fn(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	// A near-zero refill rate makes the burst the whole budget.
	cfg := RateLimitConfig{RPS: 0.001, Burst: 3}

	t.Run("WithinBurst", func(t *testing.T) {
		h := RateLimit(context.Background(), cfg)(okHandler())
		for i := range 3 {
			w := hit(h, "192.168.1.1:1234")
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
			assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		}
	})
	t.Run("OverBurst", func(t *testing.T) {
		h := RateLimit(context.Background(), cfg)(okHandler())
		for range 3 {
			require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999").Code)
		}

		w := hit(h, "10.0.0.1:9999")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())
	})
	t.Run("IndependentClients", func(t *testing.T) {
		h := RateLimit(context.Background(), RateLimitConfig{RPS: 0.001, Burst: 1})(okHandler())
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2").Code)
	})
	t.Run("ForwardedFor", func(t *testing.T) {
		h := RateLimit(context.Background(), RateLimitConfig{RPS: 0.001, Burst: 1})(okHandler())
		xff := func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18") }
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1", xff).Code)
		assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:1", xff).Code)
	})
	t.Run("Refill", func(t *testing.T) {
		h := RateLimit(context.Background(), RateLimitConfig{RPS: 50, Burst: 1})(okHandler())
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.9:1").Code)
		require.Eventually(t, func() bool {
			return hit(h, "10.0.0.9:1").Code == http.StatusOK
		}, time.Second, 10*time.Millisecond)
	})
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "ip:10.1.2.3", ClientKey(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "ip:198.51.100.7", ClientKey(req))

	id := uuid.New()
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: id, Role: auth.RoleCustomer}))
	assert.Equal(t, "user:"+id.String(), ClientKey(req))
}

func TestRateLimitEvict(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{RPS: 1, Burst: 1, TTL: time.Minute})
	now := time.Now()
	rl.reserve("old", now.Add(-2*time.Minute))
	rl.reserve("fresh", now)

	rl.evict(now)
	assert.NotContains(t, rl.buckets, "old")
	assert.Contains(t, rl.buckets, "fresh")
}
