package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()
	l := New(cfg)
	t.Cleanup(l.Close)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestLimiter_Allow(t *testing.T) {
	l, clock := newTestLimiter(t, Config{PerMinute: 60, Burst: 3})

	for i := range 3 {
		ok, remaining, _ := l.Allow("1.2.3.4")
		require.True(t, ok, "request %d", i)
		assert.Equal(t, 2-i, remaining)
	}
	ok, _, retry := l.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)

	// Other clients have their own bucket.
	ok, _, _ = l.Allow("5.6.7.8")
	assert.True(t, ok)

	*clock = clock.Add(time.Second)
	ok, _, _ = l.Allow("1.2.3.4")
	assert.True(t, ok)

	// Refill never exceeds the burst.
	*clock = clock.Add(time.Hour)
	for range 3 {
		ok, _, _ = l.Allow("1.2.3.4")
		require.True(t, ok)
	}
	ok, _, _ = l.Allow("1.2.3.4")
	assert.False(t, ok)
}

func TestLimiter_ResetAndIdle(t *testing.T) {
	l, clock := newTestLimiter(t, Config{PerMinute: 1, Burst: 1, IdleTTL: time.Minute})

	ok, _, _ := l.Allow("a")
	require.True(t, ok)
	ok, _, _ = l.Allow("a")
	require.False(t, ok)

	l.Reset("a")
	ok, _, _ = l.Allow("a")
	assert.True(t, ok)

	l.Allow("b")
	assert.Equal(t, 2, l.Len())
	*clock = clock.Add(2 * time.Minute)
	l.dropIdle()
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_Defaults(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	assert.Equal(t, 60, l.Burst())

	l, _ = newTestLimiter(t, Config{PerMinute: 10})
	assert.Equal(t, 10, l.Burst())
}

func TestLimiter_ClientIP(t *testing.T) {
	l, _ := newTestLimiter(t, Config{TrustedProxies: []string{"10.0.0.0/8", "192.168.1.1", "bogus"}})
	untrusted, _ := newTestLimiter(t, Config{})

	tests := []struct {
		name    string
		limiter *Limiter
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct", l, "8.8.8.8:1234", nil, "8.8.8.8"},
		{"untrusted peer ignores XFF", untrusted, "10.0.0.5:1", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "10.0.0.5"},
		{"trusted CIDR", l, "10.0.0.5:1", map[string]string{"X-Forwarded-For": "1.1.1.1, 10.0.0.5"}, "1.1.1.1"},
		{"trusted single address", l, "192.168.1.1:1", map[string]string{"X-Real-IP": "2.2.2.2"}, "2.2.2.2"},
		{"invalid header falls back", l, "10.0.0.5:1", map[string]string{"X-Forwarded-For": "nonsense"}, "10.0.0.5"},
		{"spoofed leftmost entry ignored", l, "10.0.0.5:1", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.1.1.1"}, "1.1.1.1"},
		{"trusted hops skipped from the right", l, "10.0.0.5:1", map[string]string{"X-Forwarded-For": "6.6.6.6, 1.1.1.1, 10.1.1.1, 192.168.1.1"}, "1.1.1.1"},
		{"all hops trusted", l, "10.0.0.5:1", map[string]string{"X-Forwarded-For": "10.9.9.9, 10.1.1.1"}, "10.9.9.9"},
		{"no port", l, "8.8.4.4", nil, "8.8.4.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.limiter.ClientIP(r))
		})
	}
}

func TestMiddleware_ForwardedForRotationStillLimited(t *testing.T) {
	l, _ := newTestLimiter(t, Config{PerMinute: 2, Burst: 2, TrustedProxies: []string{"10.0.0.1"}})
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	allowed := 0
	for i := range 10 {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.RemoteAddr = "10.0.0.1:443"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d, 203.0.113.7", i))
		h.ServeHTTP(rec, r)
		if rec.Code == http.StatusNoContent {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t, Config{PerMinute: 30, Burst: 1})
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.RemoteAddr = "9.9.9.9:5555"
		h.ServeHTTP(rec, r)
		return rec
	}

	rec := send()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"rate_limited"`)
}

func TestMiddleware_NilLimiter(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	Middleware(nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestClose_StopsSweeper(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	l := New(Config{SweepInterval: time.Millisecond})
	l.Close()
	l.Close()
}
