// Package ratelimit throttles requests per client address with token buckets.
//
// The API uses it to slow down password guessing on POST /auth/login.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Default limiter values.
const (
	DefaultSweepInterval = time.Minute
	DefaultIdleTTL       = 10 * time.Minute
)

// Config configures a Limiter.
type Config struct {
	// PerMinute is the sustained number of requests allowed per client.
	PerMinute int
	// Burst is the bucket capacity. Defaults to PerMinute.
	Burst int
	// TrustedProxies lists CIDRs (or single addresses) whose
	// X-Forwarded-For and X-Real-IP headers are believed.
	TrustedProxies []string
	// IdleTTL drops buckets not touched for this long.
	IdleTTL time.Duration
	// SweepInterval is how often idle buckets are dropped.
	SweepInterval time.Duration
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	rate    float64 // tokens per second
	burst   float64
	idleTTL time.Duration
	proxies []*net.IPNet

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New creates a limiter and starts its sweeper. Call Close to stop it.
func New(cfg Config) *Limiter {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = perMinute
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = DefaultIdleTTL
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}

	l := &Limiter{
		rate:    float64(perMinute) / 60,
		burst:   float64(burst),
		idleTTL: idle,
		proxies: parseNetworks(cfg.TrustedProxies),
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.sweep(sweep)
	return l
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return int(l.burst)
}

// Allow takes a token from key's bucket. When none is left it reports how
// long until one is.
func (l *Limiter) Allow(key string) (ok bool, remaining int, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.rate)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), 0
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, 0, wait
}

// Reset forgets key's bucket, e.g. after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the sweeper. It is safe to call more than once.
func (l *Limiter) Close() {
	l.once.Do(func() {
		close(l.stop)
		<-l.stopped
	})
}

func (l *Limiter) sweep(every time.Duration) {
	defer close(l.stopped)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.dropIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) dropIdle() {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// ClientIP returns the address to key r by. Forwarding headers are only
// believed when the direct peer is a trusted proxy. X-Forwarded-For is read
// from the right, and the first hop that is not a trusted proxy is the
// client; entries left of it are client-supplied and ignored.
func (l *Limiter) ClientIP(r *http.Request) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !l.trusted(remote) {
		return remote
	}
	if ip, ok := l.forwardedFor(r.Header.Values("X-Forwarded-For")); ok {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	return remote
}

func (l *Limiter) forwardedFor(values []string) (string, bool) {
	var hops []string
	for _, v := range values {
		for hop := range strings.SplitSeq(v, ",") {
			hops = append(hops, strings.TrimSpace(hop))
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if net.ParseIP(hops[i]) == nil {
			return "", false
		}
		if !l.trusted(hops[i]) || i == 0 {
			return hops[i], true
		}
	}
	return "", false
}

func (l *Limiter) trusted(addr string) bool {
	if len(l.proxies) == 0 {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range l.proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func parseNetworks(list []string) []*net.IPNet {
	var out []*net.IPNet
	for _, s := range list {
		s = strings.TrimSpace(s)
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				continue
			}
			if ip.To4() != nil {
				s += "/32"
			} else {
				s += "/128"
			}
		}
		if _, n, err := net.ParseCIDR(s); err == nil {
			out = append(out, n)
		}
	}
	return out
}
