// Package ratelimit implements a per-client token bucket for HTTP handlers.
package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxClients bounds the number of tracked client buckets.
const maxClients = 10000

type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *lru.Cache[string, *rate.Limiter]
	trusted []netip.Prefix
}

type Opt func(*Limiter)

// WithTrustedProxies makes the limiter honour X-Forwarded-For on requests
// arriving from the given prefixes. Without it the header is ignored.
func WithTrustedProxies(prefixes ...netip.Prefix) Opt {
	return func(l *Limiter) {
		l.trusted = append(l.trusted, prefixes...)
	}
}

func New(perMin, burst int, opts ...Opt) *Limiter {
	if perMin <= 0 {
		perMin = 60
	}
	if burst <= 0 {
		burst = 120
	}
	buckets, _ := lru.New[string, *rate.Limiter](maxClients)
	l := &Limiter{
		limit:   rate.Every(time.Minute / time.Duration(perMin)),
		burst:   burst,
		buckets: buckets,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets.Get(ip)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(ip, b)
	}
	return b
}

// Allow consumes one token from the bucket of the request's client.
func (l *Limiter) Allow(r *http.Request) bool {
	return l.get(l.clientIP(r)).Allow()
}

// clientIP returns the remote address host. When that host is a trusted proxy
// the X-Forwarded-For chain is walked from the right and the first untrusted
// hop is the client.
func (l *Limiter) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !l.isTrusted(host) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !l.isTrusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}

func (l *Limiter) isTrusted(ip string) bool {
	if len(l.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
