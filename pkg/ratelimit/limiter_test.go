package ratelimit

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterBurst(t *testing.T) {
	l := New(1, 3)
	r := httptest.NewRequest("GET", "/api/charts", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(r), "request %d", i)
	}
	require.False(t, l.Allow(r))

	other := httptest.NewRequest("GET", "/api/charts", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	require.True(t, l.Allow(other))
}

func TestClientIP(t *testing.T) {
	l := New(1, 1)
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:1234"
	require.Equal(t, "192.0.2.7", l.clientIP(r))

	// Untrusted peers cannot pick their bucket through the header.
	r.Header.Set("X-Forwarded-For", " 198.51.100.3 , 10.0.0.1")
	require.Equal(t, "192.0.2.7", l.clientIP(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "pipe"
	require.Equal(t, "pipe", l.clientIP(r))
}

func TestClientIPTrustedProxy(t *testing.T) {
	l := New(1, 1, WithTrustedProxies(netip.MustParsePrefix("10.0.0.0/8")))
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:8080"
	require.Equal(t, "10.0.0.5", l.clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.3, 10.0.0.1")
	require.Equal(t, "198.51.100.3", l.clientIP(r))

	r.Header.Set("X-Forwarded-For", "10.0.0.2")
	require.Equal(t, "10.0.0.2", l.clientIP(r))
}

func TestForwardedForDoesNotBypassLimit(t *testing.T) {
	l := New(1, 1)
	for i, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "192.0.2.7:1234"
		r.Header.Set("X-Forwarded-For", xff)
		require.Equal(t, i == 0, l.Allow(r), "request %d", i)
	}

	trusting := New(1, 1, WithTrustedProxies(netip.MustParsePrefix("192.0.2.0/24")))
	for _, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "192.0.2.7:1234"
		r.Header.Set("X-Forwarded-For", xff)
		require.True(t, trusting.Allow(r), xff)
	}
}

func TestNewDefaults(t *testing.T) {
	l := New(0, 0)
	require.Equal(t, 120, l.burst)
}
