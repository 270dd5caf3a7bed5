package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientKey_PrefersAPIKeyHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "key-123")
	req.Header.Set("Authorization", "Bearer other-token")
	assert.Equal(t, "key-123", clientKey(req))
}

func TestClientKey_FallsBackToBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer tok-456")
	assert.Equal(t, "tok-456", clientKey(req))
}

func TestClientKey_FallsBackToRemoteIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	assert.Equal(t, "203.0.113.5", clientKey(req))
}

func TestClientKey_UsesRawRemoteAddrWhenUnparsable(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "not-a-host-port"
	assert.Equal(t, "not-a-host-port", clientKey(req))
}

func TestNewRedisRateLimiter_ClampsNonPositiveRPS(t *testing.T) {
	rl := NewRedisRateLimiter(nil, 0, 10)
	assert.Equal(t, float64(1), rl.rps)

	rl = NewRedisRateLimiter(nil, -5, 10)
	assert.Equal(t, float64(1), rl.rps)
}
