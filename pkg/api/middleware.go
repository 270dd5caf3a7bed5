package api

import (
	"bytes"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/openintent-ai/openintent/pkg/authz"
)

// RateLimiter is anything Router can install as the outermost per-request
// gate. GlobalRateLimiter (in-process) and RedisRateLimiter (distributed)
// both implement it.
type RateLimiter interface {
	Middleware(next http.Handler) http.Handler
}

// GlobalRateLimiter manages per-IP token-bucket limiters.
type GlobalRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewGlobalRateLimiter builds a limiter allowing rps requests/sec per
// client IP with the given burst, sweeping idle entries every minute.
func NewGlobalRateLimiter(rps, burst int) *GlobalRateLimiter {
	rl := &GlobalRateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go rl.cleanupVisitors()
	return rl
}

func (rl *GlobalRateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[ip]
	if !ok {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *GlobalRateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware enforces the per-IP rate limit.
func (rl *GlobalRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
		}
		if !rl.getVisitor(ip).Allow() {
			WriteTooManyRequests(w, r, 5)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cachedResponse stores a previously-seen response for idempotent replay.
type cachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CachedAt   time.Time
}

// MemoryIdempotencyStore caches mutating-request responses keyed by the
// caller's Idempotency-Key header, replaying the cached response for any
// retry seen inside ttl.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]*cachedResponse
	ttl     time.Duration
}

// NewIdempotencyStore builds a MemoryIdempotencyStore, sweeping expired
// entries every 5 minutes.
func NewIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	s := &MemoryIdempotencyStore{entries: make(map[string]*cachedResponse), ttl: ttl}
	go s.cleanup()
	return s
}

func (s *MemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for k, v := range s.entries {
			if now.Sub(v.CachedAt) > s.ttl {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}

func (s *MemoryIdempotencyStore) check(key string) (*cachedResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.entries[key]
	if ok && time.Since(c.CachedAt) < s.ttl {
		return c, true
	}
	return nil, false
}

func (s *MemoryIdempotencyStore) set(key string, statusCode int, headers http.Header, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &cachedResponse{StatusCode: statusCode, Headers: headers, Body: body, CachedAt: time.Now()}
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.statusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// IdempotencyMiddleware ensures a mutating request carrying an
// Idempotency-Key header is applied exactly once; duplicates replay the
// cached response instead of re-running the handler.
func IdempotencyMiddleware(store *MemoryIdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if cached, ok := store.check(key); ok {
				for k, vals := range cached.Headers {
					for _, v := range vals {
						w.Header().Add(k, v)
					}
				}
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.set(key, capture.statusCode, w.Header().Clone(), capture.body.Bytes())
			}
		})
	}
}

// AuthMiddleware resolves the caller's Principal from an API key plus an
// asserted agent id, per spec.md §4.6: the API key is the authentication
// boundary, X-Agent-ID is the identity asserted once past it.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if key == "" {
				key = r.Header.Get("X-API-Key")
			}
			principalID, ok := apiKeys[key]
			if !ok || key == "" {
				WriteUnauthorized(w, r, "missing or invalid API key")
				return
			}
			if agentID := r.Header.Get("X-Agent-ID"); agentID != "" {
				principalID = agentID
			}
			ctx := authz.WithPrincipal(r.Context(), authz.Principal{ID: principalID, Type: "agent"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
