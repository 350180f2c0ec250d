package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()

	config := &RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
	}
	limiter := NewDistributedRateLimiter(client, config, "test")

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "user:1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("request %d: expected allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "user:1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("expected request over the limit to be denied")
	}

	// A different key has its own window
	allowed, err = limiter.Allow(ctx, "user:2")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("expected fresh key to be allowed")
	}
}

func TestDistributedRateLimiter_Remaining(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()

	config := &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}
	limiter := NewDistributedRateLimiter(client, config, "test")

	remaining, err := limiter.Remaining(ctx, "user:1")
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 5 {
		t.Errorf("initial remaining = %d, want 5", remaining)
	}

	if _, err := limiter.Allow(ctx, "user:1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if _, err := limiter.Allow(ctx, "user:1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	remaining, err = limiter.Remaining(ctx, "user:1")
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 3 {
		t.Errorf("remaining after 2 requests = %d, want 3", remaining)
	}
}

func TestDistributedRateLimiter_Reset(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()

	config := &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}
	limiter := NewDistributedRateLimiter(client, config, "test")

	if _, err := limiter.Allow(ctx, "user:1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	allowed, _ := limiter.Allow(ctx, "user:1")
	if allowed {
		t.Fatal("expected second request to be denied")
	}

	if err := limiter.Reset(ctx, "user:1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	allowed, err := limiter.Allow(ctx, "user:1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("expected request after reset to be allowed")
	}
}

func TestDistributedRateLimiter_WindowExpiry(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	config := &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Second,
	}
	limiter := NewDistributedRateLimiter(client, config, "test")

	if _, err := limiter.Allow(ctx, "user:1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	allowed, _ := limiter.Allow(ctx, "user:1")
	if allowed {
		t.Fatal("expected second request to be denied")
	}

	// Advance miniredis past the window so the counter expires
	mr.FastForward(2 * time.Second)

	allowed, err := limiter.Allow(ctx, "user:1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("expected request in a new window to be allowed")
	}
}

func TestDistributedRateLimitMiddleware_Handler(t *testing.T) {
	client, _ := setupRedis(t)

	middleware := NewDistributedRateLimitMiddleware(client)
	middleware.anonymousLimiter = NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
	}, "ratelimit:anon")

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Remaining") == "" {
			t.Error("X-RateLimit-Remaining header should be set")
		}
	}

	var droppedScope string
	middleware.OnDrop = func(scope string) { droppedScope = scope }

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
	if droppedScope != "anonymous" {
		t.Errorf("OnDrop scope = %q, want anonymous", droppedScope)
	}
}

func TestDistributedRateLimitMiddleware_UserScope(t *testing.T) {
	client, _ := setupRedis(t)

	middleware := NewDistributedRateLimitMiddleware(client)
	middleware.userLimiter = NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}, "ratelimit:user")

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := authenticatedRequest(http.MethodGet, "/test", 42)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	// A different user is not affected
	other := authenticatedRequest(http.MethodGet, "/test", 43)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("different user: expected 200, got %d", rec.Code)
	}
}

func TestDistributedRateLimitMiddleware_FailOpen(t *testing.T) {
	client, mr := setupRedis(t)

	middleware := NewDistributedRateLimitMiddleware(client)

	handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Kill redis to force errors
	mr.Close()

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fail open: expected 200, got %d", rec.Code)
	}

	// Fail closed returns 503 instead
	middleware.SetFallbackEnabled(false)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("fail closed: expected 503, got %d", rec.Code)
	}
}

func TestDistributedRateLimitMiddleware_HealthCheck(t *testing.T) {
	client, mr := setupRedis(t)

	middleware := NewDistributedRateLimitMiddleware(client)
	if err := middleware.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	mr.Close()
	if err := middleware.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail with redis down")
	}
}
