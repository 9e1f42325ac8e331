package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 5)
	defer rl.Stop()

	tokenID := uuid.New()

	for i := 0; i < 5; i++ {
		if !rl.Allow(tokenID) {
			t.Errorf("Request %d should be allowed within burst", i+1)
		}
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 5)
	defer rl.Stop()

	tokenID := uuid.New()

	for i := 0; i < 5; i++ {
		rl.Allow(tokenID)
	}

	if rl.Allow(tokenID) {
		t.Error("Request after burst exhaustion should be blocked")
	}
}

func TestRateLimiter_IsolatesTokens(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 2)
	defer rl.Stop()

	first := uuid.New()
	second := uuid.New()

	rl.Allow(first)
	rl.Allow(first)
	if rl.Allow(first) {
		t.Error("First token should be exhausted")
	}

	if !rl.Allow(second) {
		t.Error("Second token should not be affected by first token's limit")
	}
}

func TestRateLimitMiddleware_SkipsNonAPIToken(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(10, 1)
	defer rl.Stop()

	middleware := RateLimitMiddleware(rl)

	handlerCalled := 0
	handler := func(c echo.Context) error {
		handlerCalled++
		return c.String(http.StatusOK, "OK")
	}

	// JWT-authenticated requests carry no API token context and bypass
	// the limiter entirely, even when repeated past the burst size.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := middleware(handler)(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rec.Code)
		}
	}

	if handlerCalled != 3 {
		t.Errorf("Expected handler called 3 times, got %d", handlerCalled)
	}
}

func TestRateLimitMiddleware_Returns429WhenExhausted(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(10, 1)
	defer rl.Stop()

	middleware := RateLimitMiddleware(rl)
	tokenID := uuid.New()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	makeRequest := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/escrow/allocations", nil)
		ctx := context.WithValue(req.Context(), APITokenIDKey, tokenID)
		ctx = context.WithValue(ctx, IsAPITokenAuthKey, true)
		req = req.WithContext(ctx)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := middleware(handler)(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		return rec
	}

	first := makeRequest()
	if first.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("Expected X-RateLimit-Limit header on allowed request")
	}

	second := makeRequest()
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429 after burst, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on rate limited response")
	}
}
