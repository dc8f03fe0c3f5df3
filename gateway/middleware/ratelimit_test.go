package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"mint": {RequestsPerMinute: 60, Burst: 1},
	}, nil)

	handler := limiter.Middleware("mint")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/mint", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"mint": {RequestsPerMinute: 60, Burst: 1},
		"burn": {RequestsPerMinute: 60, Burst: 1},
	}, nil)

	mintHandler := limiter.Middleware("mint")(okHandler())
	burnHandler := limiter.Middleware("burn")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/mint", nil)
	res := httptest.NewRecorder()
	mintHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected mint request to succeed, got %d", res.Code)
	}

	burnReq := httptest.NewRequest(http.MethodPost, "/v1/burn", nil)
	burnRes := httptest.NewRecorder()
	burnHandler.ServeHTTP(burnRes, burnReq)
	if burnRes.Code != http.StatusOK {
		t.Fatalf("expected burn request to succeed despite shared client, got %d", burnRes.Code)
	}
}

func TestRateLimiterPassesUnknownKey(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{}, nil)
	handler := limiter.Middleware("mint")(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/mint", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("expected request %d to pass, got %d", i, res.Code)
		}
	}
}
