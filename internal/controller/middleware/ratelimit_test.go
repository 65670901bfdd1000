package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keinar/Agnox-sub002/internal/store"
)

func limitedRequest(org *store.Organization) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/executions/t1", nil)
	return req.WithContext(ContextWithOrganization(req.Context(), org))
}

func TestRateLimitMiddleware_BudgetExhausted(t *testing.T) {
	handler := RateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	org := &store.Organization{ID: "org-abc", RateLimit: 1, RateBurst: 2}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, limitedRequest(org))
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("requests within the burst must pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the burst is spent, got %v", codes)
	}
}

func TestRateLimitMiddleware_ZeroLimitIsUnlimited(t *testing.T) {
	handler := RateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	org := &store.Organization{ID: "org-free", RateLimit: 0}

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, limitedRequest(org))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d limited despite RateLimit=0: %d", i, rr.Code)
		}
	}
}

func TestRateLimitMiddleware_LimitersAreIndependentPerOrganization(t *testing.T) {
	handler := RateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	orgA := &store.Organization{ID: "org-a", RateLimit: 1, RateBurst: 1}
	orgB := &store.Organization{ID: "org-b", RateLimit: 1, RateBurst: 1}

	// Spend org-a's budget.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, limitedRequest(orgA))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, limitedRequest(orgA))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("org-a should be limited, got %d", rr.Code)
	}

	// org-b is untouched.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, limitedRequest(orgB))
	if rr.Code != http.StatusOK {
		t.Errorf("one organization's limit must not affect another, got %d", rr.Code)
	}
}

func TestRateLimitMiddleware_NoOrganizationInContext(t *testing.T) {
	handler := RateLimitMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("handler must not run without an organization")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}
