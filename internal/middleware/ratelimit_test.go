package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/staffportal/internal/model"
)

type mockRejectionRecorder struct {
	mu    sync.Mutex
	types []string
}

func (m *mockRejectionRecorder) RecordRateLimited(limitType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, limitType)
}

func requestWithUID(uid string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	return req.WithContext(ContextWithSession(req.Context(), &model.Session{ID: "sess-" + uid, UID: uid}))
}

func TestNewRateLimiterConfig_PerMinute(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 20)
	if cfg.GeneralRate != 2 {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.SessionBurst != 20 {
		t.Errorf("SessionBurst = %d, want 20", cfg.SessionBurst)
	}
}

func TestGeneralMiddleware_AllowsWithinBurstThenRejects(t *testing.T) {
	recorder := &mockRejectionRecorder{}
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    3,
		SessionRate:     1,
		SessionBurst:    1,
		CleanupInterval: time.Minute,
	}, recorder)
	defer rl.Stop()

	calls := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestWithUID("uid-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithUID("uid-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if ra, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || ra < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}
	if calls != 3 {
		t.Errorf("handler calls = %d, want 3", calls)
	}
	if len(recorder.types) != 1 || recorder.types[0] != "general" {
		t.Errorf("recorded = %v, want [general]", recorder.types)
	}
}

func TestGeneralMiddleware_IndependentPerUID(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 0.1, GeneralBurst: 1,
		SessionRate: 1, SessionBurst: 1,
		CleanupInterval: time.Minute,
	}, nil)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for _, uid := range []string{"uid-a", "uid-b", "uid-c"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestWithUID(uid))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", uid, w.Code)
		}
	}
	if got := rl.GeneralLimiterCount(); got != 3 {
		t.Errorf("GeneralLimiterCount = %d, want 3", got)
	}
}

func TestGeneralMiddleware_NoSession_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), nil)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSessionEstablishMiddleware_LimitsPerClientIP(t *testing.T) {
	recorder := &mockRejectionRecorder{}
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 1,
		SessionRate: 0.1, SessionBurst: 2,
		CleanupInterval: time.Minute,
	}, recorder)
	defer rl.Stop()

	handler := rl.SessionEstablishMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1:5000"); code != http.StatusOK {
		t.Errorf("first: status = %d", code)
	}
	if code := send("10.0.0.1:5001"); code != http.StatusOK {
		t.Errorf("second: status = %d", code)
	}
	if code := send("10.0.0.1:5002"); code != http.StatusTooManyRequests {
		t.Errorf("third from same IP: status = %d, want 429", code)
	}
	if code := send("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", code)
	}
	if got := rl.SessionLimiterCount(); got != 2 {
		t.Errorf("SessionLimiterCount = %d, want 2", got)
	}
	if len(recorder.types) != 1 || recorder.types[0] != "session" {
		t.Errorf("recorded = %v, want [session]", recorder.types)
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 1,
		SessionRate: 1, SessionBurst: 1,
		CleanupInterval: time.Hour,
	}, nil)
	defer rl.Stop()

	rl.general.get("uid-1")
	rl.session.get("10.0.0.1")

	rl.general.evict(time.Now().Add(3*time.Hour), 2*time.Hour)
	rl.session.evict(time.Now().Add(3*time.Hour), 2*time.Hour)

	if rl.GeneralLimiterCount() != 0 || rl.SessionLimiterCount() != 0 {
		t.Errorf("counts = %d/%d, want 0/0", rl.GeneralLimiterCount(), rl.SessionLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig(), nil)
	rl.Stop()
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	if got := clientIP(req); got != "192.0.2.10" {
		t.Errorf("clientIP = %q, want 192.0.2.10", got)
	}
	req.RemoteAddr = "192.0.2.11"
	if got := clientIP(req); got != "192.0.2.11" {
		t.Errorf("clientIP = %q, want 192.0.2.11", got)
	}
}

func TestClientIP_IgnoresForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("X-Real-IP", "203.0.113.8")
	if got := clientIP(req); got != "192.0.2.10" {
		t.Errorf("clientIP = %q, want 192.0.2.10", got)
	}
}
