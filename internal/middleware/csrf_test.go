package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCSRFMiddleware_SafeMethods_PassAndSetCookie(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := mw(okHandler(&called))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/change-password", nil))

			if !called {
				t.Fatal("handler should have been called")
			}
			var found bool
			for _, c := range w.Result().Cookies() {
				if c.Name == csrfCookieName && c.Value != "" && !c.HttpOnly {
					found = true
				}
			}
			if !found {
				t.Error("expected readable csrf_token cookie")
			}
		})
	}
}

func TestCSRFMiddleware_SafeMethod_KeepsExistingCookie(t *testing.T) {
	called := false
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler(&called))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Error("existing token cookie should not be replaced")
	}
}

func TestCSRFMiddleware_StateChanging(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		header     string
		wantStatus int
	}{
		{"matching tokens", "tok-1", "tok-1", http.StatusOK},
		{"missing cookie", "", "tok-1", http.StatusForbidden},
		{"missing header", "tok-1", "", http.StatusForbidden},
		{"mismatch", "tok-1", "tok-2", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewCSRFMiddleware(CSRFConfig{})(okHandler(&called))

			req := httptest.NewRequest(http.MethodPost, "/change-password", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("called = %v", called)
			}
			if tt.wantStatus == http.StatusForbidden {
				var body map[string]string
				json.NewDecoder(w.Body).Decode(&body)
				if body["error"] != "CSRF token validation failed" {
					t.Errorf("error = %q", body["error"])
				}
			}
		})
	}
}

func TestCSRFTokenHandler_IssuesAndReusesToken(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(body.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(body.Token))
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != body.Token || !cookies[0].Secure {
		t.Errorf("cookies = %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: body.Token})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var again struct {
		Token string `json:"token"`
	}
	json.NewDecoder(w.Body).Decode(&again)
	if again.Token != body.Token {
		t.Errorf("token = %q, want reused %q", again.Token, body.Token)
	}
}
