package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware(Config{Enabled: true, Token: "s3cret"})(next)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{"health exempt", "GET", "/healthz", "", http.StatusNoContent},
		{"propagate exempt", "GET", "/api/v1/propagate/25544", "", http.StatusNoContent},
		{"list flights public", "GET", "/api/register-flight", "", http.StatusNoContent},
		{"read report public", "GET", "/api/v1/flights/1/safety", "", http.StatusNoContent},
		{"register needs token", "POST", "/api/register-flight", "", http.StatusUnauthorized},
		{"run analysis needs token", "POST", "/api/v1/flights/1/safety", "", http.StatusUnauthorized},
		{"tle fetch needs token", "POST", "/api/v1/tle/fetch", "", http.StatusUnauthorized},
		{"wrong token", "DELETE", "/api/register-flight/1", "Bearer nope", http.StatusUnauthorized},
		{"missing bearer prefix", "DELETE", "/api/register-flight/1", "s3cret", http.StatusUnauthorized},
		{"valid token", "DELETE", "/api/register-flight/1", "Bearer s3cret", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/register-flight", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
