package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	t.Run("mints id", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		got := w.Header().Get(RequestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("response id %q is not a UUID", got)
		}
		if seen != got {
			t.Errorf("context id = %q, want %q", seen, got)
		}
	})

	t.Run("reuses valid incoming id", func(t *testing.T) {
		in := uuid.NewString()
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(RequestIDHeader, in)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if got := w.Header().Get(RequestIDHeader); got != in {
			t.Errorf("response id = %q, want %q", got, in)
		}
	})

	t.Run("replaces malformed incoming id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(RequestIDHeader, "x\ny")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if got := w.Header().Get(RequestIDHeader); got == "x\ny" {
			t.Error("malformed id was echoed")
		}
	})
}

func TestRequestIDEmpty(t *testing.T) {
	if id := RequestID(httptest.NewRequest("GET", "/", nil).Context()); id != "" {
		t.Errorf("RequestID = %q, want empty", id)
	}
}
