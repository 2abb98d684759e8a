package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jjcapestany/space-trace/internal/tle"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("Healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	loaded := tle.NewStore()
	loaded.Set(tle.NewDataset("test", time.Now(), []tle.TLEEntry{{NORADID: 25544, Name: "ISS"}}))

	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		store      *tle.Store
		db         Pinger
		wantStatus int
	}{
		{"no dataset", tle.NewStore(), nil, http.StatusServiceUnavailable},
		{"dataset, no database", loaded, nil, http.StatusOK},
		{"dataset, database up", loaded, ok, http.StatusOK},
		{"dataset, database down", loaded, down, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Readyz(tt.store, tt.db)(w, httptest.NewRequest("GET", "/readyz", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %q)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
