package tle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issTLE = "ISS (ZARYA)\n" +
		"1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n" +
		"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"
	starlinkTLE = "STARLINK-1007\n" +
		"1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995\n" +
		"2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcherSuccess(t *testing.T) {
	srv := serve(t, http.StatusOK, issTLE)

	data, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != issTLE {
		t.Errorf("body mismatch: got %q", data)
	}
}

func TestFetcherHTTPError(t *testing.T) {
	srv := serve(t, http.StatusInternalServerError, "")

	if _, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

// Responses past the 50 MB cap must fail instead of growing without bound.
func TestFetcherBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		chunk := []byte(strings.Repeat("A", 1<<20))
		for range 52 {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error for oversized response, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

// The primary body lacks a trailing newline; concatenation must still yield
// two parsable blocks.
func TestFetcherExtraURLs(t *testing.T) {
	primary := serve(t, http.StatusOK, starlinkTLE)
	extra := serve(t, http.StatusOK, issTLE)

	data, err := NewFetcher(primary.URL, testLogger, extra.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := Parse(strings.NewReader(string(data)), testLogger)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].NORADID != 44713 || entries[1].NORADID != 25544 {
		t.Errorf("order = %d, %d; want primary first", entries[0].NORADID, entries[1].NORADID)
	}
}

func TestFetcherExtraURLFailure(t *testing.T) {
	primary := serve(t, http.StatusOK, starlinkTLE)
	failing := serve(t, http.StatusInternalServerError, "")

	data, err := NewFetcher(primary.URL, testLogger, failing.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("primary fetch should succeed even when extra fails: %v", err)
	}

	entries, err := Parse(strings.NewReader(string(data)), testLogger)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(entries) != 1 || entries[0].NORADID != 44713 {
		t.Fatalf("expected only the primary entry, got %+v", entries)
	}
}

func TestFetcherDefaultURL(t *testing.T) {
	if got := NewFetcher("", testLogger).SourceURL(); got != defaultSourceURL {
		t.Errorf("SourceURL = %q, want default", got)
	}
}
