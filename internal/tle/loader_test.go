package tle

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheWriteLoadPrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)
	base := time.Unix(1_700_000_000, 0)

	for i := range 4 {
		if err := c.Write([]byte{byte('a' + i)}, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := c.list()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("cache holds %d files, want 2", len(files))
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "d" || !ts.Equal(base.Add(3*time.Hour)) {
		t.Errorf("LoadLatest = %q at %v", data, ts)
	}
}

func TestCacheLoadLatestEmpty(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), 0)
	if _, _, err := c.LoadLatest(); err == nil {
		t.Fatal("expected error for empty cache")
	}
}

func TestLoaderRefresh(t *testing.T) {
	srv := serve(t, http.StatusOK, issTLE)
	store := NewStore()
	cache := NewCache(t.TempDir(), 3)
	l := NewLoader(NewFetcher(srv.URL, testLogger), cache, store, testLogger)

	ds, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if store.Get() != ds || len(ds.Satellites) != 1 {
		t.Fatalf("store not updated: %+v", store.Get())
	}
	if ds.Source != srv.URL {
		t.Errorf("source = %q, want %q", ds.Source, srv.URL)
	}

	// A second process starting from the same cache sees the same data.
	fresh := NewStore()
	cached, err := NewLoader(nil, cache, fresh, testLogger).LoadCached()
	if err != nil {
		t.Fatalf("LoadCached: %v", err)
	}
	if cached.Source != "cache" || len(cached.Satellites) != 1 || !fresh.Ready() {
		t.Errorf("cached dataset = %+v", cached)
	}
}

func TestLoaderRefreshEmpty(t *testing.T) {
	srv := serve(t, http.StatusOK, "nothing useful here\n")
	store := NewStore()
	l := NewLoader(NewFetcher(srv.URL, testLogger), NewCache(t.TempDir(), 1), store, testLogger)

	if _, err := l.Refresh(context.Background()); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("Refresh error = %v, want ErrEmptyDataset", err)
	}
	if store.Ready() {
		t.Error("empty fetch must not replace the dataset")
	}
}

func TestLoaderRefreshDisabled(t *testing.T) {
	l := NewLoader(nil, NewCache(t.TempDir(), 1), NewStore(), testLogger)
	if _, err := l.Refresh(context.Background()); !errors.Is(err, ErrFetchDisabled) {
		t.Fatalf("Refresh error = %v, want ErrFetchDisabled", err)
	}
}

func TestLoaderRefreshIfStale(t *testing.T) {
	srv := serve(t, http.StatusOK, issTLE)
	store := NewStore()
	l := NewLoader(NewFetcher(srv.URL, testLogger), NewCache(t.TempDir(), 2), store, testLogger)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	refreshed, err := l.RefreshIfStale(context.Background(), time.Hour)
	if err != nil || !refreshed {
		t.Fatalf("first RefreshIfStale = %v, %v; want refresh", refreshed, err)
	}

	now = now.Add(30 * time.Minute)
	if refreshed, _ := l.RefreshIfStale(context.Background(), time.Hour); refreshed {
		t.Error("dataset younger than maxAge should not refresh")
	}

	now = now.Add(time.Hour)
	if refreshed, err := l.RefreshIfStale(context.Background(), time.Hour); err != nil || !refreshed {
		t.Errorf("stale RefreshIfStale = %v, %v; want refresh", refreshed, err)
	}
}
