package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jjcapestany/space-trace/internal/metrics"
)

var (
	// ErrEmptyDataset is returned when a source yields no parsable entries.
	ErrEmptyDataset = errors.New("TLE data contains no valid entries")

	// ErrFetchDisabled is returned by Refresh when no fetcher is configured.
	ErrFetchDisabled = errors.New("TLE fetching is disabled")
)

// Loader moves TLE data from the remote source through the disk cache into
// the in-memory store.
type Loader struct {
	fetcher *Fetcher
	cache   *Cache
	store   *Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewLoader creates a Loader. fetcher may be nil when remote fetching is
// disabled; Refresh then fails.
func NewLoader(fetcher *Fetcher, cache *Cache, store *Store, logger *slog.Logger) *Loader {
	return &Loader{fetcher: fetcher, cache: cache, store: store, logger: logger, now: time.Now}
}

// LoadCached publishes the newest cached file, if any.
func (l *Loader) LoadCached() (*TLEDataset, error) {
	data, ts, err := l.cache.LoadLatest()
	if err != nil {
		return nil, err
	}
	ds, err := l.publish(data, "cache", ts)
	if err != nil {
		return nil, err
	}
	l.logger.Info("loaded TLE data from cache", "count", len(ds.Satellites), "cached_at", ts.Format(time.RFC3339))
	return ds, nil
}

// Refresh fetches, caches, parses and publishes a new dataset. Concurrent
// refreshes are serialized on the store's fetch lock.
func (l *Loader) Refresh(ctx context.Context) (*TLEDataset, error) {
	if l.fetcher == nil {
		return nil, ErrFetchDisabled
	}

	l.store.Lock()
	defer l.store.Unlock()

	start := l.now()
	data, err := l.fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncTLEFetch("error")
		return nil, err
	}

	if err := l.cache.Write(data, start); err != nil {
		// The fetched data is still usable without a cache copy.
		l.logger.Warn("failed to write TLE cache", "error", err)
	}

	ds, err := l.publish(data, l.fetcher.SourceURL(), start)
	if err != nil {
		metrics.IncTLEFetch("error")
		return nil, err
	}
	metrics.IncTLEFetch("success")

	l.logger.Info("TLE data refreshed",
		"count", len(ds.Satellites),
		"source", ds.Source,
		"duration_ms", l.now().Sub(start).Milliseconds(),
	)
	return ds, nil
}

// RefreshIfStale refreshes when no dataset is loaded or the current one is
// older than maxAge. It reports whether a refresh happened.
func (l *Loader) RefreshIfStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	if ds := l.store.Get(); ds != nil && l.now().Sub(ds.FetchedAt) < maxAge {
		return false, nil
	}
	if _, err := l.Refresh(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Run checks staleness every interval until ctx is done. It also keeps the
// dataset age gauge current.
func (l *Loader) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if age := l.store.AgeSeconds(); age >= 0 {
				metrics.SetTLEDatasetAge(age)
			}
			if l.fetcher == nil {
				continue
			}
			if _, err := l.RefreshIfStale(ctx, maxAge); err != nil {
				l.logger.Warn("periodic TLE refresh failed", "error", err)
			}
		}
	}
}

func (l *Loader) publish(data []byte, source string, fetchedAt time.Time) (*TLEDataset, error) {
	entries, err := Parse(bytes.NewReader(data), l.logger)
	if err != nil {
		return nil, fmt.Errorf("parsing TLE data: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyDataset
	}

	ds := NewDataset(source, fetchedAt, entries)
	l.store.Set(ds)
	metrics.SetTLEDatasetCount(len(entries))
	return ds, nil
}
