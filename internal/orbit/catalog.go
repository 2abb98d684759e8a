package orbit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jjcapestany/space-trace/internal/tle"
)

// Object is one tracked catalog object with its propagation record.
type Object struct {
	NORADID int
	Name    string
	Record  *Record
}

// Catalog is the set of propagatable objects derived from one TLE dataset.
// Immutable after construction.
type Catalog struct {
	Objects   []Object
	FetchedAt time.Time
	Skipped   int
}

// Lookup returns the object with the given catalog number.
func (c *Catalog) Lookup(noradID int) (Object, bool) {
	for _, o := range c.Objects {
		if o.NORADID == noradID {
			return o, true
		}
	}
	return Object{}, false
}

// BuildCatalog converts every entry in ds into an Object. Entries with an
// invalid element set are logged and left out; duplicates keep the first.
func BuildCatalog(ds *tle.TLEDataset, logger *slog.Logger) *Catalog {
	cat := &Catalog{
		Objects:   make([]Object, 0, len(ds.Satellites)),
		FetchedAt: ds.FetchedAt,
	}
	seen := make(map[int]bool, len(ds.Satellites))

	for _, entry := range ds.Satellites {
		if seen[entry.NORADID] {
			continue
		}
		rec, err := NewRecord(entry.Line1, entry.Line2)
		if err != nil {
			logger.Warn("excluding object from catalog", "norad_id", entry.NORADID, "name", entry.Name, "error", err)
			cat.Skipped++
			continue
		}
		seen[entry.NORADID] = true
		cat.Objects = append(cat.Objects, Object{NORADID: entry.NORADID, Name: entry.Name, Record: rec})
	}
	return cat
}

// RecordCache memoizes the Catalog for the current TLE dataset and rebuilds
// it when the dataset changes.
type RecordCache struct {
	logger  *slog.Logger
	current atomic.Pointer[Catalog]
	mu      sync.Mutex // serializes rebuilds
}

// NewRecordCache creates an empty RecordCache.
func NewRecordCache(logger *slog.Logger) *RecordCache {
	return &RecordCache{logger: logger}
}

// Catalog returns the memoized catalog for ds, building it on first use
// (double-checked locking keyed on ds.FetchedAt).
func (c *RecordCache) Catalog(ds *tle.TLEDataset) *Catalog {
	if cat := c.current.Load(); cat != nil && cat.FetchedAt.Equal(ds.FetchedAt) {
		return cat
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cat := c.current.Load(); cat != nil && cat.FetchedAt.Equal(ds.FetchedAt) {
		return cat
	}

	cat := BuildCatalog(ds, c.logger)
	c.logger.Info("orbital record cache rebuilt",
		"cached", len(cat.Objects),
		"skipped", cat.Skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	c.current.Store(cat)
	return cat
}
