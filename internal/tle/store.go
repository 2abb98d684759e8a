package tle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store holds the current dataset. Readers get an immutable snapshot
// without locking; writers swap the whole dataset.
type Store struct {
	dataset atomic.Pointer[TLEDataset]
	fetchMu sync.Mutex
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil before the first load.
func (s *Store) Get() *TLEDataset {
	return s.dataset.Load()
}

// Set publishes ds.
func (s *Store) Set(ds *TLEDataset) {
	s.dataset.Store(ds)
}

// Ready reports whether a dataset has been loaded.
func (s *Store) Ready() bool {
	return s.dataset.Load() != nil
}

// AgeSeconds returns the current dataset's age, or -1 if none is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Lock serializes refreshes.
func (s *Store) Lock() { s.fetchMu.Lock() }

// Unlock releases the refresh lock.
func (s *Store) Unlock() { s.fetchMu.Unlock() }
