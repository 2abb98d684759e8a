package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jjcapestany/space-trace/internal/flight"
)

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	regs   map[int64]Registration
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore. Ids start at 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		regs:   make(map[int64]Registration),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, p flight.Plan) (Registration, error) {
	if err := Validate(p); err != nil {
		return Registration{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p.ID = s.nextID
	s.nextID++
	r := Registration{Plan: p, Visible: true, CreatedAt: now, UpdatedAt: now}
	s.regs[p.ID] = r
	return r, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.regs[id]
	if !ok {
		return Registration{}, ErrNotFound
	}
	return r, nil
}

// List returns all registrations ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Registration, 0, len(s.regs))
	for _, r := range s.regs {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Registration) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, p flight.Plan) (Registration, error) {
	if err := Validate(p); err != nil {
		return Registration{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.regs[id]
	if !ok {
		return Registration{}, ErrNotFound
	}
	p.ID = id
	r.Plan = p
	r.UpdatedAt = s.now()
	s.regs[id] = r
	return r, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.regs[id]; !ok {
		return ErrNotFound
	}
	delete(s.regs, id)
	return nil
}

func (s *MemoryStore) SetVisible(_ context.Context, id int64, visible bool) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.regs[id]
	if !ok {
		return Registration{}, ErrNotFound
	}
	r.Visible = visible
	r.UpdatedAt = s.now()
	s.regs[id] = r
	return r, nil
}
