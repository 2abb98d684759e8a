package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/orbit"
	"github.com/jjcapestany/space-trace/internal/registry"
	"github.com/jjcapestany/space-trace/internal/tle"
)

// loadCatalog parses a 3-line TLE file into a propagatable catalog.
func loadCatalog(path string, logger *slog.Logger) (*orbit.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	entries, err := tle.Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", path, tle.ErrEmptyDataset)
	}
	ds := tle.NewDataset("file:"+path, info.ModTime(), entries)
	return orbit.BuildCatalog(ds, logger), nil
}

// loadFlights reads a JSON array of plans in the registration format.
// Plans without an id are numbered by position, starting at 1. Every plan
// must pass registration validation.
func loadFlights(path string) ([]flight.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plans []flight.Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	seen := make(map[int64]bool, len(plans))
	var errs []error
	for i := range plans {
		if plans[i].ID == 0 {
			plans[i].ID = int64(i + 1)
		}
		if seen[plans[i].ID] {
			errs = append(errs, fmt.Errorf("flight %d: duplicate id", plans[i].ID))
		}
		seen[plans[i].ID] = true
		if err := registry.Validate(plans[i]); err != nil {
			errs = append(errs, fmt.Errorf("flight %d: %w", plans[i].ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return plans, nil
}

func findPlan(plans []flight.Plan, id int64) (flight.Plan, error) {
	for _, p := range plans {
		if p.ID == id {
			return p, nil
		}
	}
	return flight.Plan{}, fmt.Errorf("flight %d: %w", id, registry.ErrNotFound)
}
