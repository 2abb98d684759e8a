// Package registry stores flight registrations. Business validation for
// incoming plans lives here; the analysis engine assumes it has passed.
package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jjcapestany/space-trace/internal/flight"
)

// ErrNotFound is returned for an unknown registration id.
var ErrNotFound = errors.New("flight registration not found")

// Registration is a stored flight plan.
type Registration struct {
	flight.Plan
	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists registrations. Create assigns the id; ids in the plans
// passed to Create and Update are ignored.
type Store interface {
	Create(ctx context.Context, p flight.Plan) (Registration, error)
	Get(ctx context.Context, id int64) (Registration, error)
	List(ctx context.Context) ([]Registration, error)
	Update(ctx context.Context, id int64, p flight.Plan) (Registration, error)
	Delete(ctx context.Context, id int64) error
	SetVisible(ctx context.Context, id int64, visible bool) (Registration, error)
}

// ValidationError maps field names (JSON spelling) to problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid flight registration: " + strings.Join(parts, "; ")
}

// Validate applies the registration form rules. It returns a
// *ValidationError listing every failing field, or nil.
func Validate(p flight.Plan) error {
	fields := map[string]string{}

	if strings.TrimSpace(p.Name) == "" {
		fields["flightName"] = "is required"
	}
	checkRange(fields, "startingLatitude", p.StartLat, -90, 90)
	checkRange(fields, "startingLongitude", p.StartLon, -180, 180)
	checkRange(fields, "endingLatitude", p.EndLat, -90, 90)
	checkRange(fields, "endingLongitude", p.EndLon, -180, 180)

	if p.Launch.IsZero() {
		fields["launchDateAndTime"] = "is required"
	}
	switch {
	case p.Landing.IsZero():
		fields["landingDateAndTime"] = "is required"
	case !p.Launch.IsZero() && !p.Landing.After(p.Launch):
		fields["landingDateAndTime"] = "must be after launch"
	}

	if !(p.MaxAltitudeKm > 0) {
		fields["maxAltitude"] = "must be greater than 0"
	}
	if strings.TrimSpace(p.CraftModel) == "" {
		fields["modelOfSpaceCraft"] = "is required"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// checkRange also rejects NaN, which fails both comparisons.
func checkRange(fields map[string]string, name string, v, lo, hi float64) {
	if !(v >= lo && v <= hi) {
		fields[name] = fmt.Sprintf("must be between %g and %g", lo, hi)
	}
}

// VisiblePlans returns the plans of visible registrations.
func VisiblePlans(regs []Registration) []flight.Plan {
	var plans []flight.Plan
	for _, r := range regs {
		if r.Visible {
			plans = append(plans, r.Plan)
		}
	}
	return plans
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
