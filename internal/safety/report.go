package safety

import (
	"cmp"
	"slices"
	"time"
)

// MaxReportedWarnings caps the warnings carried by a report.
const MaxReportedWarnings = 20

// Report is the safety verdict for one flight.
type Report struct {
	FlightID            int64     `json:"flightId"`
	FlightName          string    `json:"flightName"`
	TotalObjectsChecked int       `json:"totalSatellitesChecked"`
	ConflictsFound      int       `json:"conflictsFound"`
	Warnings            []Warning `json:"warnings"`
	Status              Status    `json:"overallStatus"`
	GeneratedAt         time.Time `json:"generatedAt"`
}

// BuildReport orders warnings by severity then distance, keeps the most
// significant MaxReportedWarnings and derives the overall status.
// ConflictsFound counts warnings before truncation. The input slice is not
// modified.
func BuildReport(flightID int64, flightName string, candidateCount int, warnings []Warning, now time.Time) *Report {
	sorted := slices.Clone(warnings)
	slices.SortStableFunc(sorted, func(a, b Warning) int {
		if c := cmp.Compare(a.Severity, b.Severity); c != 0 {
			return c
		}
		return cmp.Compare(a.ClosestDistanceKm, b.ClosestDistanceKm)
	})

	kept := sorted
	if len(kept) > MaxReportedWarnings {
		kept = kept[:MaxReportedWarnings]
	}
	if kept == nil {
		kept = []Warning{}
	}

	return &Report{
		FlightID:            flightID,
		FlightName:          flightName,
		TotalObjectsChecked: candidateCount,
		ConflictsFound:      len(warnings),
		Warnings:            kept,
		Status:              overallStatus(sorted),
		GeneratedAt:         now,
	}
}

func overallStatus(warnings []Warning) Status {
	status := StatusSafe
	for _, w := range warnings {
		switch w.Severity {
		case SeverityCritical, SeverityDanger:
			return StatusDanger
		case SeverityWarning:
			status = StatusWarning
		}
	}
	return status
}
