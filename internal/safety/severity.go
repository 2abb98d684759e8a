package safety

import "fmt"

// Distance thresholds in km. A minimum separation at or beyond
// WarningThresholdKm is not reported.
const (
	CriticalThresholdKm = 1.0
	DangerThresholdKm   = 5.0
	WarningThresholdKm  = 100.0
)

// Severity ranks a close approach. Lower values are more urgent.
type Severity int

const (
	SeverityCritical Severity = iota
	SeverityDanger
	SeverityWarning
	SeveritySafe
)

var severityNames = [...]string{"critical", "danger", "warning", "safe"}

// Classify maps a minimum separation to a severity.
func Classify(distanceKm float64) Severity {
	switch {
	case distanceKm < CriticalThresholdKm:
		return SeverityCritical
	case distanceKm < DangerThresholdKm:
		return SeverityDanger
	case distanceKm < WarningThresholdKm:
		return SeverityWarning
	default:
		return SeveritySafe
	}
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(severityNames) {
		return nil, fmt.Errorf("unknown severity %d", int(s))
	}
	return []byte(severityNames[s]), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	for i, name := range severityNames {
		if string(b) == name {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", b)
}

// Status is the overall verdict of a safety report.
type Status string

const (
	StatusSafe    Status = "safe"
	StatusWarning Status = "warning"
	StatusDanger  Status = "danger"
)
