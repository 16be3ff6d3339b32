package models

import "strings"

// Severity is the ordered event severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight maps severity to 1..4. Unknown values weigh 0.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the four known levels.
func (s Severity) Valid() bool {
	return s.Weight() > 0
}

// AtLeast reports whether s is ordered at or above other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Weight() >= other.Weight()
}

// ParseSeverity normalizes a severity string. ok is false for unknown input.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// SeverityFromWeight is the inverse of Weight, clamping out-of-range input.
func SeverityFromWeight(w int) Severity {
	switch {
	case w <= 1:
		return SeverityLow
	case w == 2:
		return SeverityMedium
	case w == 3:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}
