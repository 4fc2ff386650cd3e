// internal/models/severity.go
package models

import "fmt"

// Severity is an ordinal alert priority: critical > high > medium > low.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns 0 for anything that is not one of the four levels.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AtLeast reports whether s is as severe as threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Valid() && s.Rank() >= threshold.Rank()
}

func ParseSeverity(raw string) (Severity, error) {
	s := Severity(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return s, nil
}
