// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func LoadRegistry(path string) (*RuleRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg RuleRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes reg as indented JSON, stamping LastUpdated.
func SaveRegistry(reg *RuleRegistry, path string) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// RuleFor returns the rule id bound to eventType.
func (r *RuleRegistry) RuleFor(eventType string) (string, bool) {
	for _, entry := range r.Rules {
		if entry.EventType == eventType {
			return entry.RuleID, true
		}
	}
	return "", false
}

// Lint reports structural problems: duplicate event types, empty fields.
// Rule ids and pattern syntax are checked by the alerting package, which owns them.
func (r *RuleRegistry) Lint() []error {
	var problems []error
	seen := make(map[string]bool)
	for i, entry := range r.Rules {
		if entry.EventType == "" || entry.RuleID == "" {
			problems = append(problems, fmt.Errorf("rules[%d]: eventType and ruleId are required", i))
			continue
		}
		if seen[entry.EventType] {
			problems = append(problems, fmt.Errorf("rules[%d]: duplicate event type %s", i, entry.EventType))
		}
		seen[entry.EventType] = true
	}
	for i, p := range r.Patterns {
		if p.Pattern == "" {
			problems = append(problems, fmt.Errorf("patterns[%d]: empty pattern", i))
		}
	}
	for i, s := range r.Streams {
		if s == "" {
			problems = append(problems, fmt.Errorf("streams[%d]: empty stream name", i))
		}
	}
	return problems
}
