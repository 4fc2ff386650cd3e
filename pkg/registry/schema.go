// pkg/registry/schema.go
package registry

// RuleRegistry is the on-disk form of the severity classifier's static configuration.
type RuleRegistry struct {
	Version     string         `json:"version"`
	LastUpdated string         `json:"lastUpdated,omitempty"`
	Streams     []string       `json:"streams"`
	Patterns    []PatternEntry `json:"patterns"`
	Rules       []RuleEntry    `json:"rules"`
}

// PatternEntry is one ordered alert type-pattern. Order is significant: first match wins.
type PatternEntry struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity,omitempty"`
}

// RuleEntry binds an exact event type to a rule id registered in code.
type RuleEntry struct {
	EventType   string `json:"eventType"`
	RuleID      string `json:"ruleId"`
	Description string `json:"description,omitempty"`
}
