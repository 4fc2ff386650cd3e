package classifyseverity

import (
	"encoding/json"
)

type Input struct {
	Event json.RawMessage `json:"event"`
}

type Output struct {
	IsAlert        bool   `json:"isAlert"`
	Severity       string `json:"severity,omitempty"`
	RuleID         string `json:"ruleId,omitempty"`
	MatchedPattern string `json:"matchedPattern,omitempty"`
	RuleError      string `json:"ruleError,omitempty"`
	Skipped        string `json:"skipped,omitempty"`
	AlertPublished bool   `json:"alertPublished"`
}

// alertMessage is the payload of the published alert message.
type alertMessage struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Source    string `json:"source"`
	Subject   string `json:"subject,omitempty"`
	Severity  string `json:"severity"`
	RuleID    string `json:"ruleId,omitempty"`
}
