// internal/models/action.go
package models

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var riskRank = map[RiskLevel]int{
	RiskLow:    1,
	RiskMedium: 2,
	RiskHigh:   3,
}

func (r RiskLevel) Rank() int {
	return riskRank[r]
}

func (r RiskLevel) Valid() bool {
	return r.Rank() > 0
}

// ActionStep is one proposed step of a decision awaiting confirmation.
type ActionStep struct {
	AgentName       string    `json:"agentName"`
	Action          string    `json:"action"`
	RecordsAffected int       `json:"recordsAffected"`
	RiskLevel       RiskLevel `json:"riskLevel"`
}

// ExecutionState is the observable state of an action confirmation flow.
type ExecutionState string

const (
	ExecutionIdle      ExecutionState = "idle"
	ExecutionRunning   ExecutionState = "executing"
	ExecutionSucceeded ExecutionState = "succeeded"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionCancelled ExecutionState = "cancelled"
)

func (s ExecutionState) Terminal() bool {
	return s == ExecutionSucceeded || s == ExecutionFailed || s == ExecutionCancelled
}
