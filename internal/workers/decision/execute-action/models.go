package executeaction

import "decision-workers/internal/models"

type Input struct {
	SessionID       string              `json:"sessionId"`
	DecisionID      string              `json:"decisionId"`
	PendingActionID string              `json:"pendingActionId"`
	Steps           []models.ActionStep `json:"steps"`
	Confirmed       bool                `json:"confirmed"`
	// Cancel withdraws a prepared, unconfirmed decision instead of running it.
	Cancel bool `json:"cancel,omitempty"`
}

type Output struct {
	DecisionID          string                     `json:"decisionId"`
	State               models.ExecutionState      `json:"state"`
	AggregateRisk       models.RiskLevel           `json:"aggregateRisk,omitempty"`
	TotalRecords        int                        `json:"totalRecords"`
	PendingActionStatus models.PendingActionStatus `json:"pendingActionStatus,omitempty"`
}
