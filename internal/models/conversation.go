// internal/models/conversation.go
package models

import "time"

// MaxHistoryTurns bounds ConversationState.ConversationHistory.
const MaxHistoryTurns = 10

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// TurnOutput is one tagged block of an assistant turn, e.g. a "recommendations" block.
type TurnOutput struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Output block tags the tracker reads.
const (
	OutputRecommendations = "recommendations"
	OutputActions         = "actions"
)

type PendingActionSource string

const (
	SourceRecommendation PendingActionSource = "recommendation"
	SourceDecision       PendingActionSource = "decision"
	SourceManual         PendingActionSource = "manual"
)

// PendingActionStatus only moves forward: pending → approved → executing → completed.
// rejected is terminal and only reachable before execution starts.
type PendingActionStatus string

const (
	StatusPending   PendingActionStatus = "pending"
	StatusApproved  PendingActionStatus = "approved"
	StatusExecuting PendingActionStatus = "executing"
	StatusCompleted PendingActionStatus = "completed"
	StatusRejected  PendingActionStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s PendingActionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

type PendingAction struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Source      PendingActionSource `json:"source"`
	Status      PendingActionStatus `json:"status"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	LastError   string              `json:"lastError,omitempty"`
}

type ConversationState struct {
	LastRecommendations []string        `json:"lastRecommendations"`
	LastActions         []string        `json:"lastActions"`
	LastQuery           string          `json:"lastQuery"`
	CanContinue         bool            `json:"canContinue"`
	ActiveWorkflow      *string         `json:"activeWorkflow"`
	PendingActions      []PendingAction `json:"pendingActions"`
	ConversationHistory []Turn          `json:"conversationHistory"`
}
