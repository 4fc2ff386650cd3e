package events

import (
	"time"

	"decision-workers/internal/models"
)

// AlertRaised is published for every event classified as an alert.
type AlertRaised struct {
	Event     models.Event
	Severity  models.Severity
	RuleID    string
	Pattern   string
	RuleError string
	At        time.Time
}

// DecisionUpdated tracks an action confirmation flow through its states.
type DecisionUpdated struct {
	DecisionID string
	State      models.ExecutionState
	Error      string
	At         time.Time
}

// PendingActionChanged is published when a pending action is created or transitions.
type PendingActionChanged struct {
	SessionID string
	Action    models.PendingAction
	From      models.PendingActionStatus // empty on creation
}

// PinChanged reports an item pinned to or unpinned from a session's board.
type PinChanged struct {
	SessionID string
	ItemID    string
	Pinned    bool
}

// Hub groups the typed topics shared by one process.
type Hub struct {
	Alerts         *Topic[AlertRaised]
	Decisions      *Topic[DecisionUpdated]
	PendingActions *Topic[PendingActionChanged]
	Pins           *Topic[PinChanged]
}

func NewHub() *Hub {
	return &Hub{
		Alerts:         NewTopic[AlertRaised]("alerts"),
		Decisions:      NewTopic[DecisionUpdated]("decisions"),
		PendingActions: NewTopic[PendingActionChanged]("pending-actions"),
		Pins:           NewTopic[PinChanged]("pins"),
	}
}
