package updateconversationstate

import "decision-workers/internal/models"

type Input struct {
	SessionID   string              `json:"sessionId"`
	TurnOutputs []models.TurnOutput `json:"turnOutputs"`
	// ActiveWorkflow defaults to the job's process instance key.
	ActiveWorkflow string `json:"activeWorkflow,omitempty"`
	// TogglePins flips the pinned state of each item id on the session's board.
	TogglePins []string `json:"togglePins,omitempty"`
}

type Output struct {
	CanContinue         bool                   `json:"canContinue"`
	PendingActions      []models.PendingAction `json:"pendingActions"`
	CreatedActions      int                    `json:"createdActions"`
	LastRecommendations []string               `json:"lastRecommendations"`
	LastActions         []string               `json:"lastActions"`
	PinnedItems         []string               `json:"pinnedItems,omitempty"`
}
