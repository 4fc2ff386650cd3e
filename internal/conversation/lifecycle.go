package conversation

import "decision-workers/internal/models"

// transitions lists the legal explicit moves. Status only moves forward; rejected is only
// reachable before execution starts.
var transitions = map[models.PendingActionStatus][]models.PendingActionStatus{
	models.StatusPending:   {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:  {models.StatusExecuting, models.StatusRejected},
	models.StatusExecuting: {models.StatusCompleted},
}

// CanTransition reports whether from → to is a legal explicit transition.
func CanTransition(from, to models.PendingActionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
