package classifyintent

import "decision-workers/internal/models"

type Input struct {
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
}

type Output struct {
	IntentResult models.IntentResult `json:"intentResult"`
	// Fallback is true when the result is the fixed low-confidence fallback.
	Fallback bool `json:"fallback"`
}
