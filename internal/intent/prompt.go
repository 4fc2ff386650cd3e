package intent

import (
	"decision-workers/internal/models"
)

// SystemPrompt instructs the model to answer with a single IntentResult object.
const SystemPrompt = `You classify questions asked by a retail media network executive.

Respond with exactly one JSON object and nothing else:
{
  "intent": "information" | "action" | "analysis" | "seasonality" | "simulation",
  "confidence": number between 0 and 1,
  "businessCategory": "campaign_performance" | "inventory" | "pricing" | "audience" | "budget" | "general",
  "journeyHint": "discernment" | "analysis" | "decision" | "action",
  "extractedParameters": object,
  "explanation": short string
}

Rules:
- information: the user wants to know a current fact or metric.
- analysis: the user wants causes, comparisons or breakdowns.
- seasonality: the question is about recurring patterns, holidays or year-over-year cycles.
- simulation: the user asks "what if" or wants a projected outcome of a change.
- action: the user asks to change something (pause, shift budget, reorder, reprice) or accepts a previous recommendation.
- Use the conversation history to resolve references such as "do it" or "the second one".
- Put concrete entities (sku, campaign, region, period, amount) in extractedParameters.
- Use only the field names and values listed above.`

// buildMessages returns the last MaxHistoryTurns turns followed by query as the final user
// message.
func buildMessages(query string, history []models.Turn) []Message {
	if len(history) > models.MaxHistoryTurns {
		history = history[len(history)-models.MaxHistoryTurns:]
	}

	out := make([]Message, 0, len(history)+1)
	for _, t := range history {
		if t.Content == "" {
			continue
		}
		out = append(out, Message{Role: t.Role, Content: t.Content})
	}
	return append(out, Message{Role: models.RoleUser, Content: query})
}
