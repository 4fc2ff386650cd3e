package intent

import (
	"encoding/json"
	"fmt"
	"strings"

	"decision-workers/internal/common/errors"
	"decision-workers/internal/common/validation"
	"decision-workers/internal/models"
)

// Fallback explanations. The fallback intent and confidence are fixed.
const (
	ExplanationUnparseable = "fallback: unparseable classifier output"
	ExplanationCallFailed  = "fallback: classifier call failed"

	fallbackConfidence = 0.5
)

// Fallback returns the degraded result used when classification cannot complete.
func Fallback(explanation string) models.IntentResult {
	return models.IntentResult{
		Intent:      models.IntentInformation,
		Confidence:  fallbackConfidence,
		Explanation: explanation,
	}
}

// IsFallback reports whether r is one of the degraded fallback results.
func IsFallback(r models.IntentResult) bool {
	return r.Confidence == fallbackConfidence &&
		(r.Explanation == ExplanationUnparseable || r.Explanation == ExplanationCallFailed)
}

var journeyByIntent = map[models.Intent]models.JourneyHint{
	models.IntentInformation: models.JourneyDiscernment,
	models.IntentAnalysis:    models.JourneyAnalysis,
	models.IntentSeasonality: models.JourneyAnalysis,
	models.IntentSimulation:  models.JourneyDecision,
	models.IntentAction:      models.JourneyAction,
}

// ParseResult turns raw completion text into an IntentResult. Markdown fences and prose
// around the object are tolerated; anything that does not validate is an
// INTENT_PARSING_FAILED error.
func ParseResult(raw string) (models.IntentResult, error) {
	doc, err := extractObject(stripFences(raw))
	if err != nil {
		return models.IntentResult{}, errors.NewIntentParsingFailedError(err)
	}

	check, err := validation.IntentResult().ValidateJSON([]byte(doc))
	if err != nil {
		return models.IntentResult{}, errors.NewIntentParsingFailedError(err)
	}
	if !check.Valid {
		return models.IntentResult{}, errors.NewIntentParsingFailedError(check)
	}

	var result models.IntentResult
	if err := json.Unmarshal([]byte(doc), &result); err != nil {
		return models.IntentResult{}, errors.NewIntentParsingFailedError(err)
	}

	result.Confidence = clamp(result.Confidence)
	if result.JourneyHint == "" {
		result.JourneyHint = journeyByIntent[result.Intent]
	}
	if result.ExtractedParameters == nil {
		result.ExtractedParameters = map[string]interface{}{}
	}
	return result, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func stripFences(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// extractObject returns the first balanced top-level {...} in s. Braces inside JSON strings
// are ignored.
func extractObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object in output")
}
