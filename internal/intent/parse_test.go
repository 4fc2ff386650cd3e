package intent

import (
	"testing"

	apperrors "decision-workers/internal/common/errors"
	"decision-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult_Valid(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		intent   models.Intent
		conf     float64
		category models.BusinessCategory
		journey  models.JourneyHint
	}{
		{
			name:     "plain object",
			raw:      `{"intent":"analysis","confidence":0.82,"businessCategory":"campaign_performance","journeyHint":"analysis","extractedParameters":{"campaign":"spring"},"explanation":"asks why ROAS fell"}`,
			intent:   models.IntentAnalysis,
			conf:     0.82,
			category: models.CategoryCampaignPerformance,
			journey:  models.JourneyAnalysis,
		},
		{
			name:    "fenced with prose",
			raw:     "Sure, here you go:\n```json\n{\"intent\":\"action\",\"confidence\":0.9,\"explanation\":\"pause {campaign}\"}\n```\nAnything else?",
			intent:  models.IntentAction,
			conf:    0.9,
			journey: models.JourneyAction,
		},
		{
			name:    "confidence above range is clamped",
			raw:     `{"intent":"simulation","confidence":7,"explanation":""}`,
			intent:  models.IntentSimulation,
			conf:    1,
			journey: models.JourneyDecision,
		},
		{
			name:    "negative confidence is clamped",
			raw:     `{"intent":"seasonality","confidence":-0.3,"explanation":"x"}`,
			intent:  models.IntentSeasonality,
			conf:    0,
			journey: models.JourneyAnalysis,
		},
		{
			name:    "missing journey hint is derived",
			raw:     `{"intent":"information","confidence":0.6,"explanation":"x"}`,
			intent:  models.IntentInformation,
			conf:    0.6,
			journey: models.JourneyDiscernment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseResult(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, tt.intent, result.Intent)
			assert.InDelta(t, tt.conf, result.Confidence, 1e-9)
			assert.Equal(t, tt.category, result.BusinessCategory)
			assert.Equal(t, tt.journey, result.JourneyHint)
			assert.NotNil(t, result.ExtractedParameters)
		})
	}
}

func TestParseResult_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose only", "I think the user wants information."},
		{"unterminated", `{"intent":"analysis","confidence":0.5`},
		{"unknown intent", `{"intent":"chitchat","confidence":0.5}`},
		{"wrong field name", `{"intent":"analysis","confidence":0.5,"category":"inventory"}`},
		{"confidence as string", `{"intent":"analysis","confidence":"high"}`},
		{"missing confidence", `{"intent":"analysis"}`},
		{"unknown category", `{"intent":"analysis","confidence":0.4,"businessCategory":"weather"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResult(tt.raw)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIntentParsingFailed))
		})
	}
}

func TestExtractObject_IgnoresBracesInStrings(t *testing.T) {
	doc, err := extractObject(`noise {"a":"}{","b":{"c":"\"}"}} trailing }`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"}{","b":{"c":"\"}"}}`, doc)
}

func TestFallback(t *testing.T) {
	fb := Fallback(ExplanationUnparseable)
	assert.Equal(t, models.IntentResult{
		Intent:      models.IntentInformation,
		Confidence:  0.5,
		Explanation: "fallback: unparseable classifier output",
	}, fb)
}

func TestIsFallback(t *testing.T) {
	assert.True(t, IsFallback(Fallback(ExplanationCallFailed)))
	assert.True(t, IsFallback(Fallback(ExplanationUnparseable)))

	other := Fallback(ExplanationCallFailed)
	other.Explanation = "user asks for stock levels"
	assert.False(t, IsFallback(other))
}
