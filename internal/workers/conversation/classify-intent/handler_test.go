package classifyintent

import (
	"context"
	"errors"
	"testing"
	"time"

	"decision-workers/internal/common/config"
	apperrors "decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/conversation"
	"decision-workers/internal/intent"
	"decision-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{Enabled: true, MaxJobsActive: 5, Timeout: 5 * time.Second}
}

type capture struct {
	messages []intent.Message
}

func createTestHandler(t *testing.T, reply string, err error) (*Handler, *conversation.Sessions, *capture) {
	t.Helper()
	log := logger.NewTestLogger(t)
	seen := &capture{}
	completer := intent.CompleterFunc(func(_ context.Context, _ string, messages []intent.Message) (string, error) {
		seen.messages = messages
		return reply, err
	})

	sessions := conversation.NewSessions(log)
	h, herr := NewHandler(HandlerOptions{
		Config:     createTestConfig(),
		Classifier: intent.NewClassifier(completer, log),
		Sessions:   sessions,
		Logger:     log,
	})
	require.NoError(t, herr)
	return h, sessions, seen
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute_ClassifiesAndRecordsQuery(t *testing.T) {
	h, sessions, seen := createTestHandler(t,
		`{"intent":"analysis","confidence":0.81,"businessCategory":"inventory","explanation":"stock review"}`, nil)

	out, err := h.Execute(context.Background(), &Input{SessionID: "s-1", Query: "  Which SKUs run out this week?  "})
	require.NoError(t, err)

	assert.Equal(t, models.IntentAnalysis, out.IntentResult.Intent)
	assert.Equal(t, models.JourneyAnalysis, out.IntentResult.JourneyHint)
	assert.False(t, out.Fallback)

	require.Len(t, seen.messages, 1)
	assert.Equal(t, "Which SKUs run out this week?", seen.messages[0].Content)

	state := sessions.Get("s-1").Snapshot()
	assert.Equal(t, "Which SKUs run out this week?", state.LastQuery)
	require.Len(t, state.ConversationHistory, 1)
	assert.Equal(t, models.RoleUser, state.ConversationHistory[0].Role)
}

func TestHandler_Execute_UsesSessionHistory(t *testing.T) {
	h, sessions, seen := createTestHandler(t, `{"intent":"action","confidence":0.9}`, nil)
	tracker := sessions.Get("s-2")
	tracker.RecordQuery("show ROAS by campaign")
	tracker.AddToHistory(models.Turn{Role: models.RoleAssistant, Content: "Campaign 12 is at 0.8"})

	_, err := h.Execute(context.Background(), &Input{SessionID: "s-2", Query: "pause it"})
	require.NoError(t, err)

	require.Len(t, seen.messages, 3)
	assert.Equal(t, "show ROAS by campaign", seen.messages[0].Content)
	assert.Equal(t, models.RoleAssistant, seen.messages[1].Role)
	assert.Equal(t, "pause it", seen.messages[2].Content)
	assert.Len(t, tracker.History(), 3)
}

func TestHandler_Execute_FallbackIsNotAnError(t *testing.T) {
	h, _, _ := createTestHandler(t, "", errors.New("provider down"))

	out, err := h.Execute(context.Background(), &Input{SessionID: "s-3", Query: "hello"})
	require.NoError(t, err)

	assert.True(t, out.Fallback)
	assert.Equal(t, intent.Fallback(intent.ExplanationCallFailed), out.IntentResult)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	h, sessions, _ := createTestHandler(t, `{"intent":"action","confidence":0.9}`, nil)

	tests := []struct {
		name  string
		input Input
	}{
		{"missing session", Input{Query: "hi"}},
		{"missing query", Input{SessionID: "s-4"}},
		{"blank query", Input{SessionID: "s-4", Query: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Execute(context.Background(), &tt.input)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
		})
	}
	assert.Empty(t, sessions.IDs())
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(&config.Config{})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	_, err := NewHandler(HandlerOptions{Config: createTestConfig()})
	assert.Error(t, err)
}
