package executeaction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"decision-workers/internal/common/config"
	apperrors "decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/confirmation"
	"decision-workers/internal/conversation"
	"decision-workers/internal/events"
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

type actionServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newActionServer(t *testing.T, status int) *actionServer {
	t.Helper()
	s := &actionServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "/api/rmn/execute-action", r.URL.Path)
		assert.NotEmpty(t, body["decisionId"])
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(s.Close)
	return s
}

type fixture struct {
	handler  *Handler
	sessions *conversation.Sessions
	actions  []models.PendingAction
	server   *actionServer
}

func setup(t *testing.T, status int) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)
	hub := events.NewHub()
	server := newActionServer(t, status)

	executor := confirmation.NewExecutor(config.ActionsConfig{BaseURL: server.URL, Timeout: 2000}, log)
	coordinator := confirmation.NewCoordinator(executor.Execute, hub, log)
	sessions := conversation.NewSessions(log, conversation.WithPublisher(hub.PendingActions))

	tracker := sessions.Get("s-1")
	tracker.SetActiveWorkflow("wf-1")
	created := tracker.UpdateAfterExecutiveResponse([]models.TurnOutput{{
		Type:    models.OutputRecommendations,
		Content: "1. Cut ad spend\n2. Increase inventory",
	}})
	require.Len(t, created, 2)

	h, err := NewHandler(HandlerOptions{
		Config:      createTestConfig(),
		Coordinator: coordinator,
		Sessions:    sessions,
		Logger:      log,
	})
	require.NoError(t, err)
	return &fixture{handler: h, sessions: sessions, actions: created, server: server}
}

func steps() []models.ActionStep {
	return []models.ActionStep{
		{AgentName: "budget-agent", Action: "reduce search spend", RecordsAffected: 4, RiskLevel: models.RiskMedium},
		{AgentName: "inventory-agent", Action: "raise reorder point", RecordsAffected: 9, RiskLevel: models.RiskLow},
	}
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute_Confirmed(t *testing.T) {
	f := setup(t, http.StatusOK)

	out, err := f.handler.Execute(context.Background(), &Input{
		SessionID:       "s-1",
		DecisionID:      "d-1",
		PendingActionID: f.actions[0].ID,
		Steps:           steps(),
		Confirmed:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, "d-1", out.DecisionID)
	assert.Equal(t, models.ExecutionSucceeded, out.State)
	assert.Equal(t, models.RiskMedium, out.AggregateRisk)
	assert.Equal(t, 13, out.TotalRecords)
	assert.Equal(t, models.StatusCompleted, out.PendingActionStatus)
	assert.EqualValues(t, 2, f.server.requests.Load())

	state := f.sessions.Get("s-1").Snapshot()
	assert.False(t, state.CanContinue)
	assert.Nil(t, state.ActiveWorkflow)
}

func TestHandler_Execute_RequiresConfirmation(t *testing.T) {
	f := setup(t, http.StatusOK)

	_, err := f.handler.Execute(context.Background(), &Input{
		SessionID:       "s-1",
		DecisionID:      "d-2",
		PendingActionID: f.actions[0].ID,
		Steps:           steps(),
	})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeActionConfirmationRequired))
	assert.Zero(t, f.server.requests.Load())

	pa, _ := f.sessions.Get("s-1").PendingAction(f.actions[0].ID)
	assert.Equal(t, models.StatusApproved, pa.Status)
}

func TestHandler_Execute_SecondDecisionForActionRefused(t *testing.T) {
	f := setup(t, http.StatusOK)

	_, err := f.handler.Execute(context.Background(), &Input{
		SessionID:       "s-1",
		DecisionID:      "d-first",
		PendingActionID: f.actions[0].ID,
		Steps:           steps(),
	})
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeActionConfirmationRequired))

	_, err = f.handler.Execute(context.Background(), &Input{
		SessionID:       "s-1",
		DecisionID:      "d-second",
		PendingActionID: f.actions[0].ID,
		Steps:           steps(),
		Confirmed:       true,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidTransition))
	assert.Zero(t, f.server.requests.Load())

	out, err := f.handler.Execute(context.Background(), &Input{
		SessionID:       "s-1",
		DecisionID:      "d-first",
		PendingActionID: f.actions[0].ID,
		Steps:           steps(),
		Confirmed:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSucceeded, out.State)
	assert.EqualValues(t, 2, f.server.requests.Load())
}

func TestHandler_Execute_FailureIsNotRetryable(t *testing.T) {
	f := setup(t, http.StatusBadGateway)

	_, err := f.handler.Execute(context.Background(), &Input{
		SessionID:       "s-1",
		DecisionID:      "d-3",
		PendingActionID: f.actions[0].ID,
		Steps:           steps(),
		Confirmed:       true,
	})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeActionExecutionFailed))
	stdErr, _ := apperrors.AsStandardError(err)
	assert.False(t, stdErr.Retryable)
	assert.EqualValues(t, 1, f.server.requests.Load())

	pa, _ := f.sessions.Get("s-1").PendingAction(f.actions[0].ID)
	assert.Equal(t, models.StatusExecuting, pa.Status)
}

func TestHandler_Execute_Cancel(t *testing.T) {
	f := setup(t, http.StatusOK)
	in := &Input{SessionID: "s-1", DecisionID: "d-4", PendingActionID: f.actions[1].ID, Steps: steps()}

	_, err := f.handler.Execute(context.Background(), in)
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeActionConfirmationRequired))

	in.Cancel = true
	out, err := f.handler.Execute(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionCancelled, out.State)
	assert.Equal(t, models.StatusRejected, out.PendingActionStatus)
	assert.Zero(t, f.server.requests.Load())

	_, err = f.handler.Execute(context.Background(), in)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestHandler_Execute_Errors(t *testing.T) {
	f := setup(t, http.StatusOK)
	rejected := f.actions[1].ID
	_, err := f.sessions.Get("s-1").Reject(rejected)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input Input
		code  apperrors.ErrorCode
	}{
		{"missing ids", Input{SessionID: "s-1"}, apperrors.ErrCodeInvalidInput},
		{"unknown session", Input{SessionID: "nope", PendingActionID: f.actions[0].ID, Steps: steps()}, apperrors.ErrCodeSessionNotFound},
		{"unknown action", Input{SessionID: "s-1", PendingActionID: "nope", Steps: steps(), Confirmed: true}, apperrors.ErrCodeInvalidInput},
		{"no steps", Input{SessionID: "s-1", PendingActionID: f.actions[0].ID, Confirmed: true}, apperrors.ErrCodeInvalidInput},
		{"terminal action", Input{SessionID: "s-1", PendingActionID: rejected, Steps: steps(), Confirmed: true}, apperrors.ErrCodeInvalidTransition},
		{"cancel without decision", Input{SessionID: "s-1", PendingActionID: f.actions[0].ID, Cancel: true}, apperrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.handler.Execute(context.Background(), &tt.input)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Zero(t, f.server.requests.Load())
}
