package conversation

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"decision-workers/internal/common/logger"
	"decision-workers/internal/events"
	"decision-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, opts ...TrackerOption) *Tracker {
	t.Helper()
	return NewTracker("session-1", logger.NewTestLogger(t), opts...)
}

func recommendations(text string) []models.TurnOutput {
	return []models.TurnOutput{{Type: models.OutputRecommendations, Content: text}}
}

func TestTracker_RecommendationsBecomePendingActions(t *testing.T) {
	tr := newTestTracker(t)

	created := tr.UpdateAfterExecutiveResponse(recommendations("1. Cut ad spend\n2. Increase inventory"))

	require.Len(t, created, 2)
	state := tr.Snapshot()
	assert.True(t, state.CanContinue)
	assert.Equal(t, []string{"Cut ad spend", "Increase inventory"}, state.LastRecommendations)
	assert.Empty(t, state.LastActions)
	require.Len(t, state.PendingActions, 2)
	for _, pa := range state.PendingActions {
		assert.Equal(t, models.StatusPending, pa.Status)
		assert.Equal(t, models.SourceRecommendation, pa.Source)
		assert.Len(t, pa.ID, 36)
		assert.False(t, pa.CreatedAt.IsZero())
	}
	assert.NotEqual(t, state.PendingActions[0].ID, state.PendingActions[1].ID)

	completed := tr.UpdateAfterActionExecution()
	assert.Len(t, completed, 2)

	state = tr.Snapshot()
	assert.False(t, state.CanContinue)
	assert.Nil(t, state.ActiveWorkflow)
	for _, pa := range state.PendingActions {
		assert.Equal(t, models.StatusCompleted, pa.Status)
	}
}

func TestTracker_ActionsBlockTakesPrecedence(t *testing.T) {
	tr := newTestTracker(t)

	created := tr.UpdateAfterExecutiveResponse([]models.TurnOutput{
		{Type: "narrative", Content: "1. ignored"},
		{Type: models.OutputRecommendations, Content: "- Review pricing\n- Review audiences"},
		{Type: models.OutputActions, Content: "1. Pause campaign 7"},
	})

	require.Len(t, created, 1)
	assert.Equal(t, "Pause campaign 7", created[0].Description)

	state := tr.Snapshot()
	assert.Equal(t, []string{"Review pricing", "Review audiences"}, state.LastRecommendations)
	assert.Equal(t, []string{"Pause campaign 7"}, state.LastActions)
}

func TestTracker_UpdateIsIdempotent(t *testing.T) {
	tr := newTestTracker(t)
	outputs := recommendations("1. Cut ad spend\n2. Increase inventory")

	tr.UpdateAfterExecutiveResponse(outputs)
	first := tr.Snapshot()
	again := tr.UpdateAfterExecutiveResponse(outputs)
	second := tr.Snapshot()

	assert.Empty(t, again)
	assert.Equal(t, first.CanContinue, second.CanContinue)
	assert.Len(t, second.PendingActions, 2)

	// A completed item may be proposed again.
	tr.UpdateAfterActionExecution()
	assert.Len(t, tr.UpdateAfterExecutiveResponse(outputs), 2)
}

func TestTracker_NoOutputsCannotContinue(t *testing.T) {
	tr := newTestTracker(t)

	created := tr.UpdateAfterExecutiveResponse([]models.TurnOutput{{Type: "narrative", Content: "Sales are flat."}})

	assert.Empty(t, created)
	state := tr.Snapshot()
	assert.False(t, state.CanContinue)
	assert.NotNil(t, state.LastRecommendations)
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := newTestTracker(t)
	created := tr.UpdateAfterExecutiveResponse(recommendations("1. Cut ad spend\n2. Increase inventory"))
	first, second := created[0].ID, created[1].ID

	_, err := tr.Complete(first)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot skip to completed")

	_, err = tr.Approve(first)
	require.NoError(t, err)
	_, err = tr.MarkExecuting(first)
	require.NoError(t, err)

	_, err = tr.Reject(first)
	assert.ErrorIs(t, err, ErrInvalidTransition, "cannot reject once executing")

	_, err = tr.Approve(first)
	assert.ErrorIs(t, err, ErrInvalidTransition, "status never moves backwards")

	pa, err := tr.Complete(first)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, pa.Status)

	rejected, err := tr.Reject(second)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)

	_, err = tr.Approve(second)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = tr.Approve("missing")
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestTracker_CompletionSkipsTerminalActions(t *testing.T) {
	tr := newTestTracker(t)
	created := tr.UpdateAfterExecutiveResponse(recommendations("1. Cut ad spend\n2. Increase inventory"))
	_, err := tr.Reject(created[0].ID)
	require.NoError(t, err)

	completed := tr.UpdateAfterActionExecution()

	require.Len(t, completed, 1)
	assert.Equal(t, created[1].ID, completed[0].ID)
	pa, ok := tr.PendingAction(created[0].ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusRejected, pa.Status)
}

func TestTracker_RecordFailureKeepsStatus(t *testing.T) {
	tr := newTestTracker(t)
	pa := tr.AddPendingAction("Reorder SKU 4411", models.SourceDecision)
	_, _ = tr.Approve(pa.ID)
	_, _ = tr.MarkExecuting(pa.ID)

	failed, err := tr.RecordFailure(pa.ID, errors.New("upstream 503"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuting, failed.Status)
	assert.Equal(t, "upstream 503", failed.LastError)
}

func TestTracker_HistoryIsBounded(t *testing.T) {
	tr := newTestTracker(t)

	for i := 0; i < 15; i++ {
		tr.AddToHistory(models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)})
	}

	history := tr.History()
	require.Len(t, history, models.MaxHistoryTurns)
	assert.Equal(t, "q5", history[0].Content)
	assert.Equal(t, "q14", history[9].Content)
	assert.False(t, history[0].At.IsZero())
}

func TestTracker_HasContextFor(t *testing.T) {
	tr := newTestTracker(t)

	assert.True(t, tr.HasContextFor())
	assert.False(t, tr.HasContextFor(KeyLastRecommendations))

	tr.RecordQuery("what should I do about SKU 4411?")
	tr.UpdateAfterExecutiveResponse(recommendations("1. Reorder 500 units"))
	tr.SetActiveWorkflow("wf-1")

	assert.True(t, tr.HasContextFor(KeyLastQuery, KeyLastRecommendations, KeyPendingActions, KeyHistory, KeyActiveWorkflow))
	assert.False(t, tr.HasContextFor(KeyLastRecommendations, KeyLastActions))
	assert.False(t, tr.HasContextFor("weather"))

	tr.SetActiveWorkflow("")
	assert.False(t, tr.HasContextFor(KeyActiveWorkflow))
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tr := newTestTracker(t)
	tr.SetActiveWorkflow("wf-1")
	tr.UpdateAfterExecutiveResponse(recommendations("1. Cut ad spend"))

	snap := tr.Snapshot()
	snap.PendingActions[0].Status = models.StatusCompleted
	*snap.ActiveWorkflow = "changed"
	snap.LastRecommendations[0] = "changed"

	again := tr.Snapshot()
	assert.Equal(t, models.StatusPending, again.PendingActions[0].Status)
	assert.Equal(t, "wf-1", *again.ActiveWorkflow)
	assert.Equal(t, "Cut ad spend", again.LastRecommendations[0])
}

func TestTracker_PublishesChanges(t *testing.T) {
	topic := events.NewTopic[events.PendingActionChanged]("pending-actions")
	var got []events.PendingActionChanged
	topic.Subscribe(func(c events.PendingActionChanged) error {
		got = append(got, c)
		return nil
	})

	fixed := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, WithPublisher(topic), WithClock(func() time.Time { return fixed }))

	created := tr.UpdateAfterExecutiveResponse(recommendations("1. Cut ad spend"))
	_, err := tr.Approve(created[0].ID)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "session-1", got[0].SessionID)
	assert.Empty(t, got[0].From)
	assert.Equal(t, models.StatusPending, got[1].From)
	assert.Equal(t, models.StatusApproved, got[1].Action.Status)
	assert.Equal(t, fixed, got[1].Action.UpdatedAt)
}

func TestTracker_ConcurrentWriters(t *testing.T) {
	tr := newTestTracker(t)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.AddToHistory(models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("q%d", i)})
			tr.UpdateAfterExecutiveResponse(recommendations(fmt.Sprintf("1. Step number %d", i)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, tr.History(), models.MaxHistoryTurns)
	assert.Len(t, tr.Snapshot().PendingActions, 20)
}

func TestTracker_Reset(t *testing.T) {
	tr := newTestTracker(t)
	tr.RecordQuery("q")
	tr.UpdateAfterExecutiveResponse(recommendations("1. Cut ad spend"))

	tr.Reset()

	state := tr.Snapshot()
	assert.Empty(t, state.PendingActions)
	assert.Empty(t, state.ConversationHistory)
	assert.Empty(t, state.LastQuery)
	assert.False(t, state.CanContinue)
}
