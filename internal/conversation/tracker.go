package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/events"
	"decision-workers/internal/models"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid pending action transition")
	ErrActionNotFound    = errors.New("pending action not found")
)

// Context keys accepted by HasContextFor. They match the ConversationState JSON names.
const (
	KeyLastRecommendations = "lastRecommendations"
	KeyLastActions         = "lastActions"
	KeyLastQuery           = "lastQuery"
	KeyActiveWorkflow      = "activeWorkflow"
	KeyPendingActions      = "pendingActions"
	KeyHistory             = "conversationHistory"
)

// Tracker owns the ConversationState of one session. All methods are safe for concurrent
// use; writes are serialized.
type Tracker struct {
	mu         sync.Mutex
	sessionID  string
	state      models.ConversationState
	extractors []Extractor
	topic      *events.Topic[events.PendingActionChanged]
	logger     logger.Logger
	now        func() time.Time
	newID      func() string
}

type TrackerOption func(*Tracker)

// WithPublisher announces pending action changes on topic.
func WithPublisher(topic *events.Topic[events.PendingActionChanged]) TrackerOption {
	return func(t *Tracker) { t.topic = topic }
}

func WithExtractors(extractors ...Extractor) TrackerOption {
	return func(t *Tracker) { t.extractors = extractors }
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(sessionID string, log logger.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sessionID:  sessionID,
		extractors: DefaultExtractors,
		logger: logger.Component(log, "conversation-tracker").WithFields(map[string]interface{}{
			"sessionId": sessionID,
		}),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.state = emptyState()
	return t
}

func emptyState() models.ConversationState {
	return models.ConversationState{
		LastRecommendations: []string{},
		LastActions:         []string{},
		PendingActions:      []models.PendingAction{},
		ConversationHistory: []models.Turn{},
	}
}

func (t *Tracker) SessionID() string { return t.sessionID }

// UpdateAfterExecutiveResponse reads the recommendations and actions blocks of the last
// assistant turn. Each action item becomes a pending action unless an identical item is
// already tracked and not terminal; with no actions block the recommendations are the
// action items. It returns the pending actions it created.
func (t *Tracker) UpdateAfterExecutiveResponse(outputs []models.TurnOutput) []models.PendingAction {
	var recs, actions []string
	hasActionsBlock := false
	for _, out := range outputs {
		switch out.Type {
		case models.OutputRecommendations:
			recs = append(recs, ExtractItems(out.Content, t.extractors)...)
		case models.OutputActions:
			hasActionsBlock = true
			actions = append(actions, ExtractItems(out.Content, t.extractors)...)
		}
	}

	items := actions
	if !hasActionsBlock {
		items = recs
	}

	t.mu.Lock()
	t.state.LastRecommendations = nonNil(recs)
	t.state.LastActions = nonNil(actions)
	t.state.CanContinue = len(recs) > 0 || len(actions) > 0

	var created []models.PendingAction
	now := t.now().UTC()
	for _, item := range items {
		if t.trackedLocked(item) {
			continue
		}
		pa := models.PendingAction{
			ID:          t.newID(),
			Description: item,
			Source:      models.SourceRecommendation,
			Status:      models.StatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		t.state.PendingActions = append(t.state.PendingActions, pa)
		created = append(created, pa)
	}
	canContinue := t.state.CanContinue
	t.mu.Unlock()

	t.logger.Info("conversation state updated", map[string]interface{}{
		"recommendations": len(recs),
		"actions":         len(actions),
		"created":         len(created),
		"canContinue":     canContinue,
	})
	for _, pa := range created {
		t.publish(pa, "")
	}
	return created
}

// AddPendingAction tracks an action that did not come from an assistant turn.
func (t *Tracker) AddPendingAction(description string, source models.PendingActionSource) models.PendingAction {
	now := t.now().UTC()
	pa := models.PendingAction{
		ID:          t.newID(),
		Description: strings.TrimSpace(description),
		Source:      source,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.mu.Lock()
	t.state.PendingActions = append(t.state.PendingActions, pa)
	t.mu.Unlock()

	t.publish(pa, "")
	return pa
}

func (t *Tracker) trackedLocked(description string) bool {
	key := normalize(description)
	for _, pa := range t.state.PendingActions {
		if !pa.Status.Terminal() && normalize(pa.Description) == key {
			return true
		}
	}
	return false
}

// UpdateAfterActionExecution closes the current workflow: every non-terminal pending
// action is completed and the conversation can no longer continue from the last turn.
func (t *Tracker) UpdateAfterActionExecution() []models.PendingAction {
	type change struct {
		action models.PendingAction
		from   models.PendingActionStatus
	}

	t.mu.Lock()
	t.state.CanContinue = false
	t.state.ActiveWorkflow = nil

	now := t.now().UTC()
	var changes []change
	for i := range t.state.PendingActions {
		pa := &t.state.PendingActions[i]
		if pa.Status.Terminal() {
			continue
		}
		from := pa.Status
		pa.Status = models.StatusCompleted
		pa.UpdatedAt = now
		changes = append(changes, change{action: *pa, from: from})
	}
	t.mu.Unlock()

	completed := make([]models.PendingAction, 0, len(changes))
	for _, c := range changes {
		t.publish(c.action, c.from)
		completed = append(completed, c.action)
	}
	return completed
}

func (t *Tracker) Approve(id string) (models.PendingAction, error) {
	return t.transition(id, models.StatusApproved)
}

func (t *Tracker) MarkExecuting(id string) (models.PendingAction, error) {
	return t.transition(id, models.StatusExecuting)
}

func (t *Tracker) Complete(id string) (models.PendingAction, error) {
	return t.transition(id, models.StatusCompleted)
}

func (t *Tracker) Reject(id string) (models.PendingAction, error) {
	return t.transition(id, models.StatusRejected)
}

// RecordFailure keeps the action where it is and stores the failure message.
func (t *Tracker) RecordFailure(id string, cause error) (models.PendingAction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexLocked(id)
	if idx < 0 {
		return models.PendingAction{}, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	pa := &t.state.PendingActions[idx]
	if cause != nil {
		pa.LastError = cause.Error()
	}
	pa.UpdatedAt = t.now().UTC()
	return *pa, nil
}

func (t *Tracker) transition(id string, to models.PendingActionStatus) (models.PendingAction, error) {
	t.mu.Lock()
	idx := t.indexLocked(id)
	if idx < 0 {
		t.mu.Unlock()
		return models.PendingAction{}, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}

	pa := &t.state.PendingActions[idx]
	from := pa.Status
	if !CanTransition(from, to) {
		t.mu.Unlock()
		return *pa, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, from, to)
	}
	pa.Status = to
	pa.UpdatedAt = t.now().UTC()
	updated := *pa
	t.mu.Unlock()

	t.publish(updated, from)
	return updated, nil
}

func (t *Tracker) indexLocked(id string) int {
	for i := range t.state.PendingActions {
		if t.state.PendingActions[i].ID == id {
			return i
		}
	}
	return -1
}

// PendingAction returns a copy of the tracked action.
func (t *Tracker) PendingAction(id string) (models.PendingAction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx := t.indexLocked(id); idx >= 0 {
		return t.state.PendingActions[idx], true
	}
	return models.PendingAction{}, false
}

// AddToHistory appends turn and evicts the oldest turns beyond MaxHistoryTurns.
func (t *Tracker) AddToHistory(turn models.Turn) {
	if turn.At.IsZero() {
		turn.At = t.now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.ConversationHistory = append(t.state.ConversationHistory, turn)
	if overflow := len(t.state.ConversationHistory) - models.MaxHistoryTurns; overflow > 0 {
		t.state.ConversationHistory = append([]models.Turn(nil), t.state.ConversationHistory[overflow:]...)
	}
}

// RecordQuery stores the user's query as lastQuery and as a history turn.
func (t *Tracker) RecordQuery(query string) {
	t.mu.Lock()
	t.state.LastQuery = query
	t.mu.Unlock()

	t.AddToHistory(models.Turn{Role: models.RoleUser, Content: query})
}

// History returns a copy of the conversation history, oldest first.
func (t *Tracker) History() []models.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Turn(nil), t.state.ConversationHistory...)
}

// SetActiveWorkflow sets the running workflow id; an empty id clears it.
func (t *Tracker) SetActiveWorkflow(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" {
		t.state.ActiveWorkflow = nil
		return
	}
	t.state.ActiveWorkflow = &id
}

// HasContextFor reports whether every key holds non-empty data. Unknown keys are never
// satisfied.
func (t *Tracker) HasContextFor(keys ...string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, key := range keys {
		if !t.hasLocked(key) {
			return false
		}
	}
	return true
}

func (t *Tracker) hasLocked(key string) bool {
	switch key {
	case KeyLastRecommendations:
		return len(t.state.LastRecommendations) > 0
	case KeyLastActions:
		return len(t.state.LastActions) > 0
	case KeyLastQuery:
		return t.state.LastQuery != ""
	case KeyActiveWorkflow:
		return t.state.ActiveWorkflow != nil && *t.state.ActiveWorkflow != ""
	case KeyPendingActions:
		return len(t.state.PendingActions) > 0
	case KeyHistory:
		return len(t.state.ConversationHistory) > 0
	default:
		return false
	}
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() models.ConversationState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state
	s.LastRecommendations = append([]string{}, t.state.LastRecommendations...)
	s.LastActions = append([]string{}, t.state.LastActions...)
	s.PendingActions = append([]models.PendingAction{}, t.state.PendingActions...)
	s.ConversationHistory = append([]models.Turn{}, t.state.ConversationHistory...)
	if t.state.ActiveWorkflow != nil {
		wf := *t.state.ActiveWorkflow
		s.ActiveWorkflow = &wf
	}
	return s
}

// executing reports whether an action is still in flight. Failed executions stay in the
// executing status with LastError set and do not count.
func (t *Tracker) executing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, pa := range t.state.PendingActions {
		if pa.Status == models.StatusExecuting && pa.LastError == "" {
			return true
		}
	}
	return false
}

// Reset drops all state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = emptyState()
}

func (t *Tracker) publish(pa models.PendingAction, from models.PendingActionStatus) {
	metrics.PendingActionTransitions.WithLabelValues(string(pa.Status)).Inc()
	if t.topic == nil {
		return
	}
	if err := t.topic.Publish(events.PendingActionChanged{SessionID: t.sessionID, Action: pa, From: from}); err != nil {
		t.logger.Warn("pending action subscribers reported errors", map[string]interface{}{
			"actionId": pa.ID,
			"error":    err.Error(),
		})
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
