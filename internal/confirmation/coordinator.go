package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	apperrors "decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/conversation"
	"decision-workers/internal/events"
	"decision-workers/internal/models"
)

var ErrUnknownDecision = errors.New("unknown decision")

type Request struct {
	DecisionID      string
	PendingActionID string
	Steps           []models.ActionStep
	Confirmed       bool
}

type Result struct {
	DecisionID string
	State      models.ExecutionState
	Summary    Summary
	Action     models.PendingAction
}

// Coordinator ties confirmation flows to the pending actions they execute. Each pending
// action has at most one registered flow, and a flow stays registered until it reaches a
// terminal state.
type Coordinator struct {
	execute ExecuteFunc
	hub     *events.Hub
	logger  logger.Logger

	mu       sync.Mutex
	flows    map[string]*Flow
	actions  map[string]string // decision id → pending action id
	byAction map[string]string // pending action id → decision id
}

// NewCoordinator accepts a nil hub.
func NewCoordinator(execute ExecuteFunc, hub *events.Hub, log logger.Logger) *Coordinator {
	return &Coordinator{
		execute:  execute,
		hub:      hub,
		logger:   logger.Component(log, "decision-coordinator"),
		flows:    make(map[string]*Flow),
		actions:  make(map[string]string),
		byAction: make(map[string]string),
	}
}

// Prepare approves the pending action and registers an idle flow for the decision. A
// request for an action that already has a flow gets that flow back when its decision id
// is empty or matches; any other decision id is refused with ErrInvalidTransition.
func (c *Coordinator) Prepare(tracker *conversation.Tracker, req Request) (*Flow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.DecisionID != "" {
		if f, ok := c.flows[req.DecisionID]; ok {
			if owner := c.actions[req.DecisionID]; owner != req.PendingActionID {
				return nil, apperrors.NewInvalidInputError(fmt.Sprintf("decision %s belongs to pending action %s", req.DecisionID, owner))
			}
			return f, nil
		}
	}
	if id, ok := c.byAction[req.PendingActionID]; ok {
		if req.DecisionID == "" {
			return c.flows[id], nil
		}
		return nil, fmt.Errorf("%w: %s is held by decision %s", conversation.ErrInvalidTransition, req.PendingActionID, id)
	}

	pa, ok := tracker.PendingAction(req.PendingActionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", conversation.ErrActionNotFound, req.PendingActionID)
	}

	opts := []FlowOption{WithPreRun(func() error {
		_, err := tracker.MarkExecuting(pa.ID)
		return err
	})}
	if c.hub != nil {
		opts = append(opts, WithDecisionUpdates(c.hub.Decisions))
	}
	flow, err := NewFlow(req.DecisionID, req.Steps, c.execute, c.logger, opts...)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	if pa.Status == models.StatusPending {
		if _, err := tracker.Approve(pa.ID); err != nil {
			return nil, err
		}
	} else if pa.Status != models.StatusApproved {
		return nil, fmt.Errorf("%w: %s is %s", conversation.ErrInvalidTransition, pa.ID, pa.Status)
	}

	flow.OnStateChange(c.bind(tracker, flow.ID(), pa.ID))
	c.flows[flow.ID()] = flow
	c.actions[flow.ID()] = pa.ID
	c.byAction[pa.ID] = flow.ID()
	return flow, nil
}

// bind mirrors terminal flow states onto the pending action. The move to executing
// happens in the flow's pre-run check.
func (c *Coordinator) bind(tracker *conversation.Tracker, decisionID, actionID string) StateObserver {
	return func(from, to models.ExecutionState) {
		if !to.Terminal() {
			return
		}
		var err error
		switch to {
		case models.ExecutionSucceeded:
			if _, err = tracker.Complete(actionID); err == nil {
				tracker.UpdateAfterActionExecution()
			}
		case models.ExecutionFailed:
			_, err = tracker.RecordFailure(actionID, fmt.Errorf("decision %s failed", decisionID))
		case models.ExecutionCancelled:
			_, err = tracker.Reject(actionID)
		}
		if err != nil {
			c.logger.Error("pending action update failed", map[string]interface{}{
				"decisionId": decisionID,
				"actionId":   actionID,
				"state":      string(to),
				"error":      err.Error(),
			})
		}
		c.forget(decisionID)
	}
}

// Execute prepares the decision and, when confirmed, runs it. Without confirmation the
// pending action is left approved and an ACTION_CONFIRMATION_REQUIRED error is returned.
// A failed execution returns the Result together with an ACTION_EXECUTION_FAILED error.
func (c *Coordinator) Execute(ctx context.Context, tracker *conversation.Tracker, req Request) (*Result, error) {
	flow, err := c.Prepare(tracker, req)
	if err != nil {
		return nil, err
	}

	result := &Result{DecisionID: flow.ID(), Summary: flow.Summary()}

	if !req.Confirmed {
		result.State = flow.State()
		result.Action, _ = tracker.PendingAction(req.PendingActionID)
		return result, apperrors.NewActionConfirmationRequiredError(flow.ID())
	}

	outcome, err := flow.Confirm(ctx)
	result.State = outcome.State
	result.Action, _ = tracker.PendingAction(req.PendingActionID)

	switch {
	case errors.Is(err, ErrCancelled):
		return result, apperrors.NewActionCancelledError(flow.ID())
	case errors.Is(err, ErrNotRunnable):
		c.forget(flow.ID())
		return result, err
	case err != nil:
		return result, err
	case outcome.Err != nil:
		if apperrors.HasCode(outcome.Err, apperrors.ErrCodeActionExecutionFailed) {
			return result, outcome.Err
		}
		return result, apperrors.NewActionExecutionFailedError(flow.ID(), outcome.Err)
	}
	return result, nil
}

// Cancel cancels a registered, unconfirmed decision; its pending action is rejected.
func (c *Coordinator) Cancel(decisionID string) error {
	c.mu.Lock()
	flow, ok := c.flows[decisionID]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDecision, decisionID)
	}
	return flow.Cancel()
}

// Flow returns the registered flow for decisionID.
func (c *Coordinator) Flow(decisionID string) (*Flow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flows[decisionID]
	return f, ok
}

func (c *Coordinator) forget(decisionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if actionID, ok := c.actions[decisionID]; ok && c.byAction[actionID] == decisionID {
		delete(c.byAction, actionID)
	}
	delete(c.actions, decisionID)
	delete(c.flows, decisionID)
}
