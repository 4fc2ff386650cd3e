package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/events"
	"decision-workers/internal/models"

	"github.com/google/uuid"
)

var (
	ErrAlreadyConfirmed = errors.New("decision already confirmed")
	ErrNotCancellable   = errors.New("decision can no longer be cancelled")
	ErrCancelled        = errors.New("decision was cancelled")
	ErrNoSteps          = errors.New("decision has no steps")
	ErrNotRunnable      = errors.New("decision can no longer run")
)

// ExecuteFunc runs the confirmed steps. It is called at most once per Flow.
type ExecuteFunc func(ctx context.Context, decisionID string, steps []models.ActionStep) error

// StateObserver is called after every state change, outside the flow's lock.
type StateObserver func(from, to models.ExecutionState)

type Summary struct {
	AggregateRisk models.RiskLevel `json:"aggregateRisk"`
	TotalRecords  int              `json:"totalRecords"`
	Steps         int              `json:"steps"`
}

type Outcome struct {
	DecisionID string
	State      models.ExecutionState
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Flow gates one list of proposed steps behind an explicit confirmation.
//
//	idle → executing → succeeded | failed
//	idle → cancelled
type Flow struct {
	id      string
	steps   []models.ActionStep
	summary Summary
	execute ExecuteFunc
	preRun  func() error
	topic   *events.Topic[events.DecisionUpdated]
	logger  logger.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     models.ExecutionState
	observers []StateObserver
}

type FlowOption func(*Flow)

// WithDecisionUpdates publishes every state change on topic.
func WithDecisionUpdates(topic *events.Topic[events.DecisionUpdated]) FlowOption {
	return func(f *Flow) { f.topic = topic }
}

// WithPreRun makes Confirm call check before leaving idle. When check fails the flow stays
// idle and the callback is not run.
func WithPreRun(check func() error) FlowOption {
	return func(f *Flow) { f.preRun = check }
}

func WithFlowClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// NewFlow validates steps and returns an idle flow. An empty id gets a generated one.
func NewFlow(id string, steps []models.ActionStep, execute ExecuteFunc, log logger.Logger, opts ...FlowOption) (*Flow, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	if execute == nil {
		return nil, fmt.Errorf("execute callback is required")
	}
	for i, s := range steps {
		if s.RecordsAffected < 0 {
			return nil, fmt.Errorf("step %d: recordsAffected must not be negative", i)
		}
		if !s.RiskLevel.Valid() {
			return nil, fmt.Errorf("step %d: unknown risk level %q", i, s.RiskLevel)
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	f := &Flow{
		id:      id,
		steps:   append([]models.ActionStep(nil), steps...),
		summary: Summarize(steps),
		execute: execute,
		logger:  logger.Component(log, "confirmation-flow").WithFields(map[string]interface{}{"decisionId": id}),
		now:     time.Now,
		state:   models.ExecutionIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Summarize aggregates risk as the maximum (low < medium < high) and records as the sum.
func Summarize(steps []models.ActionStep) Summary {
	s := Summary{AggregateRisk: models.RiskLow, Steps: len(steps)}
	for _, step := range steps {
		if step.RiskLevel.Rank() > s.AggregateRisk.Rank() {
			s.AggregateRisk = step.RiskLevel
		}
		s.TotalRecords += step.RecordsAffected
	}
	return s
}

func (f *Flow) ID() string { return f.id }

func (f *Flow) Summary() Summary { return f.summary }

func (f *Flow) Steps() []models.ActionStep {
	return append([]models.ActionStep(nil), f.steps...)
}

func (f *Flow) State() models.ExecutionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) OnStateChange(fn StateObserver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, fn)
}

// Confirm runs the execute callback exactly once. A second confirmation returns
// ErrAlreadyConfirmed and a confirmation after Cancel returns ErrCancelled, both without
// side effects. A failing pre-run check returns ErrNotRunnable and leaves the flow idle. Callback failures are reported in Outcome.Err and never retried.
func (f *Flow) Confirm(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	switch f.state {
	case models.ExecutionIdle:
		if f.preRun != nil {
			if err := f.preRun(); err != nil {
				f.mu.Unlock()
				return Outcome{DecisionID: f.id, State: models.ExecutionIdle}, fmt.Errorf("%w: %w", ErrNotRunnable, err)
			}
		}
	case models.ExecutionCancelled:
		f.mu.Unlock()
		return Outcome{DecisionID: f.id, State: models.ExecutionCancelled}, ErrCancelled
	default:
		state := f.state
		f.mu.Unlock()
		return Outcome{DecisionID: f.id, State: state}, ErrAlreadyConfirmed
	}
	f.state = models.ExecutionRunning
	f.mu.Unlock()

	out := Outcome{DecisionID: f.id, StartedAt: f.now().UTC()}
	f.notify(models.ExecutionIdle, models.ExecutionRunning, nil)

	f.logger.Info("executing confirmed decision", map[string]interface{}{
		"steps":         f.summary.Steps,
		"aggregateRisk": string(f.summary.AggregateRisk),
		"totalRecords":  f.summary.TotalRecords,
	})

	err := f.run(ctx)

	final := models.ExecutionSucceeded
	if err != nil {
		final = models.ExecutionFailed
		f.logger.Error("decision execution failed", map[string]interface{}{"error": err.Error()})
	}

	f.mu.Lock()
	f.state = final
	f.mu.Unlock()

	out.State = final
	out.Err = err
	out.FinishedAt = f.now().UTC()
	metrics.ActionExecutions.WithLabelValues(string(final)).Inc()
	f.notify(models.ExecutionRunning, final, err)
	return out, nil
}

func (f *Flow) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execute callback panic: %v", r)
		}
	}()
	return f.execute(ctx, f.id, f.Steps())
}

// Cancel is only possible before confirmation.
func (f *Flow) Cancel() error {
	f.mu.Lock()
	if f.state != models.ExecutionIdle {
		f.mu.Unlock()
		return ErrNotCancellable
	}
	f.state = models.ExecutionCancelled
	f.mu.Unlock()

	metrics.ActionExecutions.WithLabelValues(string(models.ExecutionCancelled)).Inc()
	f.notify(models.ExecutionIdle, models.ExecutionCancelled, nil)
	return nil
}

func (f *Flow) notify(from, to models.ExecutionState, cause error) {
	f.mu.Lock()
	observers := append([]StateObserver(nil), f.observers...)
	f.mu.Unlock()

	for _, fn := range observers {
		fn(from, to)
	}

	if f.topic == nil {
		return
	}
	update := events.DecisionUpdated{DecisionID: f.id, State: to, At: f.now().UTC()}
	if cause != nil {
		update.Error = cause.Error()
	}
	if err := f.topic.Publish(update); err != nil {
		f.logger.Warn("decision subscribers reported errors", map[string]interface{}{"error": err.Error()})
	}
}
