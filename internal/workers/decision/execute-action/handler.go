package executeaction

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/common/observability"
	"decision-workers/internal/confirmation"
	"decision-workers/internal/conversation"
	"decision-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/trace"
)

const TaskType = "execute-action"

type HandlerOptions struct {
	Config        *Config
	Coordinator   *confirmation.Coordinator
	Sessions      *conversation.Sessions
	Observability *observability.Observability
	Logger        logger.Logger
}

// Handler runs confirmed decisions for the execute-action job type.
type Handler struct {
	config      *Config
	coordinator *confirmation.Coordinator
	sessions    *conversation.Sessions
	obs         *observability.Observability
	errors      *errors.ErrorHandler
	logger      logger.Logger
}

// NewHandler requires a coordinator and the session store.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Config == nil || opts.Coordinator == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("%s: config, coordinator and sessions are required", TaskType)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	obs := opts.Observability
	if obs == nil {
		obs = observability.Noop()
	}

	return &Handler{
		config:      opts.Config,
		coordinator: opts.Coordinator,
		sessions:    opts.Sessions,
		obs:         obs,
		errors:      errors.NewErrorHandler(log),
		logger:      log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	started := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()
	ctx, span := h.obs.StartJobSpan(ctx, TaskType, job.GetKey())

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		h.fail(ctx, client, job, started, span, errors.NewInvalidInputError(fmt.Sprintf("parse variables: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, started, span, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err == nil {
		_, err = cmd.Send(ctx)
	}
	if err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
	}

	h.obs.EndJob(ctx, span, TaskType, started, err)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(started).Seconds())
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, started time.Time, span trace.Span, err error) {
	bpmnErr := h.errors.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
	h.obs.EndJob(ctx, span, TaskType, started, err)
}

// Execute runs, or cancels, the decision behind a pending action of an existing session.
// An unconfirmed request approves the action and fails with ACTION_CONFIRMATION_REQUIRED;
// a failed execution fails with ACTION_EXECUTION_FAILED and is never retried.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.SessionID == "" || input.PendingActionID == "" {
		return nil, errors.NewInvalidInputError("sessionId and pendingActionId are required")
	}

	tracker, ok := h.sessions.Lookup(input.SessionID)
	if !ok {
		return nil, errors.NewSessionNotFoundError(input.SessionID)
	}

	if input.Cancel {
		return h.cancel(tracker, input)
	}

	result, err := h.coordinator.Execute(ctx, tracker, confirmation.Request{
		DecisionID:      input.DecisionID,
		PendingActionID: input.PendingActionID,
		Steps:           input.Steps,
		Confirmed:       input.Confirmed,
	})
	if err != nil {
		return nil, translate(tracker, input, err)
	}

	h.logger.Info("decision executed", map[string]interface{}{
		"sessionId":     input.SessionID,
		"decisionId":    result.DecisionID,
		"aggregateRisk": string(result.Summary.AggregateRisk),
		"totalRecords":  result.Summary.TotalRecords,
	})

	return &Output{
		DecisionID:          result.DecisionID,
		State:               result.State,
		AggregateRisk:       result.Summary.AggregateRisk,
		TotalRecords:        result.Summary.TotalRecords,
		PendingActionStatus: result.Action.Status,
	}, nil
}

func (h *Handler) cancel(tracker *conversation.Tracker, input *Input) (*Output, error) {
	if input.DecisionID == "" {
		return nil, errors.NewInvalidInputError("decisionId is required to cancel")
	}

	flow, ok := h.coordinator.Flow(input.DecisionID)
	if !ok {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("decision %s is not pending", input.DecisionID))
	}
	if err := h.coordinator.Cancel(input.DecisionID); err != nil {
		return nil, translate(tracker, input, err)
	}

	out := &Output{
		DecisionID:    input.DecisionID,
		State:         flow.State(),
		AggregateRisk: flow.Summary().AggregateRisk,
		TotalRecords:  flow.Summary().TotalRecords,
	}
	if pa, ok := tracker.PendingAction(input.PendingActionID); ok {
		out.PendingActionStatus = pa.Status
	}
	return out, nil
}

// translate maps package sentinels onto job error codes; StandardErrors pass through.
func translate(tracker *conversation.Tracker, input *Input, err error) error {
	if _, ok := errors.AsStandardError(err); ok {
		return err
	}

	var from string
	if pa, ok := tracker.PendingAction(input.PendingActionID); ok {
		from = string(pa.Status)
	}
	switch {
	case stderrors.Is(err, conversation.ErrActionNotFound):
		return errors.NewInvalidInputError(err.Error())
	case stderrors.Is(err, conversation.ErrInvalidTransition):
		return errors.NewInvalidTransitionError(input.PendingActionID, from, string(models.StatusApproved))
	case stderrors.Is(err, confirmation.ErrAlreadyConfirmed):
		return errors.NewInvalidTransitionError(input.PendingActionID, from, string(models.StatusExecuting))
	case stderrors.Is(err, confirmation.ErrNotCancellable):
		return errors.NewInvalidTransitionError(input.PendingActionID, from, string(models.StatusRejected))
	}
	return errors.NewInternalError(err)
}
