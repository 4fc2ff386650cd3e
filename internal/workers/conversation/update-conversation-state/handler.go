package updateconversationstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/common/observability"
	"decision-workers/internal/conversation"
	"decision-workers/internal/events"
	"decision-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/trace"
)

const TaskType = "update-conversation-state"

type HandlerOptions struct {
	Config        *Config
	Sessions      *conversation.Sessions
	Pins          *events.Pinboard
	Observability *observability.Observability
	Logger        logger.Logger
}

// Handler applies conversation turns to the session trackers.
type Handler struct {
	config   *Config
	sessions *conversation.Sessions
	pins     *events.Pinboard
	obs      *observability.Observability
	errors   *errors.ErrorHandler
	logger   logger.Logger
}

// NewHandler falls back to no-op logging and observability when none are given.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Config == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("%s: config and sessions are required", TaskType)
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
		config:   opts.Config,
		sessions: opts.Sessions,
		pins:     opts.Pins,
		obs:      obs,
		errors:   errors.NewErrorHandler(log),
		logger:   log,
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
	if input.ActiveWorkflow == "" {
		input.ActiveWorkflow = strconv.FormatInt(job.GetProcessInstanceKey(), 10)
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

// Execute applies one assistant turn to the session: the tagged outputs update
// recommendations, actions and pending actions, and their text becomes an assistant
// history turn.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.SessionID == "" {
		return nil, errors.NewInvalidInputError("sessionId is required")
	}

	tracker := h.sessions.Get(input.SessionID)
	created := tracker.UpdateAfterExecutiveResponse(input.TurnOutputs)

	if text := assistantText(input.TurnOutputs); text != "" {
		tracker.AddToHistory(models.Turn{Role: models.RoleAssistant, Content: text})
	}

	state := tracker.Snapshot()
	if state.CanContinue && input.ActiveWorkflow != "" {
		tracker.SetActiveWorkflow(input.ActiveWorkflow)
	}

	output := &Output{
		CanContinue:         state.CanContinue,
		PendingActions:      state.PendingActions,
		CreatedActions:      len(created),
		LastRecommendations: state.LastRecommendations,
		LastActions:         state.LastActions,
	}

	if h.pins != nil {
		for _, id := range input.TogglePins {
			if _, err := h.pins.Toggle(input.SessionID, id); err != nil {
				h.logger.Warn("pin subscribers reported errors", map[string]interface{}{
					"sessionId": input.SessionID,
					"itemId":    id,
					"error":     err.Error(),
				})
			}
		}
		output.PinnedItems = h.pins.Pinned(input.SessionID)
	}

	h.logger.Info("conversation state updated", map[string]interface{}{
		"sessionId":      input.SessionID,
		"canContinue":    output.CanContinue,
		"createdActions": output.CreatedActions,
	})
	return output, nil
}

func assistantText(outputs []models.TurnOutput) string {
	parts := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if c := strings.TrimSpace(o.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}
