package classifyintent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/common/observability"
	"decision-workers/internal/conversation"
	"decision-workers/internal/intent"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/trace"
)

const TaskType = "classify-intent"

type HandlerOptions struct {
	Config        *Config
	Classifier    *intent.Classifier
	Sessions      *conversation.Sessions
	Observability *observability.Observability
	Logger        logger.Logger
}

// Handler classifies the intent of a user query.
type Handler struct {
	config     *Config
	classifier *intent.Classifier
	sessions   *conversation.Sessions
	obs        *observability.Observability
	errors     *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Config == nil || opts.Classifier == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("%s: config, classifier and sessions are required", TaskType)
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
		config:     opts.Config,
		classifier: opts.Classifier,
		sessions:   opts.Sessions,
		obs:        obs,
		errors:     errors.NewErrorHandler(log),
		logger:     log,
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

// Execute classifies the query against the session's history, then records the query as
// the newest user turn. Classification itself never fails.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	query := strings.TrimSpace(input.Query)
	if input.SessionID == "" {
		return nil, errors.NewInvalidInputError("sessionId is required")
	}
	if query == "" {
		return nil, errors.NewInvalidInputError("query is required")
	}

	tracker := h.sessions.Get(input.SessionID)
	result := h.classifier.Classify(ctx, query, tracker.History())
	tracker.RecordQuery(query)

	fallback := intent.IsFallback(result)

	h.logger.Info("intent classified", map[string]interface{}{
		"sessionId":  input.SessionID,
		"intent":     string(result.Intent),
		"confidence": result.Confidence,
		"fallback":   fallback,
	})

	return &Output{IntentResult: result, Fallback: fallback}, nil
}
