package classifyseverity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"decision-workers/internal/alerting"
	"decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/trace"
)

const TaskType = "classify-severity"

// MessagePublisher is satisfied by *camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey string, variables interface{}) error
}

type HandlerOptions struct {
	Config        *Config
	Ingestor      *alerting.Ingestor
	Publisher     MessagePublisher
	Observability *observability.Observability
	Logger        logger.Logger
}

// Handler classifies incoming events and publishes a message for new alerts.
type Handler struct {
	config    *Config
	ingestor  *alerting.Ingestor
	publisher MessagePublisher
	obs       *observability.Observability
	errors    *errors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Config == nil || opts.Ingestor == nil {
		return nil, fmt.Errorf("%s: config and ingestor are required", TaskType)
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
		config:    opts.Config,
		ingestor:  opts.Ingestor,
		publisher: opts.Publisher,
		obs:       obs,
		errors:    errors.NewErrorHandler(log),
		logger:    log,
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

// Execute validates, dedups and classifies one event. Alerts are published as a BPMN
// message when a message name is configured; a publish failure is logged and reported in
// the output, not returned.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Event) == 0 {
		return nil, errors.NewInvalidInputError("event is required")
	}

	result, err := h.ingestor.Ingest(ctx, input.Event)
	if err != nil {
		return nil, err
	}

	v := result.Verdict
	output := &Output{
		IsAlert:        v.IsAlert,
		Severity:       string(v.Severity),
		RuleID:         v.RuleID,
		MatchedPattern: v.Pattern,
		RuleError:      v.RuleError(),
		Skipped:        result.Skipped,
	}

	if !v.IsAlert || h.publisher == nil || h.config.MessageName == "" {
		return output, nil
	}

	ev := result.Event
	correlationKey := ev.Subject
	if correlationKey == "" {
		correlationKey = ev.Key()
	}
	msg := alertMessage{
		EventID:   ev.ID,
		EventType: ev.Type,
		Source:    ev.Source,
		Subject:   ev.Subject,
		Severity:  string(v.Severity),
		RuleID:    v.RuleID,
	}
	if err := h.publisher.PublishMessage(ctx, h.config.MessageName, correlationKey, msg); err != nil {
		h.logger.Warn("alert message not published", map[string]interface{}{
			"eventId":        ev.ID,
			"correlationKey": correlationKey,
			"error":          err.Error(),
		})
		return output, nil
	}

	output.AlertPublished = true
	return output, nil
}
