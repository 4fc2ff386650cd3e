package camunda

import (
	"time"

	"decision-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler is implemented by every worker package's Handler.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// WorkerOptions are the per-task settings from config.WorkerConfig.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
}

// WorkerSet owns the open job workers of one process.
type WorkerSet struct {
	client  zbc.Client
	logger  logger.Logger
	workers map[string]worker.JobWorker
}

func NewWorkerSet(client zbc.Client, log logger.Logger) *WorkerSet {
	return &WorkerSet{
		client:  client,
		logger:  logger.Component(log, "worker-set"),
		workers: make(map[string]worker.JobWorker),
	}
}

// Open starts polling for taskType. Opening the same task type twice is a no-op.
func (s *WorkerSet) Open(taskType string, handler JobHandler, opts WorkerOptions) {
	if _, exists := s.workers[taskType]; exists {
		return
	}

	builder := s.client.NewJobWorker().
		JobType(taskType).
		Handler(handler.Handle).
		MaxJobsActive(opts.MaxJobsActive)
	if opts.Timeout > 0 {
		builder = builder.Timeout(opts.Timeout)
	}

	s.workers[taskType] = builder.Open()
	s.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": opts.MaxJobsActive,
		"timeout":       opts.Timeout.String(),
	})
}

// TaskTypes lists the opened task types.
func (s *WorkerSet) TaskTypes() []string {
	out := make([]string, 0, len(s.workers))
	for taskType := range s.workers {
		out = append(out, taskType)
	}
	return out
}

// Close stops every worker and waits for in-flight jobs.
func (s *WorkerSet) Close() {
	for taskType, w := range s.workers {
		s.logger.Info("stopping worker", map[string]interface{}{"taskType": taskType})
		w.Close()
		w.AwaitClose()
	}
}
