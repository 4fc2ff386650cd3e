package confirmation

import (
	"context"
	"strings"

	"decision-workers/internal/common/config"
	"decision-workers/internal/common/errors"
	httpclient "decision-workers/internal/common/http"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/models"
)

const executePath = "/api/rmn/execute-action"

type executeRequest struct {
	DecisionID string `json:"decisionId"`
	Action     string `json:"action"`
}

// Executor sends confirmed steps to the action side channel, one request per step, and
// stops at the first failure.
type Executor struct {
	client   *httpclient.Client
	endpoint string
	logger   logger.Logger
}

func NewExecutor(cfg config.ActionsConfig, log logger.Logger) *Executor {
	client := httpclient.NewClient(config.GetDuration(cfg.Timeout))
	if cfg.APIToken != "" {
		client.WithHeader("Authorization", "Bearer "+cfg.APIToken)
	}
	return &Executor{
		client:   client,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + executePath,
		logger:   logger.Component(log, "action-executor"),
	}
}

// Execute satisfies ExecuteFunc. Failures are ACTION_EXECUTION_FAILED errors.
func (e *Executor) Execute(ctx context.Context, decisionID string, steps []models.ActionStep) error {
	for i, step := range steps {
		if err := e.client.PostJSON(ctx, e.endpoint, executeRequest{DecisionID: decisionID, Action: step.Action}, nil); err != nil {
			e.logger.Error("action step failed", map[string]interface{}{
				"decisionId": decisionID,
				"step":       i,
				"agent":      step.AgentName,
				"error":      err.Error(),
			})
			return errors.NewActionExecutionFailedError(decisionID, err)
		}
		e.logger.Debug("action step executed", map[string]interface{}{
			"decisionId": decisionID,
			"step":       i,
			"agent":      step.AgentName,
		})
	}
	return nil
}
