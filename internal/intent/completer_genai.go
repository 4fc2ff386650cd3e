package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"decision-workers/internal/common/config"
	"decision-workers/internal/common/errors"
	httpclient "decision-workers/internal/common/http"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
)

const completePath = "/api/ai/complete"

type genAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type genAIRequest struct {
	Model        string         `json:"model,omitempty"`
	SystemPrompt string         `json:"systemPrompt"`
	Messages     []genAIMessage `json:"messages"`
	MaxTokens    int            `json:"maxTokens,omitempty"`
	Temperature  float64        `json:"temperature"`
}

type genAIResponse struct {
	Content string `json:"content"`
}

// GenAICompleter calls the internal GenAI service. Transport errors and non-2xx responses
// are retried with exponential backoff; an expired context is reported as a timeout.
type GenAICompleter struct {
	client     *httpclient.Client
	endpoint   string
	cfg        config.LLMConfig
	maxRetries int
	logger     logger.Logger
}

func NewGenAICompleter(cfg config.LLMConfig, log logger.Logger) (*GenAICompleter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("genai completer: base url is required")
	}

	client := httpclient.NewClient(config.GetDuration(cfg.Timeout))
	if cfg.APIKey != "" {
		client.WithHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &GenAICompleter{
		client:     client,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + completePath,
		cfg:        cfg,
		maxRetries: max(cfg.MaxRetries, 0),
		logger:     logger.Component(log, "genai-completer"),
	}, nil
}

func (c *GenAICompleter) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	started := time.Now()
	defer func() {
		metrics.CompletionDuration.WithLabelValues(config.ProviderGenAI).Observe(time.Since(started).Seconds())
	}()

	req := genAIRequest{
		Model:        c.cfg.Model,
		SystemPrompt: systemPrompt,
		Messages:     make([]genAIMessage, 0, len(messages)),
		MaxTokens:    c.cfg.MaxTokens,
		Temperature:  c.cfg.Temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, genAIMessage{Role: string(m.Role), Content: m.Content})
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", errors.NewIntentAPITimeoutError()
			}
		}

		var resp genAIResponse
		lastErr = c.client.PostJSON(ctx, c.endpoint, req, &resp)
		if ctx.Err() != nil {
			return "", errors.NewIntentAPITimeoutError()
		}
		if lastErr == nil {
			return resp.Content, nil
		}

		c.logger.Debug("completion attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})
	}

	c.logger.Warn("genai call failed after retries", map[string]interface{}{
		"attempts": c.maxRetries + 1,
		"error":    lastErr.Error(),
	})
	return "", errors.NewLLMUnavailableError(config.ProviderGenAI, lastErr)
}
