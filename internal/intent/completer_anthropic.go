package intent

import (
	"context"
	"fmt"
	"time"

	"decision-workers/internal/common/config"
	"decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

type AnthropicCompleter struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      logger.Logger
}

func NewAnthropicCompleter(cfg config.LLMConfig, log logger.Logger) (*AnthropicCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic completer: api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicCompleter{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		logger:      logger.Component(log, "anthropic-completer"),
	}, nil
}

func (c *AnthropicCompleter) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	started := time.Now()
	defer func() {
		metrics.CompletionDuration.WithLabelValues(config.ProviderAnthropic).Observe(time.Since(started).Seconds())
	}()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
	}
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == models.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		c.logger.Warn("anthropic call failed", map[string]interface{}{"error": err.Error()})
		return "", errors.NewLLMUnavailableError(config.ProviderAnthropic, err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.NewLLMUnavailableError(config.ProviderAnthropic, fmt.Errorf("no text content in response"))
}
