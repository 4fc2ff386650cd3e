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

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const defaultOpenAIModel = "gpt-4o-mini"

type OpenAICompleter struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      logger.Logger
}

func NewOpenAICompleter(cfg config.LLMConfig, log logger.Logger) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai completer: api key is required")
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
		model = defaultOpenAIModel
	}

	return &OpenAICompleter{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		logger:      logger.Component(log, "openai-completer"),
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	started := time.Now()
	defer func() {
		metrics.CompletionDuration.WithLabelValues(config.ProviderOpenAI).Observe(time.Since(started).Seconds())
	}()

	chat := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	chat = append(chat, openai.SystemMessage(systemPrompt))
	for _, m := range messages {
		if m.Role == models.RoleAssistant {
			chat = append(chat, openai.AssistantMessage(m.Content))
		} else {
			chat = append(chat, openai.UserMessage(m.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            chat,
		Model:               shared.ChatModel(c.model),
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		c.logger.Warn("openai call failed", map[string]interface{}{"error": err.Error()})
		return "", errors.NewLLMUnavailableError(config.ProviderOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.NewLLMUnavailableError(config.ProviderOpenAI, fmt.Errorf("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}
