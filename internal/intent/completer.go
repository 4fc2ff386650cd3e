package intent

import (
	"context"
	"fmt"

	"decision-workers/internal/common/config"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/models"
)

// Message is one turn handed to a completer.
type Message struct {
	Role    models.Role
	Content string
}

// Completer is the completion capability behind the classifier: a system prompt plus a
// message list in, raw model text out.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, systemPrompt string, messages []Message) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	return f(ctx, systemPrompt, messages)
}

// NewCompleter builds the completer selected by cfg.Provider.
func NewCompleter(cfg config.LLMConfig, log logger.Logger) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicCompleter(cfg, log)
	case config.ProviderOpenAI:
		return NewOpenAICompleter(cfg, log)
	case config.ProviderGenAI, "":
		return NewGenAICompleter(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
