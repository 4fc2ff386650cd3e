package intent

import (
	"context"
	"time"

	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/models"
)

// Outcomes recorded per classification.
const (
	OutcomeOK            = "ok"
	OutcomeCached        = "cached"
	OutcomeFallbackParse = "fallback_parse"
	OutcomeFallbackCall  = "fallback_call"
)

type Classifier struct {
	completer Completer
	cache     Cache
	timeout   time.Duration
	logger    logger.Logger
}

type Option func(*Classifier)

// WithCache enables result caching. A nil cache is ignored.
func WithCache(cache Cache) Option {
	return func(c *Classifier) { c.cache = cache }
}

// WithTimeout bounds each completer call. Zero leaves the caller's context untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

func NewClassifier(completer Completer, log logger.Logger, opts ...Option) *Classifier {
	c := &Classifier{
		completer: completer,
		logger:    logger.Component(log, "intent-classifier"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify never fails: completer errors and unparseable output degrade to the fallback
// result. Confidence is always within [0,1].
func (c *Classifier) Classify(ctx context.Context, query string, history []models.Turn) models.IntentResult {
	result, outcome := c.classify(ctx, query, history)
	metrics.IntentClassifications.WithLabelValues(string(result.Intent), outcome).Inc()
	return result
}

func (c *Classifier) classify(ctx context.Context, query string, history []models.Turn) (models.IntentResult, string) {
	var key string
	if c.cache != nil {
		key = CacheKey(query, history)
		cached, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("intent cache read failed", map[string]interface{}{"error": err.Error()})
		case ok:
			return cached, OutcomeCached
		}
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.completer.Complete(callCtx, SystemPrompt, buildMessages(query, history))
	if err != nil {
		c.logger.Warn("completer failed, using fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return Fallback(ExplanationCallFailed), OutcomeFallbackCall
	}

	result, err := ParseResult(raw)
	if err != nil {
		c.logger.Warn("unparseable classifier output, using fallback", map[string]interface{}{
			"error":     err.Error(),
			"rawLength": len(raw),
		})
		return Fallback(ExplanationUnparseable), OutcomeFallbackParse
	}

	c.logger.Debug("query classified", map[string]interface{}{
		"intent":     string(result.Intent),
		"confidence": result.Confidence,
		"category":   string(result.BusinessCategory),
	})

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, result); err != nil {
			c.logger.Warn("intent cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return result, OutcomeOK
}
