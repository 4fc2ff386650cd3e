package alerting

import (
	"fmt"

	"decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/models"
)

// Match sources reported on a Verdict.
const (
	MatchedByRule    = "rule"
	MatchedByPattern = "pattern"
	MatchedByNone    = "none"
)

// Verdict is the outcome of classifying one event. IsAlert=false means not-an-alert,
// which is distinct from an alert of low severity.
type Verdict struct {
	IsAlert   bool            `json:"isAlert"`
	Severity  models.Severity `json:"severity,omitempty"`
	MatchedBy string          `json:"matchedBy"`
	RuleID    string          `json:"ruleId,omitempty"`
	Pattern   string          `json:"matchedPattern,omitempty"`
	Err       error           `json:"-"`
}

// RuleError returns the recorded rule failure message, if any.
func (v Verdict) RuleError() string {
	if v.Err == nil {
		return ""
	}
	return v.Err.Error()
}

// Classifier maps events to severities using a Registry.
type Classifier struct {
	registry *Registry
	logger   logger.Logger
}

// NewClassifier returns a classifier over reg.
func NewClassifier(reg *Registry, log logger.Logger) *Classifier {
	return &Classifier{
		registry: reg,
		logger:   logger.Component(log, "severity-classifier"),
	}
}

func (c *Classifier) Registry() *Registry { return c.registry }

// Classify never fails. An exact-type rule wins; otherwise the first matching pattern
// decides; otherwise the event is not an alert. A rule that errors, panics or returns
// something other than the four severities is downgraded to medium.
func (c *Classifier) Classify(ev models.Event) Verdict {
	v := c.classify(ev)

	severityLabel := string(v.Severity)
	if !v.IsAlert {
		severityLabel = "none"
	}
	metrics.AlertsClassified.WithLabelValues(severityLabel, v.MatchedBy).Inc()

	return v
}

// ClassifySeverity is Classify reduced to (severity, isAlert).
func (c *Classifier) ClassifySeverity(ev models.Event) (models.Severity, bool) {
	v := c.Classify(ev)
	return v.Severity, v.IsAlert
}

func (c *Classifier) classify(ev models.Event) Verdict {
	if ruleID, fn, ok := c.registry.Lookup(ev.Type); ok {
		sev, err := evaluate(fn, ev)
		if err == nil && !sev.Valid() {
			err = fmt.Errorf("rule returned non-severity value %q", sev)
		}
		if err != nil {
			ruleErr := errors.NewRuleEvaluationFailedError(ruleID, err)
			metrics.RuleEvaluationErrors.WithLabelValues(ruleID).Inc()
			c.logger.Warn("rule evaluation failed, downgraded to medium", map[string]interface{}{
				"ruleId":    ruleID,
				"eventId":   ev.ID,
				"eventType": ev.Type,
				"error":     err.Error(),
			})
			return Verdict{IsAlert: true, Severity: models.SeverityMedium, MatchedBy: MatchedByRule, RuleID: ruleID, Err: ruleErr}
		}
		return Verdict{IsAlert: true, Severity: sev, MatchedBy: MatchedByRule, RuleID: ruleID}
	}

	if p, ok := c.registry.MatchPattern(ev.Type); ok {
		return Verdict{IsAlert: true, Severity: p.Severity, MatchedBy: MatchedByPattern, Pattern: p.Raw}
	}

	return Verdict{MatchedBy: MatchedByNone}
}

func evaluate(fn RuleFunc, ev models.Event) (sev models.Severity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panic: %v", r)
		}
	}()
	return fn(ev)
}
