package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/common/validation"
	"decision-workers/internal/events"
	"decision-workers/internal/models"
)

// Skip reasons reported by Ingest.
const (
	SkipDuplicate   = "duplicate"
	SkipUnmonitored = "unmonitored_stream"
)

type IngestResult struct {
	Event   models.Event
	Verdict Verdict
	Skipped string
}

// Ingestor validates, filters, dedups and classifies inbound events, then announces alerts.
type Ingestor struct {
	classifier *Classifier
	deduper    Deduper
	hub        *events.Hub
	logger     logger.Logger
	now        func() time.Time
}

// NewIngestor accepts a nil deduper (no dedup) and a nil hub (no announcements).
func NewIngestor(classifier *Classifier, deduper Deduper, hub *events.Hub, log logger.Logger) *Ingestor {
	return &Ingestor{
		classifier: classifier,
		deduper:    deduper,
		hub:        hub,
		logger:     logger.Component(log, "alert-ingestor"),
		now:        time.Now,
	}
}

// Ingest returns an EVENT_INVALID error for envelopes that fail validation. Dedup store
// failures do not block classification.
func (i *Ingestor) Ingest(ctx context.Context, raw json.RawMessage) (*IngestResult, error) {
	result, err := validation.CloudEvent().ValidateJSON(raw)
	if err != nil {
		return nil, errors.NewEventInvalidError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewEventInvalidError(result.Error())
	}

	var ev models.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, errors.NewEventInvalidError(fmt.Sprintf("decode: %v", err))
	}

	return i.IngestEvent(ctx, ev)
}

// IngestEvent is Ingest for an already-decoded event.
func (i *Ingestor) IngestEvent(ctx context.Context, ev models.Event) (*IngestResult, error) {
	out := &IngestResult{Event: ev}
	fields := map[string]interface{}{
		"eventId":   ev.ID,
		"eventType": ev.Type,
		"source":    ev.Source,
	}

	if !i.classifier.Registry().Monitors(ev.Source) {
		out.Skipped = SkipUnmonitored
		metrics.EventsSkipped.WithLabelValues(SkipUnmonitored).Inc()
		i.logger.Debug("event from unmonitored stream ignored", fields)
		return out, nil
	}

	if i.deduper != nil {
		fresh, err := i.deduper.FirstSeen(ctx, ev.Key())
		switch {
		case err != nil:
			i.logger.Warn("dedup store unavailable, classifying anyway", map[string]interface{}{
				"eventId": ev.ID,
				"error":   errors.NewDedupStoreUnavailableError(err).Details,
			})
		case !fresh:
			out.Skipped = SkipDuplicate
			metrics.EventsSkipped.WithLabelValues(SkipDuplicate).Inc()
			i.logger.Info("duplicate event ignored", fields)
			return out, nil
		}
	}

	out.Verdict = i.classifier.Classify(ev)
	if !out.Verdict.IsAlert {
		return out, nil
	}

	i.logger.Info("alert raised", map[string]interface{}{
		"eventId":   ev.ID,
		"eventType": ev.Type,
		"severity":  string(out.Verdict.Severity),
		"matchedBy": out.Verdict.MatchedBy,
	})

	if i.hub != nil {
		if err := i.hub.Alerts.Publish(events.AlertRaised{
			Event:     ev,
			Severity:  out.Verdict.Severity,
			RuleID:    out.Verdict.RuleID,
			Pattern:   out.Verdict.Pattern,
			RuleError: out.Verdict.RuleError(),
			At:        i.now().UTC(),
		}); err != nil {
			i.logger.Warn("alert subscribers reported errors", map[string]interface{}{
				"eventId": ev.ID,
				"error":   err.Error(),
			})
		}
	}

	return out, nil
}
