// Package notify fans surfaced alerts out to SMS and e-mail.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awsx "decision-workers/internal/common/aws"
	"decision-workers/internal/common/config"
	apperrors "decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/common/metrics"
	"decision-workers/internal/events"
	"decision-workers/internal/models"

	"github.com/google/uuid"
)

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"

	StatusSent   = "sent"
	StatusFailed = "failed"

	sendTimeout = 10 * time.Second
)

type Notifier struct {
	cfg            config.NotificationConfig
	sms            awsx.SNSService
	email          awsx.SESService
	smsThreshold   models.Severity
	emailThreshold models.Severity
	logger         logger.Logger
	now            func() time.Time
}

// NewNotifier accepts nil clients; the matching channel is then skipped.
func NewNotifier(cfg config.NotificationConfig, sms awsx.SNSService, email awsx.SESService, log logger.Logger) (*Notifier, error) {
	smsThreshold, err := models.ParseSeverity(cfg.SMS.PriorityThreshold)
	if err != nil {
		return nil, fmt.Errorf("sms threshold: %w", err)
	}
	emailThreshold, err := models.ParseSeverity(cfg.Email.PriorityThreshold)
	if err != nil {
		return nil, fmt.Errorf("email threshold: %w", err)
	}

	return &Notifier{
		cfg:            cfg,
		sms:            sms,
		email:          email,
		smsThreshold:   smsThreshold,
		emailThreshold: emailThreshold,
		logger:         logger.Component(log, "alert-notifier"),
		now:            time.Now,
	}, nil
}

// Subscribe delivers every alert published on topic.
func (n *Notifier) Subscribe(topic *events.Topic[events.AlertRaised]) *events.Subscription {
	return topic.Subscribe(func(alert events.AlertRaised) error {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		var errs []error
		for _, rec := range n.Notify(ctx, alert) {
			if rec.Status == StatusFailed {
				errs = append(errs, fmt.Errorf("%s: %s", rec.Channel, rec.Error))
			}
		}
		return errors.Join(errs...)
	})
}

// Notify sends alert on every enabled channel whose threshold it meets and returns one
// record per attempt.
func (n *Notifier) Notify(ctx context.Context, alert events.AlertRaised) []models.AlertNotification {
	var out []models.AlertNotification

	if n.cfg.SMS.Enabled && n.sms != nil && alert.Severity.AtLeast(n.smsThreshold) {
		_, err := n.sms.Publish(ctx, awsx.SMSInput(n.cfg.SMS.TopicARN, n.cfg.SMS.PhoneNumber, FormatSMS(alert)))
		out = append(out, n.record(alert, ChannelSMS, err))
	}

	if n.cfg.Email.Enabled && n.email != nil && len(n.cfg.Email.Recipients) > 0 && alert.Severity.AtLeast(n.emailThreshold) {
		subject, body := FormatEmail(alert)
		_, err := n.email.SendEmail(ctx, awsx.EmailInput(n.cfg.Email.FromEmail, n.cfg.Email.Recipients, subject, body))
		out = append(out, n.record(alert, ChannelEmail, err))
	}

	return out
}

func (n *Notifier) record(alert events.AlertRaised, channel string, err error) models.AlertNotification {
	rec := models.AlertNotification{
		ID:        uuid.NewString(),
		EventID:   alert.Event.ID,
		EventType: alert.Event.Type,
		Severity:  alert.Severity,
		Channel:   channel,
		Status:    StatusSent,
		SentAt:    n.now().UTC(),
	}

	fields := map[string]interface{}{
		"notificationId": rec.ID,
		"eventId":        rec.EventID,
		"severity":       string(rec.Severity),
		"channel":        channel,
	}
	if err != nil {
		stdErr := apperrors.NewNotificationSendFailedError(channel, err)
		rec.Status = StatusFailed
		rec.Error = stdErr.Details
		fields["error"] = err.Error()
		n.logger.Error("alert notification failed", fields)
	} else {
		n.logger.Info("alert notification sent", fields)
	}

	metrics.NotificationsSent.WithLabelValues(channel, rec.Status).Inc()
	return rec
}

// FormatSMS renders the one-line SMS body.
func FormatSMS(alert events.AlertRaised) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALERT [%s]: %s from %s", strings.ToUpper(string(alert.Severity)), alert.Event.Type, alert.Event.Source)
	if alert.Event.Subject != "" {
		fmt.Fprintf(&b, " (%s)", alert.Event.Subject)
	}
	return b.String()
}

func FormatEmail(alert events.AlertRaised) (subject, body string) {
	subject = fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Event.Type)

	var b strings.Builder
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Event: %s (%s)\n", alert.Event.Type, alert.Event.ID)
	fmt.Fprintf(&b, "Source: %s\n", alert.Event.Source)
	if alert.Event.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", alert.Event.Subject)
	}
	switch {
	case alert.RuleID != "":
		fmt.Fprintf(&b, "Rule: %s\n", alert.RuleID)
	case alert.Pattern != "":
		fmt.Fprintf(&b, "Pattern: %s\n", alert.Pattern)
	}
	if alert.RuleError != "" {
		fmt.Fprintf(&b, "Rule error: %s\n", alert.RuleError)
	}
	fmt.Fprintf(&b, "Raised at: %s\n", alert.At.Format(time.RFC3339))
	return subject, b.String()
}
