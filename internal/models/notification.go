// internal/models/notification.go
package models

import "time"

// AlertNotification records one delivery attempt of a surfaced alert.
type AlertNotification struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Severity  Severity  `json:"severity"`
	Channel   string    `json:"channel"` // "sms", "email"
	Status    string    `json:"status"`  // "sent", "failed"
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}
