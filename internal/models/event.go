// internal/models/event.go
package models

import "time"

// CloudEventsSpecVersion is the only envelope version accepted by ingestion.
const CloudEventsSpecVersion = "1.0"

// Event is a CloudEvents 1.0 envelope. Events are immutable once received.
type Event struct {
	SpecVersion     string                 `json:"specversion"`
	ID              string                 `json:"id"`
	Source          string                 `json:"source"`
	Type            string                 `json:"type"`
	Subject         string                 `json:"subject,omitempty"`
	Time            *time.Time             `json:"time,omitempty"`
	DataContentType string                 `json:"datacontenttype,omitempty"`
	Data            map[string]interface{} `json:"data,omitempty"`
}

// Key identifies an event for dedup: ids are only unique per source.
func (e Event) Key() string {
	return e.Source + "/" + e.ID
}
