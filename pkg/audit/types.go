package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeLogin       EventType = "sso.login"
	EventTypeLoginFailed EventType = "sso.login_failed"
	EventTypeLogout      EventType = "sso.logout"

	// Session events
	EventTypeSessionRefresh EventType = "sso.session_refresh"
	EventTypeSessionExpired EventType = "sso.session_expired"

	// Provider configuration events
	EventTypeProviderCreate  EventType = "sso.provider_create"
	EventTypeProviderUpdate  EventType = "sso.provider_update"
	EventTypeProviderEnable  EventType = "sso.provider_enable"
	EventTypeProviderDisable EventType = "sso.provider_disable"
	EventTypeProviderDelete  EventType = "sso.provider_delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is a single audit record. Details must never contain credentials or
// token material.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Status     EventStatus       `json:"status"`
	ProviderID string            `json:"provider_id,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// Recorder accepts audit events. Implementations must be safe for concurrent
// use and must not block authentication on slow sinks longer than a write.
type Recorder interface {
	Record(event *Event)
}

// NopRecorder discards all events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(*Event) {}
