package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/tourbook/tour-booking-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRegistered      EventType = "registered"
	EventLoginSucceeded  EventType = "login_succeeded"
	EventLoginFailed     EventType = "login_failed"
	EventTokenRefreshed  EventType = "token_refreshed"
	EventRefreshRejected EventType = "refresh_rejected"
	EventLoggedOut       EventType = "logged_out"
)

// SessionEventTypes lists every event the session manager publishes.
var SessionEventTypes = []EventType{
	EventRegistered,
	EventLoginSucceeded,
	EventLoginFailed,
	EventTokenRefreshed,
	EventRefreshRejected,
	EventLoggedOut,
}

// Event is a session lifecycle event. It never carries secrets or token text.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	Role        domain.Role `json:"role"`
	PrincipalID string      `json:"principal_id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload,omitempty"`
}

// NewEvent stamps id and time onto an event.
func NewEvent(eventType EventType, role domain.Role, principalID string, payload interface{}) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Role:        role,
		PrincipalID: principalID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// LoginFailedPayload payload. Reason is one of "invalid_credentials",
// "inactive" or "locked".
type LoginFailedPayload struct {
	Reason string `json:"reason"`
}

// RefreshRejectedPayload payload.
type RefreshRejectedPayload struct {
	Reason string `json:"reason"`
}
