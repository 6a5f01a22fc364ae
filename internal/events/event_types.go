package events

import (
	"time"

	"github.com/spec-kit/school-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoginSucceeded       EventType = "login_succeeded"
	EventLoginRejected        EventType = "login_rejected"
	EventSessionSuperseded    EventType = "session_superseded"
	EventLoggedOut            EventType = "logged_out"
	EventAccountStatusChanged EventType = "account_status_changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID *int64      `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
	Email  string      `json:"email,omitempty"`
}

// Event represents an auth lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LoginRejectedPayload payload.
type LoginRejectedPayload struct {
	Reason string `json:"reason"`
}

// AccountStatusChangedPayload payload.
type AccountStatusChangedPayload struct {
	TargetUserID int64                `json:"target_user_id"`
	NewStatus    domain.AccountStatus `json:"new_status"`
	SessionEnded bool                 `json:"session_ended"`
}
