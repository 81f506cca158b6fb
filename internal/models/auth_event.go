package models

import "time"

const (
	EventUserRegistered    = "user_registered"
	EventUserSignedIn      = "user_signed_in"
	EventSessionRefreshed  = "session_refreshed"
	EventSessionTerminated = "session_terminated"
)

// AuthEvent is published to Kafka by the auth service and persisted into the
// auth_events table by the audit consumer.
type AuthEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}
