package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType represents type of call
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// CallStatus is the tagged state of a call session
type CallStatus string

const (
	CallStatusInitiating      CallStatus = "initiating"
	CallStatusRingingOutgoing CallStatus = "ringing_outgoing"
	CallStatusRingingIncoming CallStatus = "ringing_incoming"
	CallStatusActive          CallStatus = "active"
	CallStatusEnded           CallStatus = "ended"
	CallStatusMissed          CallStatus = "missed"
	CallStatusRejected        CallStatus = "rejected"
	CallStatusCancelled       CallStatus = "cancelled"
)

// Terminal reports whether the status ends the call lifecycle
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusEnded, CallStatusMissed, CallStatusRejected, CallStatusCancelled:
		return true
	}
	return false
}

// Ringing reports whether the status is one of the two ringing states
func (s CallStatus) Ringing() bool {
	return s == CallStatusRingingOutgoing || s == CallStatusRingingIncoming
}

// CallSession tracks one attempted or established call between two users.
// At most one non-terminal session exists per client at any time.
type CallSession struct {
	CallID         uuid.UUID  `json:"call_id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	CallerID       uuid.UUID  `json:"caller_id"`
	ReceiverID     uuid.UUID  `json:"receiver_id"`
	CallType       CallType   `json:"call_type"`
	Status         CallStatus `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// DurationSeconds derives the call duration from started_at
func (c *CallSession) DurationSeconds(now time.Time) int {
	if c.StartedAt.IsZero() {
		return 0
	}
	d := int(now.Sub(c.StartedAt).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// CallRecord is the persisted call entity returned by the REST gateway
type CallRecord struct {
	CallID         uuid.UUID  `json:"call_id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	CallerID       uuid.UUID  `json:"caller_id"`
	ReceiverID     uuid.UUID  `json:"receiver_id"`
	CallType       CallType   `json:"call_type"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Duration       int        `json:"duration,omitempty"` // in seconds
}
