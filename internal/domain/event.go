package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates inbound events on the persistent channel
type EventType string

const (
	EventCallRing     EventType = "call-ring"
	EventCallAnswered EventType = "call-answered"
	EventCallEnded    EventType = "call-ended"
	EventTypingStart  EventType = "typing-start"
	EventNewMessage   EventType = "new-message"
)

// Event is the wire envelope of the persistent channel. Delivery is
// at-least-once; handlers must tolerate duplicates.
type Event struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent wraps a payload value into an envelope
func NewEvent(eventType EventType, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// CallRingPayload announces an inbound call
type CallRingPayload struct {
	CallID         uuid.UUID `json:"call_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	CallerID       uuid.UUID `json:"caller_id"`
	CallerName     string    `json:"caller_name"`
	CallType       CallType  `json:"call_type"`
}

// CallAnsweredPayload signals the remote side accepted the call
type CallAnsweredPayload struct {
	CallID uuid.UUID `json:"call_id"`
}

// CallEndedPayload signals the remote side ended or rejected the call
type CallEndedPayload struct {
	CallID uuid.UUID `json:"call_id"`
	Reason string    `json:"reason,omitempty"` // "ended", "rejected", "busy"
}

// TypingPayload marks a user as composing in a conversation
type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
}

// NewMessagePayload announces a freshly delivered message
type NewMessagePayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// TypingEntry is an ephemeral marker that a user is composing a message.
// One entry exists per (conversation, user) pair; a fresh event replaces
// the previous entry.
type TypingEntry struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Username       string    `json:"username"`
	At             time.Time `json:"at"`
}
