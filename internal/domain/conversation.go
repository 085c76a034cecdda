package domain

import (
	"time"

	"github.com/google/uuid"
)

// LastMessage is the most recent message preview of a conversation
type LastMessage struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationSummary is the per-conversation read-state snapshot the
// unread aggregator consumes
type ConversationSummary struct {
	ConversationID uuid.UUID    `json:"conversation_id"`
	Name           *string      `json:"name,omitempty"`
	LastReadAt     *time.Time   `json:"last_read_at,omitempty"`
	LastMessage    *LastMessage `json:"last_message,omitempty"`
	LastMessageAt  *time.Time   `json:"last_message_at,omitempty"`
	Archived       bool         `json:"archived"`
}

// LatestActivity returns the timestamp of the newest known activity,
// preferring last_message.created_at over last_message_at
func (c *ConversationSummary) LatestActivity() *time.Time {
	if c.LastMessage != nil {
		return &c.LastMessage.CreatedAt
	}
	return c.LastMessageAt
}

// Unread derives the "has unseen activity" flag: the latest activity is
// newer than last_read_at, or last_read_at is absent while activity exists
func (c *ConversationSummary) Unread() bool {
	latest := c.LatestActivity()
	if latest == nil {
		return false
	}
	if c.LastReadAt == nil {
		return true
	}
	return latest.After(*c.LastReadAt)
}
