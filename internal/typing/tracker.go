// Package typing keeps the ephemeral per-conversation "user is typing"
// markers. Entries expire after a TTL; a background sweep purges them,
// and readers re-apply the same TTL filter so sweep latency can never
// leak a stale indicator.
package typing

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"huddle-client/internal/domain"
	"huddle-client/internal/scheduler"
	"huddle-client/pkg/config"
	"huddle-client/pkg/metrics"
)

// Tracker is the store of typing entries keyed by conversation, one
// entry per (conversation, user) pair
type Tracker struct {
	selfID        uuid.UUID
	ttl           time.Duration
	sweepInterval time.Duration
	log           *zap.Logger
	now           func() time.Time

	mu       sync.RWMutex
	byConv   map[uuid.UUID]map[uuid.UUID]domain.TypingEntry
	onChange func(conversationID uuid.UUID)

	sweepHandle scheduler.Handle
	sweepOn     bool
}

// NewTracker creates a typing tracker. The local user's own entries are
// never visible to readers.
func NewTracker(cfg *config.TypingConfig, selfID uuid.UUID, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		selfID:        selfID,
		ttl:           cfg.TTL,
		sweepInterval: cfg.SweepInterval,
		log:           log,
		now:           time.Now,
		byConv:        make(map[uuid.UUID]map[uuid.UUID]domain.TypingEntry),
	}
}

// SetOnChange registers the snapshot listener. It fires on upserts,
// explicit removals, and sweeps that actually expired something.
func (t *Tracker) SetOnChange(fn func(conversationID uuid.UUID)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// AddTypingUser upserts the entry for (conversation, user) with a fresh
// timestamp; a new event from the same user replaces the old entry
func (t *Tracker) AddTypingUser(conversationID, userID uuid.UUID, username string) {
	t.mu.Lock()
	users := t.byConv[conversationID]
	if users == nil {
		users = make(map[uuid.UUID]domain.TypingEntry)
		t.byConv[conversationID] = users
	}
	users[userID] = domain.TypingEntry{
		ConversationID: conversationID,
		UserID:         userID,
		Username:       username,
		At:             t.now(),
	}
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(conversationID)
	}
}

// RemoveTypingUser drops one entry, e.g. when that user sent a message
func (t *Tracker) RemoveTypingUser(conversationID, userID uuid.UUID) {
	t.mu.Lock()
	users := t.byConv[conversationID]
	_, existed := users[userID]
	if existed {
		delete(users, userID)
		if len(users) == 0 {
			delete(t.byConv, conversationID)
		}
	}
	fn := t.onChange
	t.mu.Unlock()

	if existed && fn != nil {
		fn(conversationID)
	}
}

// ClearTyping drops every entry of a conversation
func (t *Tracker) ClearTyping(conversationID uuid.UUID) {
	t.mu.Lock()
	_, existed := t.byConv[conversationID]
	delete(t.byConv, conversationID)
	fn := t.onChange
	t.mu.Unlock()

	if existed && fn != nil {
		fn(conversationID)
	}
}

// TypingUsers returns the visible entries of a conversation: within the
// TTL and not the local user. The filter runs at read time regardless of
// when the sweep last ran.
func (t *Tracker) TypingUsers(conversationID uuid.UUID) []domain.TypingEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := t.now().Add(-t.ttl)
	var visible []domain.TypingEntry
	for _, entry := range t.byConv[conversationID] {
		if entry.UserID == t.selfID {
			continue
		}
		// Expired at exactly At+TTL
		if !entry.At.After(cutoff) {
			continue
		}
		visible = append(visible, entry)
	}
	return visible
}

// ActiveCount returns the number of visible typing entries across all
// conversations, with the same read-time filter as TypingUsers
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := t.now().Add(-t.ttl)
	count := 0
	for _, users := range t.byConv {
		for _, entry := range users {
			if entry.UserID == t.selfID || !entry.At.After(cutoff) {
				continue
			}
			count++
		}
	}
	return count
}

// Sweep purges expired entries from every conversation and notifies the
// listener only for conversations where something actually expired
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	cutoff := t.now().Add(-t.ttl)
	expired := 0
	var changed []uuid.UUID
	for convID, users := range t.byConv {
		before := len(users)
		for userID, entry := range users {
			if !entry.At.After(cutoff) {
				delete(users, userID)
				expired++
			}
		}
		if len(users) < before {
			changed = append(changed, convID)
		}
		if len(users) == 0 {
			delete(t.byConv, convID)
		}
	}
	fn := t.onChange
	t.mu.Unlock()

	if expired > 0 {
		metrics.TypingEntriesSweptTotal.Add(float64(expired))
		t.log.Debug("Typing entries expired", zap.Int("count", expired))
	}
	if fn != nil {
		for _, convID := range changed {
			fn(convID)
		}
	}
	return expired
}

// Start registers the sweep with the shared tick source
func (t *Tracker) Start(sched *scheduler.Scheduler) error {
	handle, err := sched.Every(t.sweepInterval, func() { t.Sweep() })
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.sweepHandle = handle
	t.sweepOn = true
	t.mu.Unlock()
	return nil
}

// Stop cancels the sweep and clears all entries
func (t *Tracker) Stop(sched *scheduler.Scheduler) {
	t.mu.Lock()
	if t.sweepOn {
		sched.Cancel(t.sweepHandle)
		t.sweepOn = false
	}
	t.byConv = make(map[uuid.UUID]map[uuid.UUID]domain.TypingEntry)
	t.mu.Unlock()
}
