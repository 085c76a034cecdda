// Package unread derives the per-conversation and global "has unseen
// activity" flags from conversation summaries. The badge is a count of
// conversations with unseen activity, never a sum of unread messages.
package unread

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"huddle-client/internal/domain"
	"huddle-client/internal/scheduler"
	"huddle-client/pkg/config"
	"huddle-client/pkg/metrics"
)

// Gateway is the slice of the REST collaborator the aggregator consumes
type Gateway interface {
	ListConversations(ctx context.Context, includeArchived bool) ([]domain.ConversationSummary, error)
	MarkConversationRead(ctx context.Context, conversationID uuid.UUID) error
	MarkConversationUnread(ctx context.Context, conversationID uuid.UUID) error
	ArchiveConversation(ctx context.Context, conversationID uuid.UUID) error
	UnarchiveConversation(ctx context.Context, conversationID uuid.UUID) error
}

// Aggregator holds the derived unread state. It polls the gateway on a
// fixed cadence, re-syncs immediately after every mutating action, and
// merges pushed new-message deltas between polls.
type Aggregator struct {
	gw              Gateway
	pollInterval    time.Duration
	includeArchived bool
	log             *zap.Logger

	mu       sync.RWMutex
	flags    map[uuid.UUID]bool
	onChange func(badge int)

	pollHandle scheduler.Handle
	pollOn     bool
}

// NewAggregator creates an unread aggregator
func NewAggregator(gw Gateway, cfg *config.UnreadConfig, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		gw:              gw,
		pollInterval:    cfg.PollInterval,
		includeArchived: cfg.IncludeArchived,
		log:             log,
		flags:           make(map[uuid.UUID]bool),
	}
}

// SetOnChange registers the badge listener, fired whenever the badge
// count changes
func (a *Aggregator) SetOnChange(fn func(badge int)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

// Refresh pulls conversation summaries from the gateway and recomputes
// the unread state. Failures are tolerated; the state self-heals on the
// next poll.
func (a *Aggregator) Refresh(ctx context.Context) error {
	summaries, err := a.gw.ListConversations(ctx, a.includeArchived)
	if err != nil {
		a.log.Warn("Conversation refresh failed, keeping last known state", zap.Error(err))
		return err
	}
	a.apply(summaries, "poll")
	return nil
}

// SyncFromConversations recomputes the unread state from a list a screen
// already fetched, avoiding a duplicate round trip
func (a *Aggregator) SyncFromConversations(summaries []domain.ConversationSummary) {
	a.apply(summaries, "external")
}

// apply replaces the derived state with a fresh computation over the
// given snapshot
func (a *Aggregator) apply(summaries []domain.ConversationSummary, trigger string) {
	flags := make(map[uuid.UUID]bool, len(summaries))
	for i := range summaries {
		flags[summaries[i].ConversationID] = summaries[i].Unread()
	}

	a.mu.Lock()
	a.flags = flags
	badge := a.badgeLocked()
	fn := a.onChange
	a.mu.Unlock()

	metrics.UnreadRefreshTotal.WithLabelValues(trigger).Inc()
	metrics.UnreadConversations.Set(float64(badge))
	if fn != nil {
		fn(badge)
	}
}

// NoteMessage merges a pushed new-message delta: the conversation has
// unseen activity until the next snapshot says otherwise. Messages sent
// by the local user do not flip the flag; the sender has seen them.
func (a *Aggregator) NoteMessage(conversationID uuid.UUID, fromSelf bool) {
	if fromSelf {
		return
	}
	a.mu.Lock()
	already := a.flags[conversationID]
	a.flags[conversationID] = true
	badge := a.badgeLocked()
	fn := a.onChange
	a.mu.Unlock()

	if !already {
		metrics.UnreadConversations.Set(float64(badge))
		if fn != nil {
			fn(badge)
		}
	}
}

// Unread reports the flag for one conversation
func (a *Aggregator) Unread(conversationID uuid.UUID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.flags[conversationID]
}

// Badge returns the count of conversations with unseen activity
func (a *Aggregator) Badge() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.badgeLocked()
}

// badgeLocked counts flagged conversations. Caller holds mu.
func (a *Aggregator) badgeLocked() int {
	count := 0
	for _, unread := range a.flags {
		if unread {
			count++
		}
	}
	return count
}

// MarkRead marks a conversation read and re-syncs immediately
func (a *Aggregator) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	if err := a.gw.MarkConversationRead(ctx, conversationID); err != nil {
		return err
	}
	a.resyncAfterMutation(ctx)
	return nil
}

// MarkUnread marks a conversation unread and re-syncs immediately
func (a *Aggregator) MarkUnread(ctx context.Context, conversationID uuid.UUID) error {
	if err := a.gw.MarkConversationUnread(ctx, conversationID); err != nil {
		return err
	}
	a.resyncAfterMutation(ctx)
	return nil
}

// Archive archives a conversation and re-syncs immediately
func (a *Aggregator) Archive(ctx context.Context, conversationID uuid.UUID) error {
	if err := a.gw.ArchiveConversation(ctx, conversationID); err != nil {
		return err
	}
	a.resyncAfterMutation(ctx)
	return nil
}

// Unarchive restores a conversation and re-syncs immediately
func (a *Aggregator) Unarchive(ctx context.Context, conversationID uuid.UUID) error {
	if err := a.gw.UnarchiveConversation(ctx, conversationID); err != nil {
		return err
	}
	a.resyncAfterMutation(ctx)
	return nil
}

// resyncAfterMutation refreshes right after a mutating action so the
// badge reflects it without waiting for the next poll
func (a *Aggregator) resyncAfterMutation(ctx context.Context) {
	summaries, err := a.gw.ListConversations(ctx, a.includeArchived)
	if err != nil {
		// Momentarily stale; the poll will catch up
		a.log.Warn("Post-mutation refresh failed", zap.Error(err))
		return
	}
	a.apply(summaries, "mutation")
}

// Start registers the poll with the shared tick source
func (a *Aggregator) Start(sched *scheduler.Scheduler) error {
	handle, err := sched.Every(a.pollInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.pollInterval)
		defer cancel()
		a.Refresh(ctx)
	})
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.pollHandle = handle
	a.pollOn = true
	a.mu.Unlock()
	return nil
}

// Stop cancels the poll and clears the derived state
func (a *Aggregator) Stop(sched *scheduler.Scheduler) {
	a.mu.Lock()
	if a.pollOn {
		sched.Cancel(a.pollHandle)
		a.pollOn = false
	}
	a.flags = make(map[uuid.UUID]bool)
	a.mu.Unlock()
}
