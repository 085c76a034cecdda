package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle-client/pkg/config"
)

func newTestTracker(selfID uuid.UUID) *Tracker {
	cfg := &config.TypingConfig{
		TTL:           5 * time.Second,
		SweepInterval: time.Second,
	}
	return NewTracker(cfg, selfID, nil)
}

// changeRecorder collects conversation IDs from onChange callbacks
type changeRecorder struct {
	mu    sync.Mutex
	convs []uuid.UUID
}

func (r *changeRecorder) record(conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs = append(r.convs, conversationID)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

// TestAddTypingUser_Replaces tests that rapid repeat events collapse to
// one entry carrying the later timestamp
func TestAddTypingUser_Replaces(t *testing.T) {
	tracker := newTestTracker(uuid.New())
	convID := uuid.New()
	userID := uuid.New()

	base := time.Now()
	tracker.now = func() time.Time { return base }
	tracker.AddTypingUser(convID, userID, "ada")

	tracker.now = func() time.Time { return base.Add(2 * time.Second) }
	tracker.AddTypingUser(convID, userID, "ada")

	entries := tracker.TypingUsers(convID)
	require.Len(t, entries, 1)
	assert.Equal(t, base.Add(2*time.Second), entries[0].At)

	// The refreshed entry survives past the original expiry
	tracker.now = func() time.Time { return base.Add(6 * time.Second) }
	assert.Len(t, tracker.TypingUsers(convID), 1)

	tracker.now = func() time.Time { return base.Add(8 * time.Second) }
	assert.Empty(t, tracker.TypingUsers(convID))
}

// TestTypingUsers_TTLFilter tests the read-time expiry boundary
func TestTypingUsers_TTLFilter(t *testing.T) {
	tracker := newTestTracker(uuid.New())
	convID := uuid.New()

	base := time.Now()
	tracker.now = func() time.Time { return base }
	tracker.AddTypingUser(convID, uuid.New(), "ada")

	tracker.now = func() time.Time { return base.Add(4999 * time.Millisecond) }
	assert.Len(t, tracker.TypingUsers(convID), 1)

	// The boundary instant itself counts as expired
	tracker.now = func() time.Time { return base.Add(5 * time.Second) }
	assert.Empty(t, tracker.TypingUsers(convID))

	// Stale entries are invisible even if the sweep has not run yet
	tracker.now = func() time.Time { return base.Add(5001 * time.Millisecond) }
	assert.Empty(t, tracker.TypingUsers(convID))
}

// TestTypingUsers_ExcludesSelf tests that the local user's own marker is
// never shown back
func TestTypingUsers_ExcludesSelf(t *testing.T) {
	selfID := uuid.New()
	tracker := newTestTracker(selfID)
	convID := uuid.New()
	otherID := uuid.New()

	tracker.AddTypingUser(convID, selfID, "me")
	tracker.AddTypingUser(convID, otherID, "ada")

	entries := tracker.TypingUsers(convID)
	require.Len(t, entries, 1)
	assert.Equal(t, otherID, entries[0].UserID)
}

// TestRemoveTypingUser tests explicit removal, e.g. on message delivery
func TestRemoveTypingUser(t *testing.T) {
	tracker := newTestTracker(uuid.New())
	convID := uuid.New()
	userID := uuid.New()

	recorder := &changeRecorder{}
	tracker.SetOnChange(recorder.record)

	tracker.AddTypingUser(convID, userID, "ada")
	require.Equal(t, 1, recorder.count())

	tracker.RemoveTypingUser(convID, userID)
	assert.Empty(t, tracker.TypingUsers(convID))
	assert.Equal(t, 2, recorder.count())

	// Removing an absent entry does not notify
	tracker.RemoveTypingUser(convID, userID)
	assert.Equal(t, 2, recorder.count())
}

// TestClearTyping tests dropping a whole conversation
func TestClearTyping(t *testing.T) {
	tracker := newTestTracker(uuid.New())
	convID := uuid.New()

	tracker.AddTypingUser(convID, uuid.New(), "ada")
	tracker.AddTypingUser(convID, uuid.New(), "grace")

	tracker.ClearTyping(convID)
	assert.Empty(t, tracker.TypingUsers(convID))
}

// TestSweep tests that the purge counts expired entries and notifies
// only conversations that actually changed
func TestSweep(t *testing.T) {
	tracker := newTestTracker(uuid.New())
	staleConv := uuid.New()
	freshConv := uuid.New()

	base := time.Now()
	tracker.now = func() time.Time { return base }
	tracker.AddTypingUser(staleConv, uuid.New(), "ada")
	tracker.AddTypingUser(staleConv, uuid.New(), "grace")

	tracker.now = func() time.Time { return base.Add(4 * time.Second) }
	tracker.AddTypingUser(freshConv, uuid.New(), "linus")

	recorder := &changeRecorder{}
	tracker.SetOnChange(recorder.record)

	// Sweep at the stale entries' exact expiry instant
	tracker.now = func() time.Time { return base.Add(5 * time.Second) }
	expired := tracker.Sweep()

	assert.Equal(t, 2, expired)
	require.Equal(t, 1, recorder.count())
	assert.Equal(t, staleConv, recorder.convs[0])
	assert.Len(t, tracker.TypingUsers(freshConv), 1)

	// Nothing left to expire, no notifications
	assert.Zero(t, tracker.Sweep())
	assert.Equal(t, 1, recorder.count())
}

// TestActiveCount tests the cross-conversation entry count
func TestActiveCount(t *testing.T) {
	selfID := uuid.New()
	tracker := newTestTracker(selfID)

	base := time.Now()
	tracker.now = func() time.Time { return base }
	tracker.AddTypingUser(uuid.New(), uuid.New(), "ada")
	tracker.AddTypingUser(uuid.New(), uuid.New(), "grace")
	tracker.AddTypingUser(uuid.New(), selfID, "me")

	assert.Equal(t, 2, tracker.ActiveCount())

	tracker.now = func() time.Time { return base.Add(5 * time.Second) }
	assert.Zero(t, tracker.ActiveCount())
}

// TestStop clears all entries
func TestStop_ClearsEntries(t *testing.T) {
	tracker := newTestTracker(uuid.New())
	convID := uuid.New()
	tracker.AddTypingUser(convID, uuid.New(), "ada")

	tracker.Stop(nil)
	assert.Empty(t, tracker.TypingUsers(convID))
}
