package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle-client/internal/conn"
	"huddle-client/internal/domain"
	"huddle-client/pkg/config"
)

var upgrader = websocket.Upgrader{}

func testToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id":  userID.String(),
		"username": "me",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func testConfig(gatewayURL, socketURL string) *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{BaseURL: gatewayURL, Timeout: 2 * time.Second},
		Socket: config.SocketConfig{
			URL:            socketURL,
			ReconnectDelay: 50 * time.Millisecond,
			SendBufferSize: 8,
			PingInterval:   time.Minute,
		},
		Call:   config.CallConfig{RingTimeout: time.Minute},
		Typing: config.TypingConfig{TTL: 5 * time.Second, SweepInterval: time.Second},
		Unread: config.UnreadConfig{PollInterval: 8 * time.Second},
	}
}

func writeEvent(t *testing.T, c *websocket.Conn, eventType domain.EventType, payload any) {
	t.Helper()
	event, err := domain.NewEvent(eventType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

// TestSessionWiring drives the full object graph against fake backends:
// channel events land in the right components and teardown is clean
func TestSessionWiring(t *testing.T) {
	selfID := uuid.New()
	otherID := uuid.New()
	convID := uuid.New()

	// REST side: one already-read conversation in the snapshot
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/conversations" {
			now := time.Now()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]domain.ConversationSummary{
				{
					ConversationID: convID,
					LastReadAt:     &now,
					LastMessage:    &domain.LastMessage{Content: "old", CreatedAt: now.Add(-time.Hour)},
				},
			})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rest.Close)

	// Channel side: sends a typing marker on connect, then answers the
	// client's first outbound frame with a new-message event
	var mu sync.Mutex
	var outbound []domain.Event
	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		writeEvent(t, c, domain.EventTypingStart, &domain.TypingPayload{
			ConversationID: convID,
			UserID:         otherID,
			Username:       "ada",
		})

		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			var event domain.Event
			if json.Unmarshal(data, &event) != nil {
				continue
			}
			mu.Lock()
			first := len(outbound) == 0
			outbound = append(outbound, event)
			mu.Unlock()

			if first {
				writeEvent(t, c, domain.EventNewMessage, &domain.NewMessagePayload{
					ConversationID: convID,
					MessageID:      uuid.New(),
					SenderID:       otherID,
					Content:        "hello",
					CreatedAt:      time.Now(),
				})
			}
		}
	}))
	t.Cleanup(ws.Close)

	cfg := testConfig(rest.URL, "ws"+strings.TrimPrefix(ws.URL, "http"))
	sess, err := New(cfg, testToken(t, selfID), nil)
	require.NoError(t, err)
	require.Equal(t, selfID, sess.UserID())

	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	// Initial snapshot: the conversation is read
	require.Eventually(t, func() bool {
		return sess.Conn.State() == conn.StateConnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, sess.Unread.Unread(convID))

	// The pushed typing marker is visible
	require.Eventually(t, func() bool {
		return len(sess.Typing.TypingUsers(convID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ada", sess.Typing.TypingUsers(convID)[0].Username)

	// Outbound typing carries the local identity
	require.NoError(t, sess.SendTyping(convID))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outbound) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	sent := outbound[0]
	mu.Unlock()
	assert.Equal(t, domain.EventTypingStart, sent.Type)
	var sentPayload domain.TypingPayload
	require.NoError(t, json.Unmarshal(sent.Payload, &sentPayload))
	assert.Equal(t, selfID, sentPayload.UserID)

	// The answering new-message clears ada's marker and flips the flag
	require.Eventually(t, func() bool {
		return len(sess.Typing.TypingUsers(convID)) == 0 && sess.Unread.Unread(convID)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sess.Unread.Badge())

	sess.Close()
	assert.Equal(t, conn.StateDisconnected, sess.Conn.State())
	assert.Nil(t, sess.Calls.Current())
}

// TestNew_RejectsBadToken tests that construction fails without identity
func TestNew_RejectsBadToken(t *testing.T) {
	cfg := testConfig("http://localhost:1", "ws://localhost:1")

	_, err := New(cfg, "not-a-token", nil)
	assert.Error(t, err)
}

// TestSelfMessageDoesNotFlagUnread tests that the local user's own
// message never flips the unread flag
func TestSelfMessageDoesNotFlagUnread(t *testing.T) {
	selfID := uuid.New()
	convID := uuid.New()

	ws := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		writeEvent(t, c, domain.EventNewMessage, &domain.NewMessagePayload{
			ConversationID: convID,
			MessageID:      uuid.New(),
			SenderID:       selfID,
			Content:        "mine",
			CreatedAt:      time.Now(),
		})
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ws.Close)

	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	t.Cleanup(rest.Close)

	cfg := testConfig(rest.URL, "ws"+strings.TrimPrefix(ws.URL, "http"))
	sess, err := New(cfg, testToken(t, selfID), nil)
	require.NoError(t, err)
	require.NoError(t, sess.Start(context.Background()))
	defer sess.Close()

	require.Eventually(t, func() bool {
		return sess.Conn.State() == conn.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// Give the event time to arrive; the flag must stay down
	time.Sleep(100 * time.Millisecond)
	assert.False(t, sess.Unread.Unread(convID))
	assert.Zero(t, sess.Unread.Badge())
}
