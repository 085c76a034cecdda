package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle-client/internal/domain"
	"huddle-client/pkg/config"
	apperrors "huddle-client/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(&config.GatewayConfig{
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, "test-token")
}

// TestCreateCall tests the happy path and the auth header
func TestCreateCall(t *testing.T) {
	callID := uuid.New()
	receiverID := uuid.New()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calls", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var input CreateCallInput
		require.NoError(t, json.Unmarshal(body, &input))
		assert.Equal(t, receiverID, input.ReceiverID)
		assert.Equal(t, domain.CallTypeVideo, input.CallType)

		// No conversation was given; the field must be absent, not a
		// zero uuid
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(body, &raw))
		assert.NotContains(t, raw, "conversation_id")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&domain.CallRecord{
			CallID:   callID,
			Status:   "ringing",
			CallType: domain.CallTypeVideo,
		})
	}))

	record, err := client.CreateCall(context.Background(), &CreateCallInput{
		ReceiverID: receiverID,
		CallType:   domain.CallTypeVideo,
	})

	require.NoError(t, err)
	assert.Equal(t, callID, record.CallID)
	assert.Equal(t, "ringing", record.Status)
}

// TestCallActions tests the accept, reject, and end endpoints
func TestCallActions(t *testing.T) {
	callID := uuid.New()
	var paths []string
	var endBody endCallInput

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.ContentLength > 0 {
			json.NewDecoder(r.Body).Decode(&endBody)
		}
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.Background()
	require.NoError(t, client.AcceptCall(ctx, callID))
	require.NoError(t, client.RejectCall(ctx, callID))
	require.NoError(t, client.EndCall(ctx, callID, 42))

	assert.Equal(t, []string{
		"/calls/" + callID.String() + "/accept",
		"/calls/" + callID.String() + "/reject",
		"/calls/" + callID.String() + "/end",
	}, paths)
	assert.Equal(t, 42, endBody.DurationSeconds)
}

// TestListCalls tests pagination clamping on the history endpoint
func TestListCalls(t *testing.T) {
	var queries []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]domain.CallRecord{{CallID: uuid.New()}})
	}))

	ctx := context.Background()
	records, err := client.ListCalls(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = client.ListCalls(ctx, 500, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"20", "100"}, queries)
}

// TestListConversations tests summary decoding and the archived filter
func TestListConversations(t *testing.T) {
	convID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_archived"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]domain.ConversationSummary{
			{
				ConversationID: convID,
				LastMessage:    &domain.LastMessage{Content: "hi", CreatedAt: now},
			},
		})
	}))

	summaries, err := client.ListConversations(context.Background(), true)

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, convID, summaries[0].ConversationID)
	assert.True(t, summaries[0].Unread())
}

// TestConversationMutations tests the read-state and archive endpoints
func TestConversationMutations(t *testing.T) {
	convID := uuid.New()
	var paths []string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	ctx := context.Background()
	require.NoError(t, client.MarkConversationRead(ctx, convID))
	require.NoError(t, client.MarkConversationUnread(ctx, convID))
	require.NoError(t, client.ArchiveConversation(ctx, convID))
	require.NoError(t, client.UnarchiveConversation(ctx, convID))

	prefix := "/conversations/" + convID.String()
	assert.Equal(t, []string{
		prefix + "/read",
		prefix + "/unread",
		prefix + "/archive",
		prefix + "/unarchive",
	}, paths)
}

// TestErrorMapping tests that HTTP failures land in the right error codes
func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode apperrors.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"token expired"}`, apperrors.ErrCodeUnauthorized},
		{"not found", http.StatusNotFound, `{"message":"no such call"}`, apperrors.ErrCodeNotFound},
		{"conflict", http.StatusConflict, `{"message":"already in a call"}`, apperrors.ErrCodeCallConflict},
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, apperrors.ErrCodeGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			err := client.AcceptCall(context.Background(), uuid.New())

			require.Error(t, err)
			appErr := apperrors.GetAppError(err)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

// TestTransportError tests that an unreachable gateway maps to a gateway
// error instead of leaking the transport error
func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := New(&config.GatewayConfig{
		BaseURL: server.URL,
		Timeout: 500 * time.Millisecond,
	}, "test-token")

	_, err := client.ListConversations(context.Background(), false)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGateway, apperrors.GetAppError(err).Code)
}
