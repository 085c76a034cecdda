// Package gateway is the typed client for the REST collaborator. Only the
// endpoints the session coordinator depends on are modelled here; generic
// CRUD screens talk to the backend through their own client.
package gateway

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"huddle-client/internal/domain"
	"huddle-client/pkg/config"
	"huddle-client/pkg/constants"
	apperrors "huddle-client/pkg/errors"
	"huddle-client/pkg/metrics"
)

// Client calls the REST gateway on behalf of one authenticated session
type Client struct {
	http *resty.Client
}

// New creates a gateway client bound to a session token
func New(cfg *config.GatewayConfig, sessionToken string) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(sessionToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: http}
}

// errorBody is the gateway's error envelope
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateCallInput contains call creation data. ConversationID is nil for
// a direct call outside any conversation; the field is then absent from
// the request body.
type CreateCallInput struct {
	ReceiverID     uuid.UUID       `json:"receiver_id"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	CallType       domain.CallType `json:"call_type"`
}

// endCallInput carries the locally derived duration to the end endpoint
type endCallInput struct {
	DurationSeconds int `json:"duration_seconds"`
}

// CreateCall persists a new call record and returns it
func (c *Client) CreateCall(ctx context.Context, input *CreateCallInput) (*domain.CallRecord, error) {
	record := &domain.CallRecord{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(input).
		SetResult(record).
		SetError(&errorBody{}).
		Post("/calls")
	if err := c.check("create-call", resp, err); err != nil {
		return nil, err
	}
	return record, nil
}

// AcceptCall marks an incoming call as answered
func (c *Client) AcceptCall(ctx context.Context, callID uuid.UUID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Post(fmt.Sprintf("/calls/%s/accept", callID))
	return c.check("accept-call", resp, err)
}

// RejectCall declines an incoming call
func (c *Client) RejectCall(ctx context.Context, callID uuid.UUID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Post(fmt.Sprintf("/calls/%s/reject", callID))
	return c.check("reject-call", resp, err)
}

// EndCall posts the locally computed duration to the end endpoint
func (c *Client) EndCall(ctx context.Context, callID uuid.UUID, durationSeconds int) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&endCallInput{DurationSeconds: durationSeconds}).
		SetError(&errorBody{}).
		Post(fmt.Sprintf("/calls/%s/end", callID))
	return c.check("end-call", resp, err)
}

// ListCalls retrieves the call history page for the session user
func (c *Client) ListCalls(ctx context.Context, limit, offset int) ([]domain.CallRecord, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}

	var records []domain.CallRecord
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetQueryParam("offset", strconv.Itoa(offset)).
		SetResult(&records).
		SetError(&errorBody{}).
		Get("/calls")
	if err := c.check("list-calls", resp, err); err != nil {
		return nil, err
	}
	return records, nil
}

// ListConversations retrieves a page of conversation summaries
func (c *Client) ListConversations(ctx context.Context, includeArchived bool) ([]domain.ConversationSummary, error) {
	var summaries []domain.ConversationSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("include_archived", strconv.FormatBool(includeArchived)).
		SetResult(&summaries).
		SetError(&errorBody{}).
		Get("/conversations")
	if err := c.check("list-conversations", resp, err); err != nil {
		return nil, err
	}
	return summaries, nil
}

// MarkConversationRead updates last_read_at for the session user
func (c *Client) MarkConversationRead(ctx context.Context, conversationID uuid.UUID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Post(fmt.Sprintf("/conversations/%s/read", conversationID))
	return c.check("mark-read", resp, err)
}

// MarkConversationUnread clears last_read_at for the session user
func (c *Client) MarkConversationUnread(ctx context.Context, conversationID uuid.UUID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Post(fmt.Sprintf("/conversations/%s/unread", conversationID))
	return c.check("mark-unread", resp, err)
}

// ArchiveConversation hides a conversation from the default list
func (c *Client) ArchiveConversation(ctx context.Context, conversationID uuid.UUID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Post(fmt.Sprintf("/conversations/%s/archive", conversationID))
	return c.check("archive", resp, err)
}

// UnarchiveConversation restores an archived conversation
func (c *Client) UnarchiveConversation(ctx context.Context, conversationID uuid.UUID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Post(fmt.Sprintf("/conversations/%s/unarchive", conversationID))
	return c.check("unarchive", resp, err)
}

// check maps transport and HTTP errors into the application taxonomy
func (c *Client) check(endpoint string, resp *resty.Response, err error) error {
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return apperrors.Wrap(apperrors.ErrCodeGateway, fmt.Sprintf("%s request failed", endpoint), err)
	}

	metrics.GatewayRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()

	if resp.IsSuccess() {
		return nil
	}

	message := fmt.Sprintf("%s returned %s", endpoint, resp.Status())
	if body, ok := resp.Error().(*errorBody); ok && body.Message != "" {
		message = body.Message
	}

	switch resp.StatusCode() {
	case 401:
		return apperrors.UnauthorizedError(message)
	case 404:
		return apperrors.NotFoundError(endpoint)
	case 409:
		return apperrors.CallConflictError(message)
	default:
		return apperrors.GatewayError(resp.StatusCode(), message)
	}
}
