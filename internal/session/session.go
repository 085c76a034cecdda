// Package session builds the realtime coordinator object graph for one
// authenticated session. Construction happens at login and Close at
// logout; nothing in the subsystem lives in a package-level singleton,
// so a torn-down session can never leak timers or state into the next.
package session

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"huddle-client/internal/call"
	"huddle-client/internal/conn"
	"huddle-client/internal/domain"
	"huddle-client/internal/gateway"
	"huddle-client/internal/scheduler"
	"huddle-client/internal/typing"
	"huddle-client/internal/unread"
	"huddle-client/pkg/config"
	"huddle-client/pkg/token"

	"github.com/google/uuid"
)

// Session owns every component of the realtime subsystem for one user
type Session struct {
	Gateway *gateway.Client
	Conn    *conn.Manager
	Calls   *call.Coordinator
	Typing  *typing.Tracker
	Unread  *unread.Aggregator

	sched    *scheduler.Scheduler
	info     *token.SessionInfo
	log      *zap.Logger
	username string
}

// Option customizes session construction
type Option func(*options)

type options struct {
	notifier call.Notifier
	alerter  call.Alerter
}

// WithNotifier installs the user-facing notice sink
func WithNotifier(n call.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithAlerter installs the incoming-ring alert (haptics)
func WithAlerter(a call.Alerter) Option {
	return func(o *options) { o.alerter = a }
}

// New constructs the full object graph from a session token. The graph
// is inert until Start is called.
func New(cfg *config.Config, sessionToken string, log *zap.Logger, opts ...Option) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}

	info, err := token.Parse(sessionToken)
	if err != nil {
		return nil, err
	}
	if info.ExpiresWithin(time.Minute) {
		log.Warn("Session token close to expiry",
			zap.Time("expires_at", info.ExpiresAt))
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	gw := gateway.New(&cfg.Gateway, sessionToken)
	sched := scheduler.New(log.With(zap.String("component", "scheduler")))

	s := &Session{
		Gateway:  gw,
		Conn:     conn.NewManager(&cfg.Socket, sessionToken, log.With(zap.String("component", "conn"))),
		Calls:    call.NewCoordinator(gw, &cfg.Call, info.UserID, o.notifier, o.alerter, log.With(zap.String("component", "call"))),
		Typing:   typing.NewTracker(&cfg.Typing, info.UserID, log.With(zap.String("component", "typing"))),
		Unread:   unread.NewAggregator(gw, &cfg.Unread, log.With(zap.String("component", "unread"))),
		sched:    sched,
		info:     info,
		log:      log,
		username: info.Username,
	}

	s.wire()
	return s, nil
}

// wire subscribes the components to the channel's event stream
func (s *Session) wire() {
	s.Conn.Subscribe(domain.EventCallRing, func(event *domain.Event) {
		var payload domain.CallRingPayload
		if !s.decode(event, &payload) {
			return
		}
		s.Calls.HandleRing(&payload)
	})

	s.Conn.Subscribe(domain.EventCallAnswered, func(event *domain.Event) {
		var payload domain.CallAnsweredPayload
		if !s.decode(event, &payload) {
			return
		}
		s.Calls.HandleAnswered(&payload)
	})

	s.Conn.Subscribe(domain.EventCallEnded, func(event *domain.Event) {
		var payload domain.CallEndedPayload
		if !s.decode(event, &payload) {
			return
		}
		s.Calls.HandleEnded(&payload)
	})

	s.Conn.Subscribe(domain.EventTypingStart, func(event *domain.Event) {
		var payload domain.TypingPayload
		if !s.decode(event, &payload) {
			return
		}
		s.Typing.AddTypingUser(payload.ConversationID, payload.UserID, payload.Username)
	})

	s.Conn.Subscribe(domain.EventNewMessage, func(event *domain.Event) {
		var payload domain.NewMessagePayload
		if !s.decode(event, &payload) {
			return
		}
		// A delivered message supersedes its sender's typing marker
		s.Typing.RemoveTypingUser(payload.ConversationID, payload.SenderID)
		s.Unread.NoteMessage(payload.ConversationID, payload.SenderID == s.info.UserID)
	})
}

// decode unpacks an event payload, logging and dropping malformed ones
func (s *Session) decode(event *domain.Event, out any) bool {
	if err := json.Unmarshal(event.Payload, out); err != nil {
		s.log.Warn("Malformed event payload",
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return false
	}
	return true
}

// Start connects the channel, primes the unread state, and begins the
// periodic jobs
func (s *Session) Start(ctx context.Context) error {
	if err := s.Typing.Start(s.sched); err != nil {
		return err
	}
	if err := s.Unread.Start(s.sched); err != nil {
		return err
	}
	s.sched.Start()
	s.Conn.Connect()

	// First snapshot; a failure here is tolerated, the poll self-heals
	if err := s.Unread.Refresh(ctx); err != nil {
		s.log.Warn("Initial unread refresh failed", zap.Error(err))
	}
	return nil
}

// SendTyping announces that the local user is composing in a
// conversation. Buffering while disconnected is fine; a stale marker
// expires on the receiving side anyway.
func (s *Session) SendTyping(conversationID uuid.UUID) error {
	event, err := domain.NewEvent(domain.EventTypingStart, &domain.TypingPayload{
		ConversationID: conversationID,
		UserID:         s.info.UserID,
		Username:       s.username,
	})
	if err != nil {
		return err
	}
	return s.Conn.Send(event)
}

// UserID returns the local user identity extracted from the token
func (s *Session) UserID() uuid.UUID {
	return s.info.UserID
}

// Close tears the whole subsystem down: periodic jobs cancelled, channel
// closed with reconnection disabled, call slot cleared. Idempotent.
func (s *Session) Close() {
	s.Typing.Stop(s.sched)
	s.Unread.Stop(s.sched)
	s.sched.Stop()
	s.Conn.Teardown()
	s.Calls.Close()
	s.log.Info("Session closed")
}
