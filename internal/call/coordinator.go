// Package call tracks at most one call attempt at a time through an
// explicit state machine. Every public method and event handler checks
// the current state first and drops illegal transitions, so a race
// between a local action and a just-arrived remote event can never
// produce two simultaneous call sessions.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"huddle-client/internal/domain"
	"huddle-client/internal/gateway"
	"huddle-client/pkg/config"
	"huddle-client/pkg/constants"
	apperrors "huddle-client/pkg/errors"
	"huddle-client/pkg/metrics"
)

// Gateway is the slice of the REST collaborator the coordinator consumes
type Gateway interface {
	CreateCall(ctx context.Context, input *gateway.CreateCallInput) (*domain.CallRecord, error)
	AcceptCall(ctx context.Context, callID uuid.UUID) error
	RejectCall(ctx context.Context, callID uuid.UUID) error
	EndCall(ctx context.Context, callID uuid.UUID, durationSeconds int) error
}

// Notifier delivers user-facing notices (toast/alert layer)
type Notifier interface {
	Notify(message string)
}

// Alerter runs the repeating ring alert (haptics/vibration) while an
// incoming call is ringing. Stop must be safe to call at any time.
type Alerter interface {
	Start()
	Stop()
}

// Coordinator owns the single call session slot. The slot is mutated
// only through the guarded methods below.
type Coordinator struct {
	gw          Gateway
	notifier    Notifier
	alerter     Alerter
	selfID      uuid.UUID
	ringTimeout time.Duration
	log         *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	session   *domain.CallSession
	seq       uint64 // bumped on every slot change; stale timers and in-flight requests check it
	ringTimer *time.Timer
}

// NewCoordinator creates a call coordinator for one authenticated session
func NewCoordinator(gw Gateway, cfg *config.CallConfig, selfID uuid.UUID, notifier Notifier, alerter Alerter, log *zap.Logger) *Coordinator {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if alerter == nil {
		alerter = noopAlerter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		gw:          gw,
		notifier:    notifier,
		alerter:     alerter,
		selfID:      selfID,
		ringTimeout: cfg.RingTimeout,
		log:         log,
		now:         time.Now,
	}
}

// Current returns a copy of the session slot, or nil when idle
func (c *Coordinator) Current() *domain.CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Initiate starts an outgoing call. Legal only from idle; from any other
// state the call is dropped without error or network traffic.
func (c *Coordinator) Initiate(ctx context.Context, receiverID uuid.UUID, callType domain.CallType, conversationID uuid.UUID) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		metrics.CallTransitionsDroppedTotal.WithLabelValues("initiate").Inc()
		c.log.Warn("Initiate ignored, call already in progress")
		return nil
	}

	seq := c.newSlotLocked(&domain.CallSession{
		ConversationID: conversationID,
		CallerID:       c.selfID,
		ReceiverID:     receiverID,
		CallType:       callType,
		Status:         domain.CallStatusInitiating,
		StartedAt:      c.now(),
	})
	c.mu.Unlock()

	input := &gateway.CreateCallInput{
		ReceiverID: receiverID,
		CallType:   callType,
	}
	if conversationID != uuid.Nil {
		input.ConversationID = &conversationID
	}
	record, err := c.gw.CreateCall(ctx, input)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq || c.session == nil || c.session.Status != domain.CallStatusInitiating {
		// The slot moved on while the request was in flight; whatever
		// won the race already decided the outcome
		return nil
	}
	if err != nil {
		// No phantom transition on failure: back to idle
		c.clearSlotLocked()
		return apperrors.CallActionError("initiate", err)
	}

	c.session.CallID = record.CallID
	c.setStatusLocked(domain.CallStatusRingingOutgoing)
	c.armRingTimerLocked(seq)
	return nil
}

// HandleRing processes an inbound ring event. Accepted only when idle;
// when a call is already pending or active the caller gets a best-effort
// busy rejection and the event is dropped.
func (c *Coordinator) HandleRing(payload *domain.CallRingPayload) {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		metrics.CallTransitionsDroppedTotal.WithLabelValues("ring").Inc()
		c.log.Info("Busy, auto-rejecting inbound call",
			zap.String("call_id", payload.CallID.String()))
		go func(id uuid.UUID) {
			if err := c.gw.RejectCall(context.Background(), id); err != nil {
				c.log.Warn("Busy rejection failed", zap.Error(err))
			}
		}(payload.CallID)
		return
	}

	seq := c.newSlotLocked(&domain.CallSession{
		CallID:         payload.CallID,
		ConversationID: payload.ConversationID,
		CallerID:       payload.CallerID,
		ReceiverID:     c.selfID,
		CallType:       payload.CallType,
		Status:         domain.CallStatusRingingIncoming,
		StartedAt:      c.now(),
	})
	c.alerter.Start()
	c.armRingTimerLocked(seq)
	c.mu.Unlock()

	c.log.Info("Incoming call",
		zap.String("call_id", payload.CallID.String()),
		zap.String("caller", payload.CallerName),
		zap.String("call_type", string(payload.CallType)))
}

// Answer accepts an incoming ringing call. From any other state it is a
// silent no-op and performs no network call.
func (c *Coordinator) Answer(ctx context.Context, callID uuid.UUID) error {
	c.mu.Lock()
	if c.session == nil || c.session.Status != domain.CallStatusRingingIncoming || c.session.CallID != callID {
		c.mu.Unlock()
		metrics.CallTransitionsDroppedTotal.WithLabelValues("answer").Inc()
		return nil
	}
	seq := c.seq
	c.mu.Unlock()

	err := c.gw.AcceptCall(ctx, callID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq || c.session == nil || c.session.Status != domain.CallStatusRingingIncoming {
		// Ring timeout or a remote hangup fired while the accept was in
		// flight; that outcome stands
		return nil
	}
	if err != nil {
		return apperrors.CallActionError("answer", err)
	}

	answeredAt := c.now()
	c.session.AnsweredAt = &answeredAt
	c.disarmRingTimerLocked()
	c.setStatusLocked(domain.CallStatusActive)
	return nil
}

// Reject declines an incoming ringing call
func (c *Coordinator) Reject(ctx context.Context, callID uuid.UUID) error {
	c.mu.Lock()
	if c.session == nil || c.session.Status != domain.CallStatusRingingIncoming || c.session.CallID != callID {
		c.mu.Unlock()
		metrics.CallTransitionsDroppedTotal.WithLabelValues("reject").Inc()
		return nil
	}
	seq := c.seq
	c.mu.Unlock()

	err := c.gw.RejectCall(ctx, callID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq != seq || c.session == nil || c.session.Status != domain.CallStatusRingingIncoming {
		return nil
	}
	if err != nil {
		return apperrors.CallActionError("reject", err)
	}

	c.finishLocked(domain.CallStatusRejected)
	return nil
}

// Cancel abandons an outgoing call that has not been answered yet. The
// end report is best-effort; local state always resolves to idle.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil ||
		(c.session.Status != domain.CallStatusInitiating && c.session.Status != domain.CallStatusRingingOutgoing) {
		c.mu.Unlock()
		metrics.CallTransitionsDroppedTotal.WithLabelValues("cancel").Inc()
		return nil
	}
	callID := c.session.CallID
	c.finishLocked(domain.CallStatusCancelled)
	c.mu.Unlock()

	if callID != uuid.Nil {
		if err := c.gw.EndCall(ctx, callID, 0); err != nil {
			c.log.Warn("Cancel report failed", zap.Error(err))
		}
	}
	return nil
}

// End hangs up from any non-terminal state. Duration is derived locally,
// the end report is best-effort, and the slot unconditionally clears to
// idle so the call UI can never hang on a failed network call.
func (c *Coordinator) End(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		metrics.CallTransitionsDroppedTotal.WithLabelValues("end").Inc()
		return nil
	}
	callID := c.session.CallID
	duration := c.session.DurationSeconds(c.now())
	c.finishLocked(domain.CallStatusEnded)
	c.mu.Unlock()

	if callID != uuid.Nil {
		if err := c.gw.EndCall(ctx, callID, duration); err != nil {
			c.log.Warn("End call report failed", zap.Error(err))
		}
	}
	return nil
}

// HandleAnswered processes the remote acceptance of an outgoing call
func (c *Coordinator) HandleAnswered(payload *domain.CallAnsweredPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.Status != domain.CallStatusRingingOutgoing || c.session.CallID != payload.CallID {
		metrics.CallTransitionsDroppedTotal.WithLabelValues("answered_event").Inc()
		return
	}
	answeredAt := c.now()
	c.session.AnsweredAt = &answeredAt
	c.disarmRingTimerLocked()
	c.setStatusLocked(domain.CallStatusActive)
}

// HandleEnded processes a remote hangup or rejection. The channel
// delivers at least once; a duplicate arriving after the slot has
// cleared is a no-op.
func (c *Coordinator) HandleEnded(payload *domain.CallEndedPayload) {
	c.mu.Lock()
	if c.session == nil || c.session.CallID != payload.CallID {
		c.mu.Unlock()
		metrics.CallTransitionsDroppedTotal.WithLabelValues("ended_event").Inc()
		return
	}

	status := domain.CallStatusEnded
	var notice string
	if payload.Reason == "rejected" || payload.Reason == "busy" {
		status = domain.CallStatusRejected
		notice = "Call declined"
	}
	c.finishLocked(status)
	c.mu.Unlock()

	if notice != "" {
		c.notifier.Notify(notice)
	}
}

// Close tears the coordinator down on logout: timers cancelled, alert
// stopped, slot cleared, no network traffic.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return
	}
	c.finishLocked(domain.CallStatusEnded)
}

// onRingTimeout marks a ringing call as missed. The seq guard makes the
// expiry a no-op when the slot changed after the timer was armed, so an
// answer racing the timer can never double-apply.
func (c *Coordinator) onRingTimeout(seq uint64) {
	c.mu.Lock()
	if c.seq != seq || c.session == nil || !c.session.Status.Ringing() {
		c.mu.Unlock()
		return
	}
	outgoing := c.session.Status == domain.CallStatusRingingOutgoing
	c.finishLocked(domain.CallStatusMissed)
	c.mu.Unlock()

	// Caller-side notice only; the receiver's missed call surfaces
	// through the call history
	if outgoing {
		c.notifier.Notify(constants.MissedCallNotice)
	}
}

// newSlotLocked installs a fresh session. Caller holds mu.
func (c *Coordinator) newSlotLocked(s *domain.CallSession) uint64 {
	c.seq++
	c.session = s
	metrics.CallTransitionsTotal.WithLabelValues("idle", string(s.Status)).Inc()
	metrics.CallActive.Set(1)
	c.log.Debug("Call slot opened", zap.String("status", string(s.Status)))
	return c.seq
}

// setStatusLocked applies one transition on the live session. Leaving
// the incoming-ringing state stops the ring alert. Caller holds mu.
func (c *Coordinator) setStatusLocked(to domain.CallStatus) {
	from := c.session.Status
	c.session.Status = to
	if from == domain.CallStatusRingingIncoming && to != domain.CallStatusRingingIncoming {
		c.alerter.Stop()
	}
	metrics.CallTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	c.log.Info("Call transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

// finishLocked applies a terminal transition and clears the slot.
// Caller holds mu.
func (c *Coordinator) finishLocked(status domain.CallStatus) {
	c.disarmRingTimerLocked()
	endedAt := c.now()
	c.session.EndedAt = &endedAt
	c.setStatusLocked(status)
	c.clearSlotLocked()
}

// clearSlotLocked resolves the slot to idle. Caller holds mu.
func (c *Coordinator) clearSlotLocked() {
	c.seq++
	c.session = nil
	c.alerter.Stop()
	metrics.CallActive.Set(0)
}

// armRingTimerLocked starts the ring timeout for the current slot.
// Caller holds mu.
func (c *Coordinator) armRingTimerLocked(seq uint64) {
	c.disarmRingTimerLocked()
	c.ringTimer = time.AfterFunc(c.ringTimeout, func() {
		c.onRingTimeout(seq)
	})
}

// disarmRingTimerLocked cancels a pending ring timeout. Caller holds mu.
func (c *Coordinator) disarmRingTimerLocked() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(string) {}

type noopAlerter struct{}

func (noopAlerter) Start() {}
func (noopAlerter) Stop()  {}
