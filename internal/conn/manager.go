// Package conn owns the single persistent duplex channel of an
// authenticated session and its reconnect policy. Every failure on the
// channel, during dial or after, funnels into one reconnect path and is
// never surfaced to callers.
package conn

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"huddle-client/internal/domain"
	"huddle-client/pkg/config"
	"huddle-client/pkg/constants"
	apperrors "huddle-client/pkg/errors"
	"huddle-client/pkg/metrics"
)

// State is the connection lifecycle state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Handler consumes one dispatched inbound event. Handlers for a given
// connection run sequentially on the read loop, so ordering within the
// channel is preserved.
type Handler func(event *domain.Event)

// Manager owns the channel, the pending-send buffer, and the reconnect
// loop. Sends issued while not connected are buffered (bounded FIFO,
// oldest dropped on overflow) and flushed on the next successful connect.
type Manager struct {
	url            string
	token          string
	reconnectDelay time.Duration
	sendBufferSize int
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	log            *zap.Logger

	mu              sync.Mutex
	state           State
	conn            *websocket.Conn
	done            chan struct{}
	handlers        map[domain.EventType][]Handler
	pending         [][]byte
	shouldReconnect bool
	reconnectTimer  *time.Timer
	lastErr         error
}

// NewManager creates a connection manager for one session token
func NewManager(cfg *config.SocketConfig, sessionToken string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		url:            cfg.URL,
		token:          sessionToken,
		reconnectDelay: cfg.ReconnectDelay,
		sendBufferSize: cfg.SendBufferSize,
		pingInterval:   cfg.PingInterval,
		dialer:         websocket.DefaultDialer,
		log:            log,
		state:          StateDisconnected,
		handlers:       make(map[domain.EventType][]Handler),
	}
}

// Subscribe registers a dispatch target for one event type
func (m *Manager) Subscribe(eventType domain.EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Connect opens the channel. Calling it while already connecting or
// connected is a no-op; only one dial is ever in flight.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.shouldReconnect = true
	m.setStateGauge()
	m.mu.Unlock()

	go m.dial()
}

// dial performs one connect attempt and installs the connection on success
func (m *Manager) dial() {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.token)

	c, _, err := m.dialer.Dial(m.url, header)

	m.mu.Lock()
	if !m.shouldReconnect {
		// Teardown raced the dial; drop whatever we got
		if c != nil {
			c.Close()
		}
		m.state = StateDisconnected
		m.setStateGauge()
		m.mu.Unlock()
		return
	}

	if err != nil {
		metrics.ConnectAttemptsTotal.WithLabelValues("failure").Inc()
		m.log.Warn("Channel dial failed", zap.Error(err))
		m.scheduleReconnectLocked(err)
		m.mu.Unlock()
		return
	}

	metrics.ConnectAttemptsTotal.WithLabelValues("success").Inc()
	m.conn = c
	m.done = make(chan struct{})
	m.state = StateConnected
	m.lastErr = nil
	m.setStateGauge()
	done := m.done
	pending := m.pending
	m.pending = nil

	// Flush sends buffered while the channel was down. The flush stays
	// under mu: every writer to the connection holds it, and the socket
	// permits only one writer at a time.
	var flushErr error
	for _, data := range pending {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if flushErr = c.WriteMessage(websocket.TextMessage, data); flushErr != nil {
			break
		}
	}
	m.mu.Unlock()

	if flushErr != nil {
		m.handleClose(c, flushErr)
		return
	}

	m.log.Info("Channel connected", zap.String("url", m.url))

	c.SetReadDeadline(time.Now().Add(2 * m.pingInterval))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(2 * m.pingInterval))
		return nil
	})

	go m.readLoop(c)
	go m.pingLoop(c, done)
}

const writeTimeout = constants.WebSocketWriteTimeout

// readLoop reads and dispatches events until the connection fails
func (m *Manager) readLoop(c *websocket.Conn) {
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			m.handleClose(c, err)
			return
		}

		var event domain.Event
		if err := json.Unmarshal(message, &event); err != nil {
			metrics.EventsDiscardedTotal.WithLabelValues("unmarshal").Inc()
			m.log.Warn("Invalid event envelope", zap.Error(err))
			continue
		}

		m.dispatch(&event)
	}
}

// dispatch fans one event out to its subscribers, inline on the read loop
func (m *Manager) dispatch(event *domain.Event) {
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers[event.Type]))
	copy(handlers, m.handlers[event.Type])
	m.mu.Unlock()

	if len(handlers) == 0 {
		metrics.EventsDiscardedTotal.WithLabelValues("no_handler").Inc()
		m.log.Debug("No handler for event", zap.String("type", string(event.Type)))
		return
	}

	metrics.EventsDispatchedTotal.WithLabelValues(string(event.Type)).Inc()
	for _, handler := range handlers {
		handler(event)
	}
}

// pingLoop keeps the channel alive; a failed ping tears the connection
// down through the same path as a read failure
func (m *Manager) pingLoop(c *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.conn != c {
				m.mu.Unlock()
				return
			}
			c.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.WriteMessage(websocket.PingMessage, nil)
			m.mu.Unlock()
			if err != nil {
				m.handleClose(c, err)
				return
			}
		}
	}
}

// handleClose funnels every connection failure into the reconnect decision
func (m *Manager) handleClose(c *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != c {
		// A pump from a previous connection generation; ignore
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	c.Close()

	if !m.shouldReconnect {
		m.state = StateDisconnected
		m.setStateGauge()
		m.mu.Unlock()
		return
	}

	m.log.Warn("Channel closed unexpectedly", zap.Error(err))
	m.scheduleReconnectLocked(apperrors.ChannelClosedError(err))
	m.mu.Unlock()
}

// scheduleReconnectLocked arms the fixed-delay reconnect timer. The timer
// slot doubles as the in-flight guard: a second failure while an attempt
// is already pending never schedules a duplicate. Caller holds mu.
func (m *Manager) scheduleReconnectLocked(err error) {
	m.state = StateReconnecting
	m.lastErr = err
	m.setStateGauge()

	if m.reconnectTimer != nil {
		return
	}

	metrics.ReconnectsScheduledTotal.Inc()
	m.log.Info("Reconnect scheduled", zap.Duration("delay", m.reconnectDelay))
	m.reconnectTimer = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		if !m.shouldReconnect || m.state == StateConnected || m.state == StateConnecting {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		m.setStateGauge()
		m.mu.Unlock()
		m.dial()
	})
}

// Send transmits an event, or buffers it while the channel is down.
// Transmission failures are a connection concern and never returned;
// the only possible error is an unencodable event.
func (m *Manager) Send(event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return apperrors.InvalidInputError("event is not encodable")
	}

	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.bufferLocked(data)
		m.mu.Unlock()
		return nil
	}
	c := m.conn
	c.SetWriteDeadline(time.Now().Add(writeTimeout))
	werr := c.WriteMessage(websocket.TextMessage, data)
	m.mu.Unlock()

	if werr != nil {
		m.handleClose(c, werr)
	}
	return nil
}

// bufferLocked appends to the bounded pending queue. Caller holds mu.
func (m *Manager) bufferLocked(data []byte) {
	if m.sendBufferSize > 0 && len(m.pending) >= m.sendBufferSize {
		m.pending = m.pending[1:]
		metrics.PendingSendsDroppedTotal.Inc()
		m.log.Warn("Pending send buffer full, dropping oldest")
	}
	m.pending = append(m.pending, data)
}

// Teardown stops the subsystem for good: no reconnect will ever follow.
// Used on logout and unmount; this is the only clean way to stop.
func (m *Manager) Teardown() {
	m.mu.Lock()
	m.shouldReconnect = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	c := m.conn
	m.conn = nil
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.state = StateDisconnected
	m.pending = nil
	m.setStateGauge()
	m.mu.Unlock()

	if c != nil {
		c.SetWriteDeadline(time.Now().Add(time.Second))
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "teardown"))
		c.Close()
	}
	m.log.Info("Channel torn down")
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent connection error, if any
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// setStateGauge records the state in the metrics gauge. Caller holds mu.
func (m *Manager) setStateGauge() {
	var v float64
	switch m.state {
	case StateConnecting:
		v = 1
	case StateConnected:
		v = 2
	case StateReconnecting:
		v = 3
	}
	metrics.ConnectionState.Set(v)
}
