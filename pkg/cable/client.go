package cable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	wire "meetrix/pkg/models"

	"github.com/gorilla/websocket"
)

const (
	MaxReconnectAttempts = 5
	BaseReconnectDelay   = time.Second
	DefaultDialTimeout   = 10 * time.Second
)

// Lifecycle events delivered to listeners alongside the channel events
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
)

var (
	ErrNoCredential       = errors.New("cable: no credential available")
	ErrNotConnected       = errors.New("cable: not connected")
	ErrReconnectExhausted = errors.New("cable: reconnect attempts exhausted")
	errDisconnectedInDial = errors.New("cable: disconnected while dialing")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Event is what a Handler receives. Payload is the raw message body for
// channel events; Err is set on EventError.
type Event struct {
	Type    string
	Payload json.RawMessage
	Err     error
}

// Handler is registered by pointer so the same func can be removed again
type Handler func(Event)

// Option configures a Client
type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.scheduler = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithReconnect(enabled bool) Option {
	return func(c *Client) { c.reconnect = enabled }
}

// WithDialTimeout bounds every dial, the first one included. Zero or less keeps the default.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// Client keeps one subscription to NotificationsChannel alive and fans
// incoming events out to listeners.
type Client struct {
	endpoint    string
	tokens      TokenSource
	dialer      Dialer
	scheduler   Scheduler
	logger      *slog.Logger
	reconnect   bool
	dialTimeout time.Duration

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64 // bumped per connection so a stale read loop cannot act
	session   uint64 // bumped by Disconnect so a dial begun before it cannot install its conn
	attempts  int
	timer     Timer
	stopped   bool
	listeners map[string][]*Handler

	writeMu sync.Mutex
}

// New builds a client for the cable endpoint, e.g. ws://host/api/v1/cable
func New(endpoint string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		tokens:      tokens,
		dialer:      GorillaDialer{},
		scheduler:   realScheduler{},
		logger:      slog.Default(),
		reconnect:   true,
		dialTimeout: DefaultDialTimeout,
		listeners:   make(map[string][]*Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials and subscribes. It does nothing while a connection is open
// or being opened, and never schedules a retry when the dial fails.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.stopped = false
	c.state = StateConnecting
	session := c.session
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	if err := c.dial(ctx, session); err != nil {
		c.mu.Lock()
		if c.state == StateConnecting && c.session == session {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context, session uint64) error {
	token, err := c.tokens()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	if token == "" {
		return ErrNoCredential
	}

	target, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid cable url: %w", err)
	}
	query := target.Query()
	query.Set("token", token)
	target.RawQuery = query.Encode()

	conn, err := c.dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stopped || c.session != session {
		c.mu.Unlock()
		_ = conn.Close()
		return errDisconnectedInDial
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.mu.Unlock()

	subscribe := wire.Command{Command: wire.CommandSubscribe, Identifier: wire.NotificationsIdentifier()}
	if err := c.writeCommand(conn, subscribe); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.conn = nil
			c.gen++
			c.state = StateConnecting
		}
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	go c.readLoop(conn, gen)

	c.logger.Info("cable_connected", "endpoint", c.endpoint)
	c.emit(Event{Type: EventConnected})
	return nil
}

func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.logger.Warn("cable_connection_lost", "error", cause.Error(), "attempts", c.attempts)

	var events []Event
	if c.stopped || !c.reconnect {
		c.state = StateDisconnected
		events = []Event{{Type: EventDisconnected}}
	} else {
		events = c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	_ = conn.Close()
	for _, ev := range events {
		c.emit(ev)
	}
}

// scheduleReconnectLocked arms the next backoff timer, or gives up once
// MaxReconnectAttempts have been spent. Returns the events to emit.
func (c *Client) scheduleReconnectLocked() []Event {
	if c.attempts >= MaxReconnectAttempts {
		c.state = StateDisconnected
		c.logger.Error("cable_reconnect_exhausted", "attempts", c.attempts)
		return []Event{
			{Type: EventError, Err: ErrReconnectExhausted},
			{Type: EventDisconnected},
		}
	}

	delay := BaseReconnectDelay << c.attempts
	c.attempts++
	c.state = StateReconnecting
	c.timer = c.scheduler.AfterFunc(delay, c.reconnectNow)
	c.logger.Info("cable_reconnect_scheduled", "attempt", c.attempts, "delay", delay.String())
	return nil
}

func (c *Client) reconnectNow() {
	c.mu.Lock()
	if c.stopped || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateConnecting
	session := c.session
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	err := c.dial(ctx, session)
	cancel()
	if err == nil {
		return
	}

	// a failed reconnect counts as another close
	c.mu.Lock()
	if c.stopped || c.session != session || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("cable_reconnect_failed", "attempt", c.attempts, "error", err.Error())
	events := c.scheduleReconnectLocked()
	c.mu.Unlock()
	for _, ev := range events {
		c.emit(ev)
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame wire.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Debug("cable_frame_dropped", "reason", "invalid_json")
		return
	}

	switch frame.Type {
	case "":
	case wire.FrameWelcome, wire.FramePing, wire.FrameConfirmSubscription:
		return
	case wire.FrameRejectSubscription:
		c.logger.Warn("cable_subscription_rejected", "identifier", frame.Identifier)
		return
	case wire.FrameDisconnect:
		c.logger.Info("cable_server_disconnect", "reason", frame.Reason)
		return
	default:
		c.logger.Debug("cable_frame_dropped", "reason", "unknown_type", "type", frame.Type)
		return
	}

	if len(frame.Message) == 0 {
		return
	}
	var msg wire.EventMessage
	if err := json.Unmarshal(frame.Message, &msg); err != nil || msg.Type == "" {
		c.logger.Debug("cable_frame_dropped", "reason", "untyped_message")
		return
	}
	c.emit(Event{Type: msg.Type, Payload: frame.Message})
}

// On adds h for event; adding the same pointer twice keeps one registration
func (c *Client) On(event string, h *Handler) {
	if h == nil || *h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.listeners[event] {
		if existing == h {
			return
		}
	}
	c.listeners[event] = append(c.listeners[event], h)
}

func (c *Client) Off(event string, h *Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handlers := c.listeners[event]
	for i, existing := range handlers {
		if existing == h {
			c.listeners[event] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	if len(c.listeners[event]) == 0 {
		delete(c.listeners, event)
	}
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	handlers := append([]*Handler(nil), c.listeners[ev.Type]...)
	c.mu.Unlock()

	for _, h := range handlers {
		c.call(h, ev)
	}
}

func (c *Client) call(h *Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cable_listener_panic", "event", ev.Type, "panic", fmt.Sprint(r))
		}
	}()
	(*h)(ev)
}

// Perform sends an action on the notifications channel without waiting for a reply
func (c *Client) Perform(action string, fields map[string]any) error {
	data := map[string]any{}
	for k, v := range fields {
		data[k] = v
	}
	data["action"] = action
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.writeCommand(conn, wire.Command{
		Command:    wire.CommandMessage,
		Identifier: wire.NotificationsIdentifier(),
		Data:       string(encoded),
	})
}

func (c *Client) MarkAsRead(notificationID int64) error {
	return c.Perform(wire.ActionMarkAsRead, map[string]any{"notification_id": notificationID})
}

func (c *Client) MarkAllAsRead() error {
	return c.Perform(wire.ActionMarkAllAsRead, nil)
}

func (c *Client) writeCommand(conn Conn, cmd wire.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Disconnect stops reconnecting, cancels a pending retry, closes the
// connection and drops every listener. Safe to call more than once.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	c.session++
	c.attempts = 0
	c.state = StateDisconnected
	c.listeners = make(map[string][]*Handler)
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = conn.Close()
		c.logger.Info("cable_disconnected")
	}
}
