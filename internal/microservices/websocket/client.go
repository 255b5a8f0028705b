package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"meetrix/internal/microservices/http-api/models"
	wire "meetrix/pkg/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time write a message to the peer
	PongWait       = 60 * time.Second    // max time to wait for pong from peer => no pong = no connection
	PingPeriod     = (PongWait * 9) / 10 // ping before pong wait expires
	MaxMessageSize = 4096                // maximum command size allowed from peer
	SendBufferSize = 64                  // queued frames per connection before it counts as slow
	ActionTimeout  = 5 * time.Second
)

var (
	errClientClosed  = errors.New("client closed")
	errSendQueueFull = errors.New("send queue full")
)

// ActionHandler executes the actions a client can perform on its stream.
// Results reach the client through the hub, not as replies.
type ActionHandler interface {
	MarkAsRead(ctx context.Context, userID string, notificationID int64) (*models.Notification, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
}

// Client is one live connection bound to one user's stream
type Client struct {
	id       string
	userID   string
	conn     *websocket.Conn
	hub      *Hub
	actions  ActionHandler
	limiter  *rate.Limiter
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	sendMu   sync.Mutex
	send     chan []byte
	closed   bool
	closeOne sync.Once
}

func NewClient(identity *Identity, conn *websocket.Conn, hub *Hub, actions ActionHandler, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:      uuid.NewString(),
		userID:  identity.UserID,
		conn:    conn,
		hub:     hub,
		actions: actions,
		limiter: rate.NewLimiter(rate.Limit(10), 20), // 10 cmds/sec with burst of 20
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, SendBufferSize),
	}
}

// trySend queues a frame without blocking
func (c *Client) trySend(frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendQueueFull
	}
}

// closeSend stops the write pump; safe to call from hub and pumps concurrently
func (c *Client) closeSend() {
	c.closeOne.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()
		c.cancel()
	})
}

func (c *Client) sendFrame(frame wire.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("ws_frame_encode_failed", "client_id", c.id, "error", err.Error())
		return
	}
	if err := c.trySend(data); err != nil && !errors.Is(err, errClientClosed) {
		c.logger.Warn("ws_frame_dropped", "client_id", c.id, "type", frame.Type, "error", err.Error())
	}
}

// Start greets the client and runs both pumps; the client must already be registered
func (c *Client) Start() {
	c.sendFrame(wire.Frame{Type: wire.FrameWelcome})
	go c.writePump()
	go c.readPump()
}

// readPump reads commands until the connection fails, then unregisters
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeSend()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("ws_client_read_error",
					"client_id", c.id,
					"error", err.Error(),
				)
			}
			return
		}

		if !c.limiter.Allow() {
			c.logger.Warn("ws_rate_limit_exceeded",
				"client_id", c.id,
				"user_id", c.userID,
			)
			continue
		}

		var cmd wire.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.logger.Warn("ws_invalid_json_received",
				"client_id", c.id,
				"error", err.Error(),
			)
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd wire.Command) {
	id, err := wire.ParseIdentifier(cmd.Identifier)
	if err != nil || id.Channel != wire.NotificationsChannel {
		if cmd.Command == wire.CommandSubscribe {
			c.sendFrame(wire.Frame{Type: wire.FrameRejectSubscription, Identifier: cmd.Identifier})
		}
		c.logger.Warn("ws_unknown_channel",
			"client_id", c.id,
			"identifier", cmd.Identifier,
		)
		return
	}

	switch cmd.Command {
	case wire.CommandSubscribe:
		c.sendFrame(wire.Frame{Type: wire.FrameConfirmSubscription, Identifier: cmd.Identifier})
	case wire.CommandUnsubscribe:
		// the stream lives as long as the connection; nothing to tear down
	case wire.CommandMessage:
		c.handleAction(cmd.Data)
	default:
		c.logger.Warn("ws_unknown_command",
			"client_id", c.id,
			"command", cmd.Command,
		)
	}
}

func (c *Client) handleAction(data string) {
	var action wire.ActionData
	if err := json.Unmarshal([]byte(data), &action); err != nil {
		c.logger.Warn("ws_invalid_action", "client_id", c.id, "error", err.Error())
		return
	}
	if c.actions == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, ActionTimeout)
	defer cancel()

	switch action.Action {
	case wire.ActionMarkAsRead:
		if _, err := c.actions.MarkAsRead(ctx, c.userID, action.NotificationID); err != nil {
			c.logger.Warn("ws_mark_as_read_failed",
				"user_id", c.userID,
				"notification_id", action.NotificationID,
				"error", err.Error(),
			)
		}
	case wire.ActionMarkAllAsRead:
		if _, err := c.actions.MarkAllAsRead(ctx, c.userID); err != nil {
			c.logger.Warn("ws_mark_all_as_read_failed",
				"user_id", c.userID,
				"error", err.Error(),
			)
		}
	default:
		c.logger.Warn("ws_unknown_action",
			"client_id", c.id,
			"action", action.Action,
		)
	}
}

// writePump is the only writer on the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			ping, _ := json.Marshal(wire.Frame{
				Type:    wire.FramePing,
				Message: json.RawMessage(strconv.FormatInt(time.Now().Unix(), 10)),
			})
			if err := c.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
