package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// HTTP upgrade handler to WebSocket connections

type Handler struct {
	hub      *Hub
	auth     *Authenticator
	actions  ActionHandler
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, auth *Authenticator, actions ActionHandler, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:     hub,
		auth:    auth,
		actions: actions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// originChecker allows non-browser clients (no Origin), same-host pages and the configured origins
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[strings.TrimRight(strings.ToLower(origin), "/")]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// ServeWS authenticates the handshake and only then upgrades it
func (h *Handler) ServeWS(c *gin.Context) {
	identity, err := h.auth.Authenticate(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.logger.Warn("ws_upgrade_failed",
			"user_id", identity.UserID,
			"error", err.Error(),
		)
		return
	}

	client := NewClient(identity, conn, h.hub, h.actions, h.logger)
	h.hub.Register(client)
	client.Start()
}
