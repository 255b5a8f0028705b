package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"meetrix/internal/microservices/http-api/middleware"
	"meetrix/internal/microservices/http-api/models"
	"meetrix/internal/microservices/http-api/service"
)

// ErrUnauthorized covers every refused handshake: missing, malformed, expired
// or badly signed tokens and unknown or deactivated users look the same.
var ErrUnauthorized = errors.New("unauthorized")

type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

type UserLookup interface {
	FindActiveByID(ctx context.Context, id string) (*models.User, error)
}

// Identity is the principal a connection is bound to
type Identity struct {
	UserID   string
	Username string
	Role     string
}

type Authenticator struct {
	tokens TokenValidator
	users  UserLookup
	logger *slog.Logger
}

func NewAuthenticator(tokens TokenValidator, users UserLookup, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

// credentialFrom reads ?token= first, then the bearer header
func credentialFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return middleware.BearerToken(r.Header.Get("Authorization"))
}

// Authenticate resolves the handshake request to an active user or fails with ErrUnauthorized
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	token := credentialFrom(r)
	if token == "" {
		a.refuse(r, "missing_token")
		return nil, ErrUnauthorized
	}

	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		a.refuse(r, "invalid_token")
		return nil, ErrUnauthorized
	}

	// identity comes from the subject; a token whose user_id says otherwise is refused
	if claims.Subject == "" || (claims.UserID != "" && claims.UserID != claims.Subject) {
		a.refuse(r, "subject_mismatch")
		return nil, ErrUnauthorized
	}

	user, err := a.users.FindActiveByID(r.Context(), claims.Subject)
	if err != nil || user == nil {
		a.refuse(r, "unknown_user")
		return nil, ErrUnauthorized
	}

	a.logger.Info("ws_auth_accepted",
		"user_id", user.ID,
		"remote_addr", r.RemoteAddr,
	)
	return &Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (a *Authenticator) refuse(r *http.Request, reason string) {
	a.logger.Warn("ws_auth_refused",
		"reason", reason,
		"remote_addr", r.RemoteAddr,
	)
}
