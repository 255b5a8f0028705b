package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"meetrix/internal/microservices/http-api/dto"
	wire "meetrix/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCableURL(t *testing.T) {
	got, err := CableURL("http://localhost:8080/api/v1/")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/v1/cable", got)

	got, err = CableURL("https://meetrix.example/api/v1")
	require.NoError(t, err)
	assert.Equal(t, "wss://meetrix.example/api/v1/cable", got)

	_, err = CableURL("ftp://nope")
	assert.Error(t, err)
}

func TestHTTPClient_Login(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		var req dto.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(dto.AuthResponse{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900})
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL + "/api/v1")
	resp, err := c.Login(context.Background(), &dto.LoginRequest{Username: "alice", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.AccessToken)

	_, err = c.Login(context.Background(), &dto.LoginRequest{Username: "alice", Password: "wrong"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid credentials", apiErr.Message)
}

func TestHTTPClient_Notifications(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/notifications":
			_ = json.NewEncoder(w).Encode(wire.Envelope[wire.NotificationList]{
				Success: true,
				Data:    wire.NotificationList{Notifications: []wire.Notification{{ID: 4, Title: "t"}}, UnreadCount: 1},
			})
		case "/notifications/unread_count":
			_, _ = w.Write([]byte(`{"success":true,"data":{"unread_count":6}}`))
		case "/notifications/4/read", "/notifications/mark_all_read":
			_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"notification not found"}`))
		}
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL)
	c.SetToken("jwt")
	ctx := context.Background()

	list, err := c.ListNotifications(ctx, 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(4), list[0].ID)

	page, err := c.ListPage(ctx, 2, 10, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.UnreadCount)

	count, err := c.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)

	require.NoError(t, c.MarkAsRead(ctx, 4))
	require.NoError(t, c.MarkAllAsRead(ctx))

	err = c.MarkAsRead(ctx, 5)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"GET /notifications?page=1&per_page=50",
		"GET /notifications?page=2&per_page=10&unread_only=true",
		"GET /notifications/unread_count",
		"PATCH /notifications/4/read",
		"PATCH /notifications/mark_all_read",
		"PATCH /notifications/5/read",
	}, calls)
}

func TestHTTPClient_UnauthorizedWithToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewHTTPClient(server.URL)
	c.SetToken("expired")

	_, err := c.UnreadCount(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTerminalAlert(t *testing.T) {
	var out bytes.Buffer
	url := "/events/9"
	TerminalAlert{Out: &out}.Show(wire.Notification{Title: "Event cancelled", Message: "Sorry", ActionURL: &url})

	assert.Contains(t, out.String(), "Event cancelled")
	assert.Contains(t, out.String(), "/events/9")
}
