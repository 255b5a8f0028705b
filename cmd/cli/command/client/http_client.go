package client

// http_client.go = REST client for the meetrix CLI: auth endpoints and the notifications API.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meetrix/internal/microservices/http-api/dto"
	wire "meetrix/pkg/models"
)

// ErrUnauthorized is returned when the server rejects the access token
var ErrUnauthorized = errors.New("not authenticated, run `meetrix auth login`")

// APIError carries the status and message of a failed call
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewHTTPClient takes the api root, e.g. http://localhost:8080/api/v1
func NewHTTPClient(apiURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

// CableURL turns the api root into the websocket endpoint
func CableURL(apiURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported api scheme %q", u.Scheme)
	}
	u.Path += "/cable"
	return u.String(), nil
}

func (c *HTTPClient) Register(ctx context.Context, request *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	var result dto.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", request, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Login(ctx context.Context, request *dto.LoginRequest) (*dto.AuthResponse, error) {
	var result dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", request, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) RefreshToken(ctx context.Context, refreshToken string) (*dto.RefreshResponse, error) {
	var result dto.RefreshResponse
	request := dto.RefreshTokenRequest{RefreshToken: refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", request, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) RevokeToken(ctx context.Context, refreshToken string) error {
	request := dto.RevokeTokenRequest{RefreshToken: refreshToken}
	return c.do(ctx, http.MethodPost, "/auth/revoke", request, http.StatusOK, nil)
}

// ListPage fetches one page of the caller's notifications
func (c *HTTPClient) ListPage(ctx context.Context, page, perPage int, unreadOnly bool) (*wire.NotificationList, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}
	if unreadOnly {
		query.Set("unread_only", "true")
	}
	path := "/notifications"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var envelope wire.Envelope[wire.NotificationList]
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// ListNotifications satisfies store.API
func (c *HTTPClient) ListNotifications(ctx context.Context, perPage int) ([]wire.Notification, error) {
	list, err := c.ListPage(ctx, 1, perPage, false)
	if err != nil {
		return nil, err
	}
	return list.Notifications, nil
}

func (c *HTTPClient) UnreadCount(ctx context.Context) (int64, error) {
	var envelope wire.Envelope[dto.UnreadCountResponse]
	if err := c.do(ctx, http.MethodGet, "/notifications/unread_count", nil, http.StatusOK, &envelope); err != nil {
		return 0, err
	}
	return envelope.Data.UnreadCount, nil
}

func (c *HTTPClient) MarkAsRead(ctx context.Context, notificationID int64) error {
	path := fmt.Sprintf("/notifications/%d/read", notificationID)
	return c.do(ctx, http.MethodPatch, path, nil, http.StatusOK, nil)
}

func (c *HTTPClient) MarkAllAsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/notifications/mark_all_read", nil, http.StatusOK, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && c.token != "" {
		return ErrUnauthorized
	}
	if resp.StatusCode != wantStatus {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return &APIError{StatusCode: resp.StatusCode, Message: failure.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
