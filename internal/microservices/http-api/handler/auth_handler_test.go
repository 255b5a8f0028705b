package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meetrix/internal/microservices/http-api/dto"
	"meetrix/internal/microservices/http-api/models"
	"meetrix/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthService struct{ mock.Mock }

func (m *MockAuthService) Register(username, password, email string) (*models.User, error) {
	args := m.Called(username, password, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockAuthService) Login(username, password, email string) (string, string, *models.User, error) {
	args := m.Called(username, password, email)
	user, _ := args.Get(2).(*models.User)
	return args.String(0), args.String(1), user, args.Error(3)
}

func (m *MockAuthService) RefreshAccessToken(refreshToken string) (string, string, error) {
	args := m.Called(refreshToken)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockAuthService) ValidateToken(tokenString string) (*service.Claims, error) {
	args := m.Called(tokenString)
	claims, _ := args.Get(0).(*service.Claims)
	return claims, args.Error(1)
}

func (m *MockAuthService) RevokeToken(refreshToken string) error {
	return m.Called(refreshToken).Error(0)
}

// authRouter mounts the auth routes the way the api server does
func authRouter(svc service.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewAuthHandler(svc, 10*time.Minute).RegisterRoutes(r.Group("/auth"))
	return r
}

// postJSON sends body as JSON; a string body is sent verbatim
func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if s, ok := body.(string); ok {
		raw = []byte(s)
	} else {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_Register(t *testing.T) {
	valid := dto.RegisterRequest{Username: "grace", Password: "hopper-1906", Email: "grace@meetrix.dev"}

	tests := []struct {
		name       string
		body       any
		serviceErr error
		wantStatus int
	}{
		{name: "created", body: valid, wantStatus: http.StatusCreated},
		{name: "username taken", body: valid, serviceErr: service.ErrNameInUse, wantStatus: http.StatusConflict},
		{name: "email taken", body: valid, serviceErr: service.ErrEmailInUse, wantStatus: http.StatusConflict},
		{name: "store failure", body: valid, serviceErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
		{name: "short password", body: dto.RegisterRequest{Username: "grace", Password: "short", Email: "grace@meetrix.dev"}, wantStatus: http.StatusBadRequest},
		{name: "bad email", body: dto.RegisterRequest{Username: "grace", Password: "hopper-1906", Email: "grace"}, wantStatus: http.StatusBadRequest},
		{name: "not json", body: "{", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAuthService)
			if req, ok := tt.body.(dto.RegisterRequest); ok && tt.wantStatus != http.StatusBadRequest {
				var user *models.User
				if tt.serviceErr == nil {
					user = &models.User{ID: "u-grace", Username: req.Username, Email: req.Email}
				}
				svc.On("Register", req.Username, req.Password, req.Email).Return(user, tt.serviceErr)
			}

			w := postJSON(t, authRouter(svc), "/auth/register", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			svc.AssertExpectations(t)
			if tt.wantStatus == http.StatusCreated {
				var resp dto.RegisterResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, dto.RegisterResponse{UserID: "u-grace", Username: "grace", Email: "grace@meetrix.dev"}, resp)
			}
			if tt.wantStatus == http.StatusConflict {
				// both conflicts read the same so accounts cannot be enumerated
				assert.JSONEq(t, `{"error":"Account creation failed"}`, w.Body.String())
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	grace := &models.User{ID: "u-grace", Username: "grace", Role: models.RoleOrganizer}

	tests := []struct {
		name       string
		body       any
		expect     func(m *MockAuthService)
		wantStatus int
	}{
		{
			name: "by username",
			body: dto.LoginRequest{Username: "grace", Password: "hopper-1906"},
			expect: func(m *MockAuthService) {
				m.On("Login", "grace", "hopper-1906", "").Return("jwt", "opaque", grace, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "by email",
			body: dto.LoginRequest{Email: "grace@meetrix.dev", Password: "hopper-1906"},
			expect: func(m *MockAuthService) {
				m.On("Login", "", "hopper-1906", "grace@meetrix.dev").Return("jwt", "opaque", grace, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "bad credentials",
			body: dto.LoginRequest{Username: "grace", Password: "nope"},
			expect: func(m *MockAuthService) {
				m.On("Login", "grace", "nope", "").Return("", "", nil, service.ErrInvalidCredentials)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "deactivated",
			body: dto.LoginRequest{Username: "grace", Password: "hopper-1906"},
			expect: func(m *MockAuthService) {
				m.On("Login", "grace", "hopper-1906", "").Return("", "", nil, service.ErrAccountDisabled)
			},
			wantStatus: http.StatusForbidden,
		},
		{name: "no identifier", body: dto.LoginRequest{Password: "hopper-1906"}, wantStatus: http.StatusBadRequest},
		{name: "no password", body: dto.LoginRequest{Username: "grace"}, wantStatus: http.StatusBadRequest},
		{name: "not json", body: "login please", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAuthService)
			if tt.expect != nil {
				tt.expect(svc)
			}

			w := postJSON(t, authRouter(svc), "/auth/login", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			svc.AssertExpectations(t)
			if tt.expect == nil {
				svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
			}
			if tt.wantStatus == http.StatusOK {
				var resp dto.AuthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, dto.AuthResponse{
					AccessToken:  "jwt",
					RefreshToken: "opaque",
					TokenType:    "Bearer",
					UserID:       "u-grace",
					Username:     "grace",
					Role:         models.RoleOrganizer,
					ExpiresIn:    600,
				}, resp)
			}
		})
	}
}

func TestAuthHandler_Refresh(t *testing.T) {
	t.Run("rotated pair", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("RefreshAccessToken", "opaque-1").Return("jwt-2", "opaque-2", nil)

		w := postJSON(t, authRouter(svc), "/auth/refresh", dto.RefreshTokenRequest{RefreshToken: "opaque-1"})

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.RefreshResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, dto.RefreshResponse{AccessToken: "jwt-2", RefreshToken: "opaque-2", TokenType: "Bearer", ExpiresIn: 600}, resp)
	})

	for _, serviceErr := range []error{service.ErrInvalidToken, service.ErrExpiredToken, service.ErrAccountDisabled} {
		t.Run(serviceErr.Error(), func(t *testing.T) {
			svc := new(MockAuthService)
			svc.On("RefreshAccessToken", "opaque-1").Return("", "", serviceErr)

			w := postJSON(t, authRouter(svc), "/auth/refresh", dto.RefreshTokenRequest{RefreshToken: "opaque-1"})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	t.Run("missing token", func(t *testing.T) {
		w := postJSON(t, authRouter(new(MockAuthService)), "/auth/refresh", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Revoke(t *testing.T) {
	// the answer never reveals whether the token existed
	for _, serviceErr := range []error{nil, errors.New("db down")} {
		svc := new(MockAuthService)
		svc.On("RevokeToken", "opaque-1").Return(serviceErr)

		w := postJSON(t, authRouter(svc), "/auth/revoke", dto.RevokeTokenRequest{RefreshToken: "opaque-1"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"Refresh token revoked successfully"}`, w.Body.String())
		svc.AssertExpectations(t)
	}

	w := postJSON(t, authRouter(new(MockAuthService)), "/auth/revoke", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
