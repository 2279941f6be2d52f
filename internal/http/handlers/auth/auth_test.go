package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/aicheck/internal/http/middlewarectx"
	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Register(ctx context.Context, name, email, password string) (*models.LoginResult, error) {
	args := m.Called(ctx, name, email, password)
	res, _ := args.Get(0).(*models.LoginResult)
	return res, args.Error(1)
}

func (m *ServiceMock) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	args := m.Called(ctx, email, password)
	res, _ := args.Get(0).(*models.LoginResult)
	return res, args.Error(1)
}

func (m *ServiceMock) Logout(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *ServiceMock) SendVerificationEmail(ctx context.Context, userUID string) error {
	return m.Called(ctx, userUID).Error(0)
}

func (m *ServiceMock) VerifyEmail(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

func (m *ServiceMock) CheckVerified(ctx context.Context, userUID string) (bool, error) {
	args := m.Called(ctx, userUID)
	return args.Bool(0), args.Error(1)
}

func (m *ServiceMock) ResetPassword(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *ServiceMock) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	return m.Called(ctx, code, newPassword).Error(0)
}

func (m *ServiceMock) DeleteCurrentUser(ctx context.Context, userUID, sessionID string) error {
	return m.Called(ctx, userUID, sessionID).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	if s, ok := v.(string); ok {
		return bytes.NewReader([]byte(s))
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func withSession(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), middlewarectx.UserUID, "uid-1")
	ctx = context.WithValue(ctx, middlewarectx.SessionID, "sess-1")
	return r.WithContext(ctx)
}

func TestHandler_Register(t *testing.T) {
	result := &models.LoginResult{Token: "tok", SessionID: "sess-1", Profile: &models.Profile{UUID: "uid-1"}}

	tests := []struct {
		name       string
		body       any
		setupMocks func(s *ServiceMock)
		wantCode   int
		wantStatus string
	}{
		{
			name: "success",
			body: RegisterRequest{Name: "A", Email: "a@x.com", Password: "password123"},
			setupMocks: func(s *ServiceMock) {
				s.On("Register", mock.Anything, "A", "a@x.com", "password123").Return(result, nil).Once()
			},
			wantCode:   http.StatusCreated,
			wantStatus: response.StatusOK,
		},
		{
			name:       "invalid json",
			body:       "not a json",
			wantCode:   http.StatusBadRequest,
			wantStatus: response.StatusError,
		},
		{
			name:       "short password",
			body:       RegisterRequest{Name: "A", Email: "a@x.com", Password: "123"},
			wantCode:   http.StatusUnprocessableEntity,
			wantStatus: response.StatusError,
		},
		{
			name: "duplicate email",
			body: RegisterRequest{Name: "A", Email: "a@x.com", Password: "password123"},
			setupMocks: func(s *ServiceMock) {
				s.On("Register", mock.Anything, "A", "a@x.com", "password123").
					Return(nil, fmt.Errorf("storage.CreateProfile: already exists: %w", apperr.ErrValidation)).Once()
			},
			wantCode:   http.StatusUnprocessableEntity,
			wantStatus: response.StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			if tt.setupMocks != nil {
				tt.setupMocks(svc)
			}
			h := New(newNoopLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/register", jsonBody(t, tt.body))
			rr := httptest.NewRecorder()
			h.Register(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			var resp response.Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_Login(t *testing.T) {
	svc := new(ServiceMock)
	h := New(newNoopLogger(), svc)

	svc.On("Login", mock.Anything, "a@x.com", "good").
		Return(&models.LoginResult{Token: "tok", SessionID: "s", Profile: &models.Profile{UUID: "uid-1"}}, nil).Once()
	svc.On("Login", mock.Anything, "a@x.com", "bad").
		Return(nil, fmt.Errorf("login: %w", apperr.ErrAuthRequired)).Once()

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/login", jsonBody(t, LoginRequest{Email: "a@x.com", Password: "good"})))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"token":"tok"`)

	rr = httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/login", jsonBody(t, LoginRequest{Email: "a@x.com", Password: "bad"})))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	svc.AssertExpectations(t)
}

func TestHandler_SessionBoundActions(t *testing.T) {
	svc := new(ServiceMock)
	h := New(newNoopLogger(), svc)

	svc.On("Logout", mock.Anything, "sess-1").Return(nil).Once()
	svc.On("SendVerificationEmail", mock.Anything, "uid-1").Return(nil).Once()
	svc.On("CheckVerified", mock.Anything, "uid-1").Return(true, nil).Once()
	svc.On("DeleteCurrentUser", mock.Anything, "uid-1", "sess-1").Return(nil).Once()

	rr := httptest.NewRecorder()
	h.Logout(rr, withSession(httptest.NewRequest(http.MethodPost, "/logout", nil)))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.SendVerification(rr, withSession(httptest.NewRequest(http.MethodPost, "/email/verification", nil)))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = httptest.NewRecorder()
	h.CheckVerified(rr, withSession(httptest.NewRequest(http.MethodGet, "/email/verified", nil)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email_verified":true`)

	rr = httptest.NewRecorder()
	h.DeleteAccount(rr, withSession(httptest.NewRequest(http.MethodDelete, "/account", nil)))
	assert.Equal(t, http.StatusOK, rr.Code)

	svc.AssertExpectations(t)
}

func TestHandler_PasswordResetFlow(t *testing.T) {
	svc := new(ServiceMock)
	h := New(newNoopLogger(), svc)

	svc.On("ResetPassword", mock.Anything, "a@x.com").Return(nil).Once()
	svc.On("ConfirmPasswordReset", mock.Anything, "code", "newpassword").Return(nil).Once()
	svc.On("ConfirmPasswordReset", mock.Anything, "stale", "newpassword").
		Return(fmt.Errorf("confirm: invalid or expired code: %w", apperr.ErrValidation)).Once()
	svc.On("VerifyEmail", mock.Anything, "vcode").Return(nil).Once()

	rr := httptest.NewRecorder()
	h.ResetPassword(rr, httptest.NewRequest(http.MethodPost, "/password/reset", jsonBody(t, ResetRequest{Email: "a@x.com"})))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = httptest.NewRecorder()
	h.ConfirmReset(rr, httptest.NewRequest(http.MethodPost, "/password/reset/confirm",
		jsonBody(t, ConfirmResetRequest{Code: "code", Password: "newpassword"})))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ConfirmReset(rr, httptest.NewRequest(http.MethodPost, "/password/reset/confirm",
		jsonBody(t, ConfirmResetRequest{Code: "stale", Password: "newpassword"})))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid or expired code")

	rr = httptest.NewRecorder()
	h.VerifyEmail(rr, httptest.NewRequest(http.MethodPost, "/email/verify", jsonBody(t, VerifyRequest{Code: "vcode"})))
	assert.Equal(t, http.StatusOK, rr.Code)

	svc.AssertExpectations(t)
}
