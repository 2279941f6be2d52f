package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	customjwt "github.com/magabrotheeeer/aicheck/internal/lib/jwt"
	"github.com/magabrotheeeer/aicheck/internal/lib/password"
	"github.com/magabrotheeeer/aicheck/internal/models"
	services "github.com/magabrotheeeer/aicheck/internal/services/auth"
	"github.com/magabrotheeeer/aicheck/internal/storage/kv"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) CreateProfile(ctx context.Context, p models.Profile) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *UserRepoMock) GetProfile(ctx context.Context, userUID string) (*models.Profile, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *UserRepoMock) GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *UserRepoMock) SetCustomerID(ctx context.Context, userUID, customerID string) error {
	return m.Called(ctx, userUID, customerID).Error(0)
}

func (m *UserRepoMock) SetEmailVerified(ctx context.Context, userUID string) error {
	return m.Called(ctx, userUID).Error(0)
}

func (m *UserRepoMock) UpdatePassword(ctx context.Context, userUID, passwordHash string) error {
	return m.Called(ctx, userUID, passwordHash).Error(0)
}

func (m *UserRepoMock) DeleteProfile(ctx context.Context, userUID string) error {
	return m.Called(ctx, userUID).Error(0)
}

// Мок для Notifier
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, n models.Notification) error {
	return m.Called(ctx, n).Error(0)
}

// Мок для CustomerCreator
type CustomersMock struct {
	mock.Mock
}

func (m *CustomersMock) CreateCustomer(ctx context.Context, email, name string) (*models.Customer, error) {
	args := m.Called(ctx, email, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

type fixture struct {
	svc       *services.AuthService
	repo      *UserRepoMock
	notifier  *NotifierMock
	customers *CustomersMock
	maker     *customjwt.MakerImpl
	mr        *miniredis.Miniredis
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		repo:      new(UserRepoMock),
		notifier:  new(NotifierMock),
		customers: new(CustomersMock),
		maker:     customjwt.NewJWTMaker("test-secret", time.Hour),
		mr:        mr,
		now:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = services.NewAuthService(
		f.repo,
		kv.New(client),
		f.maker,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		services.WithCustomers(f.customers),
		services.WithNotifier(f.notifier),
		services.WithNow(func() time.Time { return f.now }),
	)
	return f
}

func TestAuthService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var events []models.AuthEvent
	f.svc.OnAuthStateChanged(func(ev models.AuthEvent) { events = append(events, ev) })

	f.repo.On("CreateProfile", mock.Anything, mock.MatchedBy(func(p models.Profile) bool {
		return p.Email == "test@example.com" &&
			p.Name == "Tester" &&
			p.PasswordHash != "" &&
			p.Role == models.PlanFree &&
			p.UsageLimit == 5 &&
			p.SubscriptionEndsAt != nil &&
			p.SubscriptionEndsAt.Equal(f.now.Add(7*24*time.Hour))
	})).Return("uid-1", nil).Once()
	f.customers.On("CreateCustomer", mock.Anything, "test@example.com", "Tester").
		Return(&models.Customer{ID: "cus_1"}, nil).Once()
	f.repo.On("SetCustomerID", mock.Anything, "uid-1", "cus_1").Return(nil).Once()

	var sent models.Notification
	f.notifier.On("Notify", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(models.Notification) }).
		Return(nil).Once()

	res, err := f.svc.Register(ctx, "Tester", " test@example.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", res.Profile.UUID)
	assert.Equal(t, "cus_1", res.Profile.CustomerID)
	assert.NotEmpty(t, res.SessionID)

	claims, err := f.maker.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", claims.UserUID)
	assert.Equal(t, res.SessionID, claims.SessionID())

	assert.Equal(t, models.NotificationVerification, sent.Kind)
	assert.NotEmpty(t, sent.Code)
	uid, err := f.mr.Get("verify_" + sent.Code)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)

	require.Len(t, events, 1)
	assert.True(t, events[0].Authenticated)
	assert.Equal(t, res.SessionID, events[0].SessionID)

	f.repo.AssertExpectations(t)
	f.customers.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestAuthService_RegisterSideEffectsAreBestEffort(t *testing.T) {
	f := newFixture(t)

	f.repo.On("CreateProfile", mock.Anything, mock.Anything).Return("uid-1", nil).Once()
	f.customers.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperr.ErrStorage).Once()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	res, err := f.svc.Register(context.Background(), "Tester", "test@example.com", "password123")
	require.NoError(t, err)
	assert.Empty(t, res.Profile.CustomerID)
	f.repo.AssertNotCalled(t, "SetCustomerID", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_RegisterErrors(t *testing.T) {
	tests := []struct {
		name       string
		userName   string
		email      string
		password   string
		setupMocks func(r *UserRepoMock)
		wantErr    error
	}{
		{name: "short password", userName: "A", email: "a@x.com", password: "123", wantErr: apperr.ErrValidation},
		{name: "empty name", userName: " ", email: "a@x.com", password: "password123", wantErr: apperr.ErrValidation},
		{
			name: "duplicate email", userName: "A", email: "a@x.com", password: "password123",
			setupMocks: func(r *UserRepoMock) {
				r.On("CreateProfile", mock.Anything, mock.Anything).Return("", apperr.ErrValidation).Once()
			},
			wantErr: apperr.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setupMocks != nil {
				tt.setupMocks(f.repo)
			}
			_, err := f.svc.Register(context.Background(), tt.userName, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
			f.repo.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	rawPassword := "correctpassword"
	hashedPassword, err := password.GetHash(rawPassword)
	require.NoError(t, err)
	user := &models.Profile{UUID: "uid-1", Email: "test@example.com", PasswordHash: hashedPassword, Role: models.PlanBasic}

	tests := []struct {
		name       string
		email      string
		password   string
		setupMocks func(r *UserRepoMock)
		wantErr    error
	}{
		{
			name: "successful login", email: "test@example.com", password: rawPassword,
			setupMocks: func(r *UserRepoMock) {
				r.On("GetProfileByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()
			},
		},
		{
			name: "user not found", email: "nobody@example.com", password: rawPassword,
			setupMocks: func(r *UserRepoMock) {
				r.On("GetProfileByEmail", mock.Anything, "nobody@example.com").Return(nil, apperr.ErrNotFound).Once()
			},
			wantErr: apperr.ErrAuthRequired,
		},
		{
			name: "wrong password", email: "test@example.com", password: "wrongpassword",
			setupMocks: func(r *UserRepoMock) {
				r.On("GetProfileByEmail", mock.Anything, "test@example.com").Return(user, nil).Once()
			},
			wantErr: apperr.ErrAuthRequired,
		},
		{
			name: "storage failure", email: "test@example.com", password: rawPassword,
			setupMocks: func(r *UserRepoMock) {
				r.On("GetProfileByEmail", mock.Anything, "test@example.com").Return(nil, apperr.ErrStorage).Once()
			},
			wantErr: apperr.ErrStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMocks(f.repo)

			res, err := f.svc.Login(context.Background(), tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			claims, err := f.svc.ValidateToken(context.Background(), res.Token)
			require.NoError(t, err)
			assert.Equal(t, "uid-1", claims.UserUID)
			assert.Equal(t, "basic", claims.Role)
			f.repo.AssertExpectations(t)
		})
	}
}

func TestAuthService_LogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.On("GetProfileByEmail", mock.Anything, "a@x.com").Return(&models.Profile{UUID: "uid-1", Email: "a@x.com", PasswordHash: mustHash(t, "password123")}, nil)

	var events []models.AuthEvent
	unsubscribe := f.svc.OnAuthStateChanged(func(ev models.AuthEvent) { events = append(events, ev) })

	res, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.SessionID))
	_, err = f.svc.ValidateToken(ctx, res.Token)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
	assert.Equal(t, time.Hour, f.mr.TTL("revoked_"+res.SessionID))

	require.Len(t, events, 2)
	assert.False(t, events[1].Authenticated)
	assert.Equal(t, res.SessionID, events[1].SessionID)

	unsubscribe()
	_, err = f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	assert.ErrorIs(t, f.svc.Logout(ctx, ""), apperr.ErrAuthRequired)
}

func TestAuthService_ValidateTokenRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ValidateToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}

func TestAuthService_EmailVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	profile := &models.Profile{UUID: "uid-1", Email: "a@x.com", Name: "A"}

	f.repo.On("GetProfile", mock.Anything, "uid-1").Return(profile, nil).Once()
	var sent models.Notification
	f.notifier.On("Notify", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(models.Notification) }).
		Return(nil).Once()

	require.NoError(t, f.svc.SendVerificationEmail(ctx, "uid-1"))
	assert.Equal(t, "a@x.com", sent.Email)

	f.repo.On("SetEmailVerified", mock.Anything, "uid-1").Return(nil).Once()
	require.NoError(t, f.svc.VerifyEmail(ctx, sent.Code))

	// Код одноразовый.
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, sent.Code), apperr.ErrValidation)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, ""), apperr.ErrValidation)

	f.repo.On("GetProfile", mock.Anything, "uid-2").Return(&models.Profile{UUID: "uid-2", EmailVerified: true}, nil)
	assert.ErrorIs(t, f.svc.SendVerificationEmail(ctx, "uid-2"), apperr.ErrValidation)

	verified, err := f.svc.CheckVerified(ctx, "uid-2")
	require.NoError(t, err)
	assert.True(t, verified)
	f.repo.AssertExpectations(t)
}

func TestAuthService_VerificationCodeExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.On("GetProfile", mock.Anything, "uid-1").Return(&models.Profile{UUID: "uid-1"}, nil)
	var sent models.Notification
	f.notifier.On("Notify", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(models.Notification) }).
		Return(nil)

	require.NoError(t, f.svc.SendVerificationEmail(ctx, "uid-1"))
	f.mr.FastForward(services.VerificationCodeTTL + time.Second)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, sent.Code), apperr.ErrValidation)
}

func TestAuthService_PasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.On("GetProfileByEmail", mock.Anything, "ghost@x.com").Return(nil, apperr.ErrNotFound).Once()
	require.NoError(t, f.svc.ResetPassword(ctx, "ghost@x.com"))
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)

	f.repo.On("GetProfileByEmail", mock.Anything, "a@x.com").Return(&models.Profile{UUID: "uid-1", Email: "a@x.com"}, nil).Once()
	var sent models.Notification
	f.notifier.On("Notify", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(models.Notification) }).
		Return(nil).Once()
	require.NoError(t, f.svc.ResetPassword(ctx, "a@x.com"))
	assert.Equal(t, models.NotificationPasswordReset, sent.Kind)

	assert.ErrorIs(t, f.svc.ConfirmPasswordReset(ctx, sent.Code, "123"), apperr.ErrValidation)

	f.repo.On("UpdatePassword", mock.Anything, "uid-1", mock.MatchedBy(func(hash string) bool {
		return password.CompareHash(hash, "newpassword") == nil
	})).Return(nil).Once()
	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, sent.Code, "newpassword"))
	assert.ErrorIs(t, f.svc.ConfirmPasswordReset(ctx, sent.Code, "newpassword"), apperr.ErrValidation)
	f.repo.AssertExpectations(t)
}

func TestAuthService_DeleteCurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var events []models.AuthEvent
	f.svc.OnAuthStateChanged(func(ev models.AuthEvent) { events = append(events, ev) })

	f.repo.On("DeleteProfile", mock.Anything, "uid-1").Return(nil).Once()
	require.NoError(t, f.svc.DeleteCurrentUser(ctx, "uid-1", "sess-1"))
	assert.True(t, f.mr.Exists("revoked_sess-1"))
	require.Len(t, events, 1)
	assert.False(t, events[0].Authenticated)

	f.repo.On("DeleteProfile", mock.Anything, "uid-2").Return(apperr.ErrNotFound).Once()
	assert.ErrorIs(t, f.svc.DeleteCurrentUser(ctx, "uid-2", "sess-2"), apperr.ErrNotFound)
	assert.False(t, f.mr.Exists("revoked_sess-2"))
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := password.GetHash(pw)
	require.NoError(t, err)
	return h
}
