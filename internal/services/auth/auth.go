// Package services содержит логику бизнес-уровня для работы с пользователями и аутентификацией.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/aicheck/internal/entitlement"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/lib/jwt"
	"github.com/magabrotheeeer/aicheck/internal/lib/password"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// Время жизни одноразовых кодов.
const (
	VerificationCodeTTL = 24 * time.Hour
	ResetCodeTTL        = time.Hour
)

const (
	revokedPrefix = "revoked_"
	verifyPrefix  = "verify_"
	resetPrefix   = "reset_"
)

// UserRepository описывает контракт для работы с профилями в базе данных.
type UserRepository interface {
	CreateProfile(ctx context.Context, p models.Profile) (string, error)
	GetProfile(ctx context.Context, userUID string) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	SetCustomerID(ctx context.Context, userUID, customerID string) error
	SetEmailVerified(ctx context.Context, userUID string) error
	UpdatePassword(ctx context.Context, userUID, passwordHash string) error
	DeleteProfile(ctx context.Context, userUID string) error
}

// TokenStore хранит отозванные сессии и одноразовые коды.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CustomerCreator заводит платёжного клиента.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, email, name string) (*models.Customer, error)
}

// Notifier ставит письма в очередь рассылки.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// AuthService отвечает за регистрацию, вход, выход и валидацию JWT.
type AuthService struct {
	users     UserRepository
	tokens    TokenStore
	jwtMaker  jwt.Maker
	customers CustomerCreator
	notifier  Notifier
	log       *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(models.AuthEvent)
}

// Option настраивает AuthService.
type Option func(*AuthService)

// WithCustomers подключает создание платёжного клиента при регистрации.
func WithCustomers(c CustomerCreator) Option {
	return func(s *AuthService) { s.customers = c }
}

// WithNotifier подключает отправку писем.
func WithNotifier(n Notifier) Option {
	return func(s *AuthService) { s.notifier = n }
}

// WithNow подменяет источник текущего времени.
func WithNow(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, tokens TokenStore, jwtMaker jwt.Maker, log *slog.Logger, opts ...Option) *AuthService {
	s := &AuthService{
		users:     users,
		tokens:    tokens,
		jwtMaker:  jwtMaker,
		log:       log,
		now:       time.Now,
		listeners: make(map[int]func(models.AuthEvent)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnAuthStateChanged подписывает слушателя на вход и выход. Возвращает функцию отписки.
func (s *AuthService) OnAuthStateChanged(cb func(models.AuthEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *AuthService) emit(ev models.AuthEvent) {
	s.mu.Lock()
	cbs := make([]func(models.AuthEvent), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

// Register создаёт профиль с пробным тарифом и сразу выполняет вход.
// Клиент биллинга и письмо подтверждения создаются по возможности, их ошибки только логируются.
func (s *AuthService) Register(ctx context.Context, name, email, rawPassword string) (*models.LoginResult, error) {
	const op = "services.auth.Register"
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" {
		return nil, fmt.Errorf("%s: name and email are required: %w", op, apperr.ErrValidation)
	}
	if err := password.Validate(rawPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrValidation, err)
	}

	trialEnd := s.now().UTC().Add(entitlement.TrialPeriod)
	profile := models.Profile{
		Email:              email,
		Name:               name,
		PasswordHash:       hashed,
		Role:               models.PlanFree,
		UsageLimit:         entitlement.LimitFor(models.PlanFree),
		SubscriptionEndsAt: &trialEnd,
	}
	uid, err := s.users.CreateProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	profile.UUID = uid
	log := s.log.With(sl.Op(op), slog.String("user_uid", uid))
	log.Info("user registered")

	if s.customers != nil {
		c, err := s.customers.CreateCustomer(ctx, email, name)
		if err != nil {
			log.Warn("failed to create billing customer", sl.Err(err))
		} else if err := s.users.SetCustomerID(ctx, uid, c.ID); err != nil {
			log.Warn("failed to link billing customer", sl.Err(err))
		} else {
			profile.CustomerID = c.ID
		}
	}
	if err := s.sendVerification(ctx, &profile); err != nil {
		log.Warn("failed to send verification email", sl.Err(err))
	}

	return s.signIn(&profile)
}

// Login проверяет пароль и выдаёт JWT с новым идентификатором сессии.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (*models.LoginResult, error) {
	const op = "services.auth.Login"
	user, err := s.users.GetProfileByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%s: invalid credentials: %w", op, apperr.ErrAuthRequired)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return nil, fmt.Errorf("%s: invalid credentials: %w", op, apperr.ErrAuthRequired)
	}
	return s.signIn(user)
}

func (s *AuthService) signIn(p *models.Profile) (*models.LoginResult, error) {
	const op = "services.auth.signIn"
	token, sessionID, err := s.jwtMaker.GenerateToken(p.UUID, p.Email, string(p.Role))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user signed in", slog.String("user_uid", p.UUID), slog.String("session_id", sessionID))
	s.emit(models.AuthEvent{UserUID: p.UUID, SessionID: sessionID, Authenticated: true})
	return &models.LoginResult{Token: token, SessionID: sessionID, Profile: p}, nil
}

// Logout отзывает токен сессии до истечения его срока и оповещает слушателей.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	const op = "services.auth.Logout"
	if sessionID == "" {
		return fmt.Errorf("%s: empty session id: %w", op, apperr.ErrAuthRequired)
	}
	if err := s.tokens.SetTTL(ctx, revokedPrefix+sessionID, "1", s.jwtMaker.TTL()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("session signed out", slog.String("session_id", sessionID))
	s.emit(models.AuthEvent{SessionID: sessionID, Authenticated: false})
	return nil
}

// ValidateToken проверяет подпись, срок действия и отзыв токена.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.CustomClaims, error) {
	const op = "services.auth.ValidateToken"
	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, apperr.ErrAuthRequired, err)
	}
	revoked, err := s.tokens.Exists(ctx, revokedPrefix+claims.SessionID())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		return nil, fmt.Errorf("%s: session revoked: %w", op, apperr.ErrAuthRequired)
	}
	return claims, nil
}

// SendVerificationEmail повторно отправляет письмо с кодом подтверждения.
func (s *AuthService) SendVerificationEmail(ctx context.Context, userUID string) error {
	const op = "services.auth.SendVerificationEmail"
	p, err := s.users.GetProfile(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if p.EmailVerified {
		return fmt.Errorf("%s: email already verified: %w", op, apperr.ErrValidation)
	}
	if err := s.sendVerification(ctx, p); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *AuthService) sendVerification(ctx context.Context, p *models.Profile) error {
	code, err := s.issueCode(ctx, verifyPrefix, p.UUID, VerificationCodeTTL)
	if err != nil {
		return err
	}
	return s.notify(ctx, models.Notification{
		Kind:  models.NotificationVerification,
		Email: p.Email,
		Name:  p.Name,
		Code:  code,
	})
}

// VerifyEmail подтверждает email по одноразовому коду.
func (s *AuthService) VerifyEmail(ctx context.Context, code string) error {
	const op = "services.auth.VerifyEmail"
	uid, err := s.redeemCode(ctx, verifyPrefix, code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.SetEmailVerified(ctx, uid); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("email verified", slog.String("user_uid", uid))
	return nil
}

// CheckVerified сообщает, подтверждён ли email пользователя.
func (s *AuthService) CheckVerified(ctx context.Context, userUID string) (bool, error) {
	const op = "services.auth.CheckVerified"
	p, err := s.users.GetProfile(ctx, userUID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return p.EmailVerified, nil
}

// ResetPassword отправляет код сброса пароля. Неизвестный email не считается ошибкой.
func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	const op = "services.auth.ResetPassword"
	p, err := s.users.GetProfileByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		s.log.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	code, err := s.issueCode(ctx, resetPrefix, p.UUID, ResetCodeTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.notify(ctx, models.Notification{
		Kind:  models.NotificationPasswordReset,
		Email: p.Email,
		Name:  p.Name,
		Code:  code,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConfirmPasswordReset устанавливает новый пароль по коду сброса.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	const op = "services.auth.ConfirmPasswordReset"
	if err := password.Validate(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrValidation, err)
	}
	uid, err := s.redeemCode(ctx, resetPrefix, code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, uid, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("password reset", slog.String("user_uid", uid))
	return nil
}

// DeleteCurrentUser удаляет профиль вместе с историей и завершает текущую сессию.
func (s *AuthService) DeleteCurrentUser(ctx context.Context, userUID, sessionID string) error {
	const op = "services.auth.DeleteCurrentUser"
	if err := s.users.DeleteProfile(ctx, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user deleted", slog.String("user_uid", userUID))
	if err := s.Logout(ctx, sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *AuthService) issueCode(ctx context.Context, prefix, userUID string, ttl time.Duration) (string, error) {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.tokens.SetTTL(ctx, prefix+code, userUID, ttl); err != nil {
		return "", err
	}
	return code, nil
}

func (s *AuthService) redeemCode(ctx context.Context, prefix, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("empty code: %w", apperr.ErrValidation)
	}
	uid, ok, err := s.tokens.Get(ctx, prefix+code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("invalid or expired code: %w", apperr.ErrValidation)
	}
	if err := s.tokens.Remove(ctx, prefix+code); err != nil {
		return "", err
	}
	return uid, nil
}

func (s *AuthService) notify(ctx context.Context, n models.Notification) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify(ctx, n)
}
