package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// SessionLogoutFunc завершает конкретную сессию у провайдера идентификации.
type SessionLogoutFunc func(ctx context.Context, sessionID string) error

// ExpirationRecorder учитывает принудительные выходы (метрики).
type ExpirationRecorder interface {
	SessionExpired(reason string)
}

// Registry хранит по одному монитору на каждую аутентифицированную сессию.
// Мониторы создаются по событию входа либо лениво при первом запросе с валидным
// токеном (например, после перезапуска процесса) и уничтожаются по событию выхода.
type Registry struct {
	mu       sync.RWMutex
	monitors map[string]*Monitor

	cfg     Config
	clock   clockwork.Clock
	logout  SessionLogoutFunc
	log     *slog.Logger
	metrics ExpirationRecorder
}

// RegistryOption настраивает Registry.
type RegistryOption func(*Registry)

// WithRegistryClock подменяет источник времени для всех создаваемых мониторов.
func WithRegistryClock(c clockwork.Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// WithExpirationRecorder подключает учёт принудительных выходов.
func WithExpirationRecorder(rec ExpirationRecorder) RegistryOption {
	return func(r *Registry) { r.metrics = rec }
}

// NewRegistry создаёт пустой реестр сессий.
func NewRegistry(cfg Config, logout SessionLogoutFunc, log *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		monitors: make(map[string]*Monitor),
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		logout:   logout,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleAuthStateChanged слушатель событий провайдера идентификации.
func (r *Registry) HandleAuthStateChanged(ev models.AuthEvent) {
	if ev.Authenticated {
		r.Open(ev.SessionID, ev.UserUID)
		return
	}
	r.Close(ev.SessionID)
}

// Open создаёт и взводит монитор для сессии. Повторный вызов перевзводит существующий монитор.
func (r *Registry) Open(sessionID, userUID string) *Monitor {
	r.mu.Lock()
	m, ok := r.monitors[sessionID]
	if !ok {
		log := r.log.With(slog.String("session_id", sessionID), slog.String("user_uid", userUID))
		m = NewMonitor(r.cfg, r.logoutFor(sessionID), log, WithClock(r.clock))
		r.monitors[sessionID] = m
	}
	r.mu.Unlock()

	m.Start()
	return m
}

// Close останавливает монитор сессии и удаляет его из реестра.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	m, ok := r.monitors[sessionID]
	delete(r.monitors, sessionID)
	r.mu.Unlock()

	if ok {
		m.Stop()
	}
}

// Get возвращает монитор сессии или ErrAuthRequired, если сессия не аутентифицирована.
func (r *Registry) Get(sessionID string) (*Monitor, error) {
	const op = "session.Registry.Get"
	r.mu.RLock()
	m, ok := r.monitors[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrAuthRequired)
	}
	return m, nil
}

// GetOrOpen возвращает монитор сессии, открывая его, если процесс ещё не видел
// эту сессию. Вызывается только для запросов, чей токен уже проверен.
func (r *Registry) GetOrOpen(sessionID, userUID string) (*Monitor, error) {
	const op = "session.Registry.GetOrOpen"
	if sessionID == "" {
		return nil, fmt.Errorf("%s: empty session id: %w", op, apperr.ErrAuthRequired)
	}
	if m, err := r.Get(sessionID); err == nil {
		return m, nil
	}
	r.log.Info("restoring monitor for unseen session",
		slog.String("session_id", sessionID),
		slog.String("user_uid", userUID),
	)
	return r.Open(sessionID, userUID), nil
}

// RecordActivity фиксирует активность в сессии, при необходимости открывая её монитор.
func (r *Registry) RecordActivity(sessionID, userUID string) error {
	m, err := r.GetOrOpen(sessionID, userUID)
	if err != nil {
		return err
	}
	m.RecordActivity()
	return nil
}

// Len возвращает число открытых сессий.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.monitors)
}

// CloseAll останавливает все мониторы при завершении приложения.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	monitors := r.monitors
	r.monitors = make(map[string]*Monitor)
	r.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
}

func (r *Registry) logoutFor(sessionID string) LogoutFunc {
	return func(ctx context.Context, reason string) error {
		if r.metrics != nil {
			r.metrics.SessionExpired(reason)
		}
		if r.logout == nil {
			r.Close(sessionID)
			return nil
		}
		if err := r.logout(ctx, sessionID); err != nil {
			r.Close(sessionID)
			return err
		}
		return nil
	}
}
