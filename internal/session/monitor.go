// Package session реализует монитор активности пользовательской сессии:
// таймер неактивности, предупреждение с обратным отсчётом и принудительный выход.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

// Phase текущее состояние монитора.
type Phase string

const (
	// PhaseDormant монитор не взведён (пользователь не аутентифицирован).
	PhaseDormant Phase = "dormant"
	// PhaseIdle обычная работа, таймеры взведены.
	PhaseIdle Phase = "idle"
	// PhaseWarning показывается предупреждение с обратным отсчётом.
	PhaseWarning Phase = "warning"
	// PhaseExpired сработал принудительный выход.
	PhaseExpired Phase = "expired"
)

const tickInterval = time.Second

// Причины принудительного выхода, передаются в метрики и логи.
const (
	ReasonInactivity = "inactivity"
	ReasonBackground = "background"
	ReasonManual     = "manual"
)

// Config задаёт длительности таймеров.
type Config struct {
	// Timeout полное время неактивности до выхода.
	Timeout time.Duration
	// Warning за сколько до выхода показывается предупреждение.
	Warning time.Duration
}

// DefaultConfig возвращает 5 минут неактивности и 30 секунд предупреждения.
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Minute,
		Warning: 30 * time.Second,
	}
}

// Validate проверяет согласованность длительностей.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("session timeout must be positive")
	}
	if c.Warning < 0 || c.Warning >= c.Timeout {
		return fmt.Errorf("warning time %s must be within [0, %s)", c.Warning, c.Timeout)
	}
	if c.Warning%tickInterval != 0 {
		return fmt.Errorf("warning time %s must be a whole number of %s", c.Warning, tickInterval)
	}
	return nil
}

func (c Config) countdownSeconds() int {
	return int(c.Warning / tickInterval)
}

// State снимок состояния монитора для отображения клиенту.
// CountdownSeconds убывает только в фазе предупреждения, в остальных фазах
// равен начальному значению отсчёта.
type State struct {
	Phase            Phase     `json:"phase"`
	CountdownSeconds int       `json:"countdown_seconds"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	Background       bool      `json:"background"`
}

// LogoutFunc побочный эффект выхода, предоставляется вызывающей стороной.
type LogoutFunc func(ctx context.Context, reason string) error

// Option настраивает Monitor.
type Option func(*Monitor)

// WithClock подменяет источник времени.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithOnChange регистрирует колбэк, вызываемый при смене фазы и на каждом тике отсчёта.
// Колбэк вызывается вне блокировки монитора.
func WithOnChange(f func(State)) Option {
	return func(m *Monitor) { m.onChange = f }
}

// WithLogoutTimeout ограничивает время выполнения побочного эффекта выхода.
func WithLogoutTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.logoutTimeout = d }
}

// Monitor отслеживает активность пользователя и принудительно завершает сессию
// после периода неактивности. Все таймеры принадлежат монитору и отменяются
// при каждой смене фазы.
type Monitor struct {
	mu            sync.Mutex
	cfg           Config
	clock         clockwork.Clock
	logout        LogoutFunc
	log           *slog.Logger
	onChange      func(State)
	logoutTimeout time.Duration

	phase        Phase
	countdown    int
	lastActivity time.Time
	background   bool
	timers       []clockwork.Timer
	// generation растёт при каждой отмене таймеров; колбэки со старым значением игнорируются.
	generation uint64
}

// NewMonitor создаёт монитор в спящем состоянии.
func NewMonitor(cfg Config, logout LogoutFunc, log *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:           cfg,
		clock:         clockwork.NewRealClock(),
		logout:        logout,
		log:           log,
		logoutTimeout: 10 * time.Second,
		phase:         PhaseDormant,
		countdown:     cfg.countdownSeconds(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start взводит монитор после аутентификации пользователя.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.background = false
	m.armLocked()
	st := m.stateLocked()
	m.mu.Unlock()

	m.log.Debug("session monitor started")
	m.notify(st)
}

// RecordActivity фиксирует активность пользователя и перевзводит таймеры.
// Вызов дешёвый и может выполняться сколь угодно часто.
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	if m.phase == PhaseDormant || m.phase == PhaseExpired || m.background {
		m.mu.Unlock()
		return
	}
	prev := m.phase
	m.armLocked()
	st := m.stateLocked()
	m.mu.Unlock()

	if prev != st.Phase {
		m.notify(st)
	}
}

// StaySignedIn эквивалентен RecordActivity; используется из окна предупреждения.
func (m *Monitor) StaySignedIn() {
	m.RecordActivity()
}

// OnBackground отменяет таймеры при уходе приложения в фон, сохраняя время последней активности.
func (m *Monitor) OnBackground() {
	m.mu.Lock()
	if m.phase == PhaseDormant || m.phase == PhaseExpired {
		m.mu.Unlock()
		return
	}
	prev := m.phase
	m.background = true
	m.cancelLocked()
	m.phase = PhaseIdle
	m.countdown = m.cfg.countdownSeconds()
	st := m.stateLocked()
	m.mu.Unlock()

	if prev != st.Phase {
		m.notify(st)
	}
}

// OnForeground обрабатывает возврат приложения на передний план.
// Если с последней активности прошло не меньше Timeout, выход происходит сразу,
// минуя фазу предупреждения.
func (m *Monitor) OnForeground() {
	m.mu.Lock()
	if m.phase == PhaseDormant || m.phase == PhaseExpired {
		m.mu.Unlock()
		return
	}
	m.background = false
	if m.clock.Now().Sub(m.lastActivity) >= m.cfg.Timeout {
		m.cancelLocked()
		m.phase = PhaseExpired
		m.countdown = m.cfg.countdownSeconds()
		st := m.stateLocked()
		m.mu.Unlock()

		m.notify(st)
		m.invokeLogout(ReasonBackground)
		return
	}
	m.armLocked()
	st := m.stateLocked()
	m.mu.Unlock()

	m.notify(st)
}

// ForceLogout немедленно отменяет таймеры и вызывает побочный эффект выхода.
func (m *Monitor) ForceLogout() {
	m.mu.Lock()
	if m.phase == PhaseDormant || m.phase == PhaseExpired {
		m.mu.Unlock()
		return
	}
	m.cancelLocked()
	m.phase = PhaseExpired
	m.countdown = m.cfg.countdownSeconds()
	st := m.stateLocked()
	m.mu.Unlock()

	m.notify(st)
	m.invokeLogout(ReasonManual)
}

// Stop отменяет все таймеры и переводит монитор в спящее состояние.
// Вызывается при выходе пользователя или завершении приложения.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.phase == PhaseDormant {
		m.mu.Unlock()
		return
	}
	m.cancelLocked()
	m.phase = PhaseDormant
	m.background = false
	m.countdown = m.cfg.countdownSeconds()
	st := m.stateLocked()
	m.mu.Unlock()

	m.notify(st)
}

// State возвращает снимок текущего состояния.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Monitor) stateLocked() State {
	return State{
		Phase:            m.phase,
		CountdownSeconds: m.countdown,
		LastActivityAt:   m.lastActivity,
		Background:       m.background,
	}
}

func (m *Monitor) armLocked() {
	m.cancelLocked()
	m.lastActivity = m.clock.Now()
	m.phase = PhaseIdle
	m.countdown = m.cfg.countdownSeconds()

	gen := m.generation
	if m.cfg.Warning > 0 {
		m.timers = append(m.timers, m.clock.AfterFunc(m.cfg.Timeout-m.cfg.Warning, func() {
			m.onWarning(gen)
		}))
	}
	m.timers = append(m.timers, m.clock.AfterFunc(m.cfg.Timeout, func() {
		m.expire(gen)
	}))
}

func (m *Monitor) cancelLocked() {
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = m.timers[:0]
	m.generation++
}

func (m *Monitor) onWarning(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.phase != PhaseIdle {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseWarning
	m.countdown = m.cfg.countdownSeconds()
	m.timers = append(m.timers, m.clock.AfterFunc(tickInterval, func() {
		m.tick(gen)
	}))
	st := m.stateLocked()
	m.mu.Unlock()

	m.log.Info("session inactivity warning", slog.Int("countdown_seconds", st.CountdownSeconds))
	m.notify(st)
}

func (m *Monitor) tick(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.phase != PhaseWarning {
		m.mu.Unlock()
		return
	}
	m.countdown--
	if m.countdown <= 0 {
		m.mu.Unlock()
		m.expire(gen)
		return
	}
	m.timers = append(m.timers, m.clock.AfterFunc(tickInterval, func() {
		m.tick(gen)
	}))
	st := m.stateLocked()
	m.mu.Unlock()

	m.notify(st)
}

func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.phase == PhaseExpired || m.phase == PhaseDormant {
		m.mu.Unlock()
		return
	}
	m.cancelLocked()
	m.phase = PhaseExpired
	m.countdown = m.cfg.countdownSeconds()
	st := m.stateLocked()
	m.mu.Unlock()

	m.log.Info("user inactive, logging out", slog.Duration("timeout", m.cfg.Timeout))
	m.notify(st)
	m.invokeLogout(ReasonInactivity)
}

// invokeLogout вызывает побочный эффект выхода ровно один раз за цикл.
// Ошибка или паника не повторяются: монитор сбрасывается в спящее состояние.
func (m *Monitor) invokeLogout(reason string) {
	const op = "session.Monitor.invokeLogout"
	if m.logout == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.logoutTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: logout panicked: %v", op, r)
			}
		}()
		return m.logout(ctx, reason)
	}()
	if err != nil {
		m.log.Error("logout side effect failed", sl.Err(err), slog.String("reason", reason))
		m.Stop()
	}
}

func (m *Monitor) notify(st State) {
	if m.onChange != nil {
		m.onChange(st)
	}
}
