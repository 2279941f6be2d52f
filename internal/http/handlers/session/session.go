// Package session реализует HTTP-обработчики монитора активности сессии.
// Эти запросы сами по себе не считаются активностью пользователя.
package session

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/aicheck/internal/http/middlewarectx"
	"github.com/magabrotheeeer/aicheck/internal/http/request"
	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/session"
)

// Registry возвращает монитор сессии, открывая его для ещё не виденной сессии.
type Registry interface {
	GetOrOpen(sessionID, userUID string) (*session.Monitor, error)
}

// VisibilityRequest смена видимости клиента.
type VisibilityRequest struct {
	Visible *bool `json:"visible" validate:"required"`
}

// Handler обрабатывает запросы к монитору сессии.
type Handler struct {
	log      *slog.Logger
	registry Registry
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, registry Registry) *Handler {
	return &Handler{
		log:      log,
		registry: registry,
		validate: validator.New(),
	}
}

// monitor достаёт монитор текущей сессии или пишет 401.
func (h *Handler) monitor(w http.ResponseWriter, r *http.Request, op string) (*session.Monitor, *slog.Logger, bool) {
	sessionID := middlewarectx.SessionIDFrom(r.Context())
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("session_id", sessionID),
	)
	m, err := h.registry.GetOrOpen(sessionID, middlewarectx.UserUIDFrom(r.Context()))
	if err != nil {
		log.Warn("no active session", sl.Err(err))
		response.Fail(w, r, err)
		return nil, log, false
	}
	return m, log, true
}

// State godoc
// @Summary Состояние сессии
// @Description Фаза монитора, секунды обратного отсчёта и время последней активности.
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse
// @Router /session [get]
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	m, _, ok := h.monitor(w, r, "handlers.session.State")
	if !ok {
		return
	}
	render.JSON(w, r, response.OKWithData(m.State()))
}

// Activity godoc
// @Summary Активность пользователя
// @Description Сбрасывает таймер неактивности и скрывает предупреждение.
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /session/activity [post]
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	m, _, ok := h.monitor(w, r, "handlers.session.Activity")
	if !ok {
		return
	}
	m.RecordActivity()
	render.JSON(w, r, response.OKWithData(m.State()))
}

// Stay godoc
// @Summary Остаться в системе
// @Description Ответ на предупреждение: продлевает сессию.
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /session/stay [post]
func (h *Handler) Stay(w http.ResponseWriter, r *http.Request) {
	m, _, ok := h.monitor(w, r, "handlers.session.Stay")
	if !ok {
		return
	}
	m.StaySignedIn()
	render.JSON(w, r, response.OKWithData(m.State()))
}

// Visibility godoc
// @Summary Смена видимости клиента
// @Description visible=false останавливает таймеры, visible=true проверяет время в фоне.
// @Tags Session
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body VisibilityRequest true "Видимость"
// @Success 200 {object} response.Response
// @Router /session/visibility [post]
func (h *Handler) Visibility(w http.ResponseWriter, r *http.Request) {
	m, log, ok := h.monitor(w, r, "handlers.session.Visibility")
	if !ok {
		return
	}
	var req VisibilityRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	if *req.Visible {
		m.OnForeground()
	} else {
		m.OnBackground()
	}
	render.JSON(w, r, response.OKWithData(m.State()))
}

// Logout godoc
// @Summary Выход из предупреждения
// @Description Немедленно завершает сессию.
// @Tags Session
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /session/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	m, log, ok := h.monitor(w, r, "handlers.session.Logout")
	if !ok {
		return
	}
	m.ForceLogout()
	log.Info("session logged out by user")
	render.JSON(w, r, response.OK())
}
