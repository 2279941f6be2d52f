// Package auth реализует HTTP-обработчики регистрации, входа, выхода,
// подтверждения email, сброса пароля и удаления аккаунта.
package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/aicheck/internal/http/middlewarectx"
	"github.com/magabrotheeeer/aicheck/internal/http/request"
	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// Service описывает интерфейс бизнес-логики аутентификации.
type Service interface {
	Register(ctx context.Context, name, email, password string) (*models.LoginResult, error)
	Login(ctx context.Context, email, password string) (*models.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	SendVerificationEmail(ctx context.Context, userUID string) error
	VerifyEmail(ctx context.Context, code string) error
	CheckVerified(ctx context.Context, userUID string) (bool, error)
	ResetPassword(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) error
	DeleteCurrentUser(ctx context.Context, userUID, sessionID string) error
}

// RegisterRequest данные для регистрации.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest учётные данные для входа.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ResetRequest запрос на сброс пароля.
type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ConfirmResetRequest новый пароль и код из письма.
type ConfirmResetRequest struct {
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// VerifyRequest код подтверждения email.
type VerifyRequest struct {
	Code string `json:"code" validate:"required"`
}

// Handler обрабатывает HTTP-запросы аутентификации.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// Register godoc
// @Summary Регистрация пользователя
// @Description Создаёт профиль с пробным тарифом, отправляет письмо подтверждения и выполняет вход.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Данные пользователя"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Register"
	log := h.logger(r, op)

	var req RegisterRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		log.Error("registration failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	log.Info("user registered", slog.String("user_uid", res.Profile.UUID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(res))
}

// Login godoc
// @Summary Авторизация пользователя
// @Description Проверяет email и пароль, возвращает JWT и идентификатор сессии.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Учетные данные пользователя"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Router /login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Login"
	log := h.logger(r, op)

	var req LoginRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Error("login failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	log.Info("login success", slog.String("user_uid", res.Profile.UUID))
	render.JSON(w, r, response.OKWithData(res))
}

// Logout godoc
// @Summary Выход
// @Description Отзывает токен текущей сессии.
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Logout"
	log := h.logger(r, op)

	if err := h.service.Logout(r.Context(), middlewarectx.SessionIDFrom(r.Context())); err != nil {
		log.Error("logout failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OK())
}

// SendVerification godoc
// @Summary Повторная отправка письма подтверждения
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 202 {object} response.Response
// @Failure 422 {object} response.ErrorResponse "Email уже подтверждён"
// @Router /email/verification [post]
func (h *Handler) SendVerification(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.SendVerification"
	log := h.logger(r, op)

	if err := h.service.SendVerificationEmail(r.Context(), middlewarectx.UserUIDFrom(r.Context())); err != nil {
		log.Error("failed to send verification email", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response.OK())
}

// VerifyEmail godoc
// @Summary Подтверждение email по коду
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Код из письма"
// @Success 200 {object} response.Response
// @Failure 422 {object} response.ErrorResponse "Неверный или просроченный код"
// @Router /email/verify [post]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.VerifyEmail"
	log := h.logger(r, op)

	var req VerifyRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	if err := h.service.VerifyEmail(r.Context(), req.Code); err != nil {
		log.Error("email verification failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OK())
}

// CheckVerified godoc
// @Summary Статус подтверждения email
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /email/verified [get]
func (h *Handler) CheckVerified(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.CheckVerified"
	log := h.logger(r, op)

	verified, err := h.service.CheckVerified(r.Context(), middlewarectx.UserUIDFrom(r.Context()))
	if err != nil {
		log.Error("failed to check verification", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]bool{"email_verified": verified}))
}

// ResetPassword godoc
// @Summary Запрос сброса пароля
// @Description Всегда отвечает 202, чтобы не раскрывать наличие аккаунта.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body ResetRequest true "Email"
// @Success 202 {object} response.Response
// @Router /password/reset [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.ResetPassword"
	log := h.logger(r, op)

	var req ResetRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Email); err != nil {
		log.Error("password reset failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response.OK())
}

// ConfirmReset godoc
// @Summary Установка нового пароля по коду
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body ConfirmResetRequest true "Код и новый пароль"
// @Success 200 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /password/reset/confirm [post]
func (h *Handler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.ConfirmReset"
	log := h.logger(r, op)

	var req ConfirmResetRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	if err := h.service.ConfirmPasswordReset(r.Context(), req.Code, req.Password); err != nil {
		log.Error("password reset confirmation failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OK())
}

// DeleteAccount godoc
// @Summary Удаление аккаунта
// @Description Удаляет профиль и историю анализов, завершает сессию.
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /account [delete]
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.DeleteAccount"
	log := h.logger(r, op)

	ctx := r.Context()
	if err := h.service.DeleteCurrentUser(ctx, middlewarectx.UserUIDFrom(ctx), middlewarectx.SessionIDFrom(ctx)); err != nil {
		log.Error("failed to delete account", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	log.Info("account deleted")
	render.JSON(w, r, response.OK())
}
