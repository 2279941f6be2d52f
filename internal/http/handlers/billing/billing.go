// Package billing реализует HTTP-обработчики оформления, отмены и проверки подписки.
package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/aicheck/internal/entitlement"
	"github.com/magabrotheeeer/aicheck/internal/http/middlewarectx"
	"github.com/magabrotheeeer/aicheck/internal/http/request"
	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// Service описывает подписки пользователя.
type Service interface {
	Subscribe(ctx context.Context, userUID string, plan models.PlanID, cycle models.BillingCycle) (*models.Subscription, error)
	Cancel(ctx context.Context, userUID string) (*models.Subscription, error)
	Status(ctx context.Context, userUID string) (*models.Subscription, error)
	CreatePaymentIntent(ctx context.Context, amount int64, currency string) (*models.PaymentIntent, error)
}

// SubscribeRequest выбранный тариф и период оплаты.
type SubscribeRequest struct {
	Plan  string `json:"plan" validate:"required,oneof=basic premium"`
	Cycle string `json:"cycle" validate:"required"`
}

// PaymentIntentRequest сумма в минимальных единицах валюты.
type PaymentIntentRequest struct {
	Amount   int64  `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

// StatusResponse текущая подписка пользователя.
type StatusResponse struct {
	Active       bool                 `json:"active"`
	Subscription *models.Subscription `json:"subscription"`
}

// Handler обрабатывает запросы биллинга.
type Handler struct {
	log             *slog.Logger
	service         Service
	validate        *validator.Validate
	defaultCurrency string
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service, defaultCurrency string) *Handler {
	return &Handler{
		log:             log,
		service:         service,
		validate:        validator.New(),
		defaultCurrency: defaultCurrency,
	}
}

func (h *Handler) logger(r *http.Request, op string) *slog.Logger {
	return h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("user_uid", middlewarectx.UserUIDFrom(r.Context())),
	)
}

// Subscribe godoc
// @Summary Оформление подписки
// @Description Заменяет текущую подписку, обновляет тариф и лимит пользователя.
// @Tags Billing
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SubscribeRequest true "Тариф и период"
// @Success 201 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /billing/subscription [post]
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.Subscribe"
	log := h.logger(r, op)

	var req SubscribeRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	cycle, err := entitlement.ParseCycle(req.Cycle)
	if err != nil {
		log.Error("invalid billing cycle", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	sub, err := h.service.Subscribe(r.Context(), middlewarectx.UserUIDFrom(r.Context()), entitlement.NormalizePlan(req.Plan), cycle)
	if err != nil {
		log.Error("subscription failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	log.Info("subscription created", slog.String("subscription_id", sub.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(sub))
}

// Status godoc
// @Summary Текущая подписка
// @Tags Billing
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /billing/subscription [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.Status"
	log := h.logger(r, op)

	sub, err := h.service.Status(r.Context(), middlewarectx.UserUIDFrom(r.Context()))
	if err != nil {
		log.Error("failed to get subscription status", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(StatusResponse{Active: sub != nil, Subscription: sub}))
}

// Cancel godoc
// @Summary Отмена подписки
// @Description Подписка действует до конца оплаченного периода.
// @Tags Billing
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /billing/subscription [delete]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.Cancel"
	log := h.logger(r, op)

	sub, err := h.service.Cancel(r.Context(), middlewarectx.UserUIDFrom(r.Context()))
	if err != nil {
		log.Error("failed to cancel subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(sub))
}

// PaymentIntent godoc
// @Summary Мок платёжного намерения
// @Tags Billing
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body PaymentIntentRequest true "Сумма и валюта"
// @Success 201 {object} response.Response
// @Failure 422 {object} response.ErrorResponse
// @Router /billing/payment-intent [post]
func (h *Handler) PaymentIntent(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.PaymentIntent"
	log := h.logger(r, op)

	var req PaymentIntentRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = h.defaultCurrency
	}
	pi, err := h.service.CreatePaymentIntent(r.Context(), req.Amount, req.Currency)
	if err != nil {
		log.Error("failed to create payment intent", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(pi))
}
