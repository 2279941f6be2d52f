// Package usage реализует HTTP-обработчики сводки использования и каталога тарифов.
package usage

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/aicheck/internal/entitlement"
	"github.com/magabrotheeeer/aicheck/internal/http/middlewarectx"
	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// Service возвращает сводку использования.
type Service interface {
	Summary(ctx context.Context, userUID string) (models.Usage, error)
}

// Handler обрабатывает запросы использования.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// Usage godoc
// @Summary Использование проверок
// @Description Счётчик, лимит, остаток и доступность следующей проверки. Безлимитный тариф имеет limit=-1.
// @Tags Usage
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /usage [get]
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage.Usage"
	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	u, err := h.service.Summary(r.Context(), middlewarectx.UserUIDFrom(r.Context()))
	if err != nil {
		log.Error("failed to get usage", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(u))
}

// Plans godoc
// @Summary Каталог тарифов
// @Tags Usage
// @Produce json
// @Success 200 {object} response.Response
// @Router /plans [get]
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.OKWithData(entitlement.Plans()))
}
