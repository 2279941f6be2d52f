// Package analysis реализует HTTP-обработчики проверки текста и истории проверок.
package analysis

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/aicheck/internal/http/middlewarectx"
	"github.com/magabrotheeeer/aicheck/internal/http/request"
	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/models"
	analysisservice "github.com/magabrotheeeer/aicheck/internal/services/analysis"
)

// Service описывает анализ текста и историю.
type Service interface {
	Analyze(ctx context.Context, userUID, text string) (*analysisservice.Result, error)
	History(ctx context.Context, userUID string) ([]*models.Analysis, error)
	Get(ctx context.Context, userUID, id string) (*models.Analysis, error)
	Clear(ctx context.Context, userUID string) (int64, error)
}

// Handler обрабатывает запросы анализа.
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
		slog.String("user_uid", middlewarectx.UserUIDFrom(r.Context())),
	)
}

// Analyze godoc
// @Summary Проверка текста
// @Description Проверяет лимит, отправляет текст детектору и сохраняет результат в истории.
// @Tags Analysis
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.AnalysisRequest true "Текст"
// @Success 201 {object} response.Response
// @Failure 402 {object} response.ErrorResponse "Лимит исчерпан"
// @Failure 422 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse "Детектор недоступен"
// @Router /analyses [post]
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.analysis.Analyze"
	log := h.logger(r, op)

	var req models.AnalysisRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Analyze(r.Context(), middlewarectx.UserUIDFrom(r.Context()), req.Text)
	if err != nil {
		log.Error("analysis failed", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	log.Info("analysis stored", slog.String("analysis_id", res.Analysis.ID), slog.String("file_name", req.FileName))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(res))
}

// History godoc
// @Summary История проверок
// @Tags Analysis
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /analyses [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.analysis.History"
	log := h.logger(r, op)

	list, err := h.service.History(r.Context(), middlewarectx.UserUIDFrom(r.Context()))
	if err != nil {
		log.Error("failed to list analyses", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(list))
}

// Get godoc
// @Summary Результат проверки
// @Tags Analysis
// @Security BearerAuth
// @Produce json
// @Param id path string true "ID анализа"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse
// @Router /analyses/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.analysis.Get"
	log := h.logger(r, op)

	id := chi.URLParam(r, "id")
	a, err := h.service.Get(r.Context(), middlewarectx.UserUIDFrom(r.Context()), id)
	if err != nil {
		log.Error("failed to get analysis", sl.Err(err), slog.String("analysis_id", id))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(a))
}

// Clear godoc
// @Summary Очистка истории
// @Tags Analysis
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /analyses [delete]
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.analysis.Clear"
	log := h.logger(r, op)

	n, err := h.service.Clear(r.Context(), middlewarectx.UserUIDFrom(r.Context()))
	if err != nil {
		log.Error("failed to clear history", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	render.JSON(w, r, response.OKWithData(map[string]int64{"deleted": n}))
}
