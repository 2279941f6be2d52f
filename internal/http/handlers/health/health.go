// Package health реализует проверку готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

const checkTimeout = 2 * time.Second

// Checker проверяет одну зависимость.
type Checker func(ctx context.Context) error

// Handler опрашивает зависимости сервиса.
type Handler struct {
	log    *slog.Logger
	checks map[string]Checker
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, checks map[string]Checker) *Handler {
	return &Handler{log: log, checks: checks}
}

// ServeHTTP godoc
// @Summary Проверка готовности
// @Tags Health
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.ErrorResponse
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("dependency unavailable", sl.Op(op), slog.String("dependency", name), sl.Err(err))
			statuses[name] = "unavailable"
			healthy = false
			continue
		}
		statuses[name] = "ok"
	}

	if !healthy {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Response{Status: response.StatusError, Error: "service unavailable", Data: statuses})
		return
	}
	render.JSON(w, r, response.OKWithData(statuses))
}
