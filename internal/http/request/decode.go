// Package request декодирует и валидирует JSON-тела запросов.
package request

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

// MaxBodyBytes предельный размер тела запроса.
const MaxBodyBytes = 1 << 20

// Decode читает JSON в dst и валидирует его. При ошибке пишет ответ и возвращает false.
func Decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, validate *validator.Validate, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(dst); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		log.Error("validation failed", sl.Err(err))
		var verrs validator.ValidationErrors
		render.Status(r, http.StatusUnprocessableEntity)
		if errors.As(err, &verrs) {
			render.JSON(w, r, response.ValidationError(verrs))
		} else {
			render.JSON(w, r, response.Error("invalid request"))
		}
		return false
	}
	return true
}
