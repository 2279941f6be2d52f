// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков и сопоставления ошибок
// приложения со статусами HTTP.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status статус запроса ("OK" или "Error").
// Поле Error текст ошибки (опционально, при неуспехе).
// Поле Data данные ответа (опционально, при успехе).
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse структура ошибки для Swagger-документации.
// Используется в аннотациях @Failure как возвращаемый тип ошибки.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
}

const (
	// StatusOK значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// UpgradePrompt добавляется к сообщению об исчерпанном лимите.
const UpgradePrompt = "You have used all checks included in your plan. Upgrade your plan to continue."

// OK возвращает успешный Response без данных.
func OK() Response {
	return Response{Status: StatusOK}
}

// OKWithData возвращает успешный Response с переданными данными.
func OKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of [%s]", err.Field(), err.Param()))
		case "gt":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be greater than %s", err.Field(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// StatusFor возвращает HTTP-статус для ошибки приложения.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrLimitExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, apperr.ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MessageFor возвращает текст ошибки для клиента без внутренних подробностей.
func MessageFor(err error) string {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return stripOps(err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return "not found"
	case errors.Is(err, apperr.ErrLimitExceeded):
		return UpgradePrompt
	case errors.Is(err, apperr.ErrAuthRequired):
		return "authentication required"
	case errors.Is(err, apperr.ErrUpstream):
		return "detection service unavailable"
	case errors.Is(err, apperr.ErrStorage):
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}

// Fail пишет ответ с ошибкой приложения.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, StatusFor(err))
	render.JSON(w, r, Error(MessageFor(err)))
}

// stripOps убирает префиксы вида "pkg.Func: " из текста ошибки.
func stripOps(msg string) string {
	parts := strings.Split(msg, ": ")
	i := 0
	for i < len(parts)-1 && strings.Contains(parts[i], ".") && !strings.Contains(parts[i], " ") {
		i++
	}
	return strings.Join(parts[i:], ": ")
}
