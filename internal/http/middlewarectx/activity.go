package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

// ActivityRecorder фиксирует активность в сессии.
type ActivityRecorder interface {
	RecordActivity(sessionID, userUID string) error
}

// ActivityMiddleware считает каждый запрос активностью пользователя.
// Монитор сессии с уже проверенным токеном открывается при первом запросе.
func ActivityMiddleware(rec ActivityRecorder, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := rec.RecordActivity(SessionIDFrom(r.Context()), UserUIDFrom(r.Context())); err != nil {
				log.Warn("failed to record session activity",
					sl.Op("middlewarectx.ActivityMiddleware"),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.Err(err),
				)
				response.Fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
