// Package middlewarectx содержит HTTP middleware для проверки JWT токенов,
// учёта активности сессии и ограничения частоты запросов.
//
// JWTMiddleware проверяет наличие и валидность JWT токена в заголовке Authorization
// и в случае успеха добавляет в контекст идентификатор пользователя, сессии и роль.
// В случае ошибки проверки возвращает HTTP 401 Unauthorized с сообщением об ошибке.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/aicheck/internal/http/response"
	"github.com/magabrotheeeer/aicheck/internal/lib/jwt"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserUID ключ для идентификатора пользователя в контексте
	UserUID Key = "user_uid"
	// SessionID ключ для идентификатора сессии в контексте
	SessionID Key = "session_id"
	// Role ключ для роли пользователя в контексте
	Role Key = "role"
)

// TokenValidator описывает проверку JWT токена.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.CustomClaims, error)
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
func JWTMiddleware(auth TokenValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				sl.Op(op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := auth.ValidateToken(r.Context(), tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				render.Status(r, response.StatusFor(err))
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			ctx := context.WithValue(r.Context(), UserUID, claims.UserUID)
			ctx = context.WithValue(ctx, SessionID, claims.SessionID())
			ctx = context.WithValue(ctx, Role, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserUIDFrom возвращает идентификатор пользователя из контекста запроса.
func UserUIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(UserUID).(string)
	return v
}

// SessionIDFrom возвращает идентификатор сессии из контекста запроса.
func SessionIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(SessionID).(string)
	return v
}
