// Package aicheck собирает HTTP-приложение: хранилища, сервисы, мониторы сессий и маршруты.
package aicheck

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	analysishandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/analysis"
	authhandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/auth"
	billinghandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/billing"
	"github.com/magabrotheeeer/aicheck/internal/http/handlers/health"
	sessionhandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/session"
	usagehandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/usage"
	"github.com/magabrotheeeer/aicheck/internal/http/middlewarectx"
)

// Routes обработчики и middleware, из которых собирается роутер.
type Routes struct {
	Auth     *authhandler.Handler
	Session  *sessionhandler.Handler
	Billing  *billinghandler.Handler
	Analysis *analysishandler.Handler
	Usage    *usagehandler.Handler
	Health   *health.Handler

	Tokens   middlewarectx.TokenValidator
	Activity middlewarectx.ActivityRecorder
	Limiter  *middlewarectx.RateLimiter
	Metrics  http.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, rt Routes) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(rt.Limiter.Middleware(logger))
			r.Post("/register", rt.Auth.Register)
			r.Post("/login", rt.Auth.Login)
			r.Post("/password/reset", rt.Auth.ResetPassword)
			r.Post("/password/reset/confirm", rt.Auth.ConfirmReset)
			r.Post("/email/verify", rt.Auth.VerifyEmail)
			r.Get("/plans", rt.Usage.Plans)
			r.Method(http.MethodGet, "/health", rt.Health)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(rt.Tokens, logger))
			r.Use(rt.Limiter.Middleware(logger))

			// Запросы к монитору сессии не продлевают её.
			r.Get("/session", rt.Session.State)
			r.Post("/session/activity", rt.Session.Activity)
			r.Post("/session/visibility", rt.Session.Visibility)
			r.Post("/session/stay", rt.Session.Stay)
			r.Post("/session/logout", rt.Session.Logout)

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.ActivityMiddleware(rt.Activity, logger))
				r.Post("/logout", rt.Auth.Logout)
				r.Post("/email/verification", rt.Auth.SendVerification)
				r.Get("/email/verified", rt.Auth.CheckVerified)
				r.Delete("/account", rt.Auth.DeleteAccount)

				r.Get("/usage", rt.Usage.Usage)

				r.Post("/analyses", rt.Analysis.Analyze)
				r.Get("/analyses", rt.Analysis.History)
				r.Get("/analyses/{id}", rt.Analysis.Get)
				r.Delete("/analyses", rt.Analysis.Clear)

				r.Post("/billing/subscription", rt.Billing.Subscribe)
				r.Get("/billing/subscription", rt.Billing.Status)
				r.Delete("/billing/subscription", rt.Billing.Cancel)
				r.Post("/billing/payment-intent", rt.Billing.PaymentIntent)
			})
		})
	})

	r.Handle("/metrics", rt.Metrics)
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
