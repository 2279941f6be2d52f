package aicheck

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/aicheck/internal/billing"
	"github.com/magabrotheeeer/aicheck/internal/config"
	"github.com/magabrotheeeer/aicheck/internal/detector"
	analysishandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/analysis"
	authhandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/auth"
	billinghandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/billing"
	"github.com/magabrotheeeer/aicheck/internal/http/handlers/health"
	sessionhandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/session"
	usagehandler "github.com/magabrotheeeer/aicheck/internal/http/handlers/usage"
	"github.com/magabrotheeeer/aicheck/internal/http/middlewarectx"
	"github.com/magabrotheeeer/aicheck/internal/lib/jwt"
	"github.com/magabrotheeeer/aicheck/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/metrics"
	"github.com/magabrotheeeer/aicheck/internal/migrations"
	analysisservice "github.com/magabrotheeeer/aicheck/internal/services/analysis"
	authservice "github.com/magabrotheeeer/aicheck/internal/services/auth"
	subservice "github.com/magabrotheeeer/aicheck/internal/services/subscription"
	usageservice "github.com/magabrotheeeer/aicheck/internal/services/usage"
	"github.com/magabrotheeeer/aicheck/internal/session"
	"github.com/magabrotheeeer/aicheck/internal/storage/kv"
	"github.com/magabrotheeeer/aicheck/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-сервер aicheck со всеми зависимостями.
type App struct {
	server      *http.Server
	logger      *slog.Logger
	db          *repository.Storage
	kv          *kv.Store
	conn        *amqp.Connection
	ch          *amqp.Channel
	sessions    *session.Registry
	unsubscribe func()
}

// New подключает хранилища и брокер, применяет миграции и собирает роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	sessionCfg := session.Config{Timeout: cfg.InactivityTimeout, Warning: cfg.WarningTime}
	if err := sessionCfg.Validate(); err != nil {
		return nil, err
	}

	db, err := repository.New(ctx, cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err = repository.CheckDatabaseReady(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	store, err := kv.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		_ = store.Close()
		_ = db.Close()
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		_ = store.Close()
		_ = db.Close()
		return nil, err
	}
	publisher := rabbitmq.NewPublisher(ch)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var sessions *session.Registry
	m := metrics.New(reg, func() float64 { return float64(sessions.Len()) })

	billingService := billing.New(store, logger)
	authService := authservice.NewAuthService(db, store, jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL), logger,
		authservice.WithCustomers(billingService),
		authservice.WithNotifier(publisher),
	)
	sessions = session.NewRegistry(sessionCfg, authService.Logout, logger, session.WithExpirationRecorder(m))
	unsubscribe := authService.OnAuthStateChanged(sessions.HandleAuthStateChanged)

	usageService := usageservice.New(db, m, logger)
	detectorClient := detector.NewClient(cfg.Detector.URL, cfg.Detector.APIKey, cfg.Detector.Timeout)
	analysisService := analysisservice.New(detectorClient, db, usageService, store, cfg.AnalysisCacheTTL, m, logger)
	subscriptionService := subservice.NewSubscriptionService(db, billingService, m, publisher, logger)

	checks := map[string]health.Checker{
		"postgres": db.Ping,
		"redis":    store.Ping,
		"rabbitmq": func(context.Context) error {
			if conn.IsClosed() {
				return amqp.ErrClosed
			}
			return nil
		},
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Routes{
		Auth:     authhandler.New(logger, authService),
		Session:  sessionhandler.New(logger, sessions),
		Billing:  billinghandler.New(logger, subscriptionService, cfg.Currency),
		Analysis: analysishandler.New(logger, analysisService),
		Usage:    usagehandler.New(logger, usageService),
		Health:   health.New(logger, checks),
		Tokens:   authService,
		Activity: sessions,
		Limiter:  middlewarectx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP + cfg.Detector.Timeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:      srv,
		logger:      logger,
		db:          db,
		kv:          store,
		conn:        conn,
		ch:          ch,
		sessions:    sessions,
		unsubscribe: unsubscribe,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}
	a.close()
	return err
}

func (a *App) close() {
	a.unsubscribe()
	a.sessions.CloseAll()

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.kv.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
}
