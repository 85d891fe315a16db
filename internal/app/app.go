// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/carify/identity-service/internal/config"
	"github.com/carify/identity-service/internal/identity"
	identityjwt "github.com/carify/identity-service/internal/identity/jwt"
	"github.com/carify/identity-service/internal/notifications"
	"github.com/carify/identity-service/internal/notifications/email"
	"github.com/carify/identity-service/internal/onboarding"
	"github.com/carify/identity-service/internal/pkg/ctxlog"
	"github.com/carify/identity-service/internal/pkg/httputil"
	"github.com/carify/identity-service/internal/pkg/metrics"
	"github.com/carify/identity-service/internal/pkg/postgres"
	"github.com/carify/identity-service/internal/store"
	storebolt "github.com/carify/identity-service/internal/store/bolt"
	storepostgres "github.com/carify/identity-service/internal/store/postgres"
	"github.com/carify/identity-service/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	store         store.Store
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	workerCancel  context.CancelFunc
	flowManager   *onboarding.FlowManager
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	workerCtx, workerCancel := context.WithCancel(context.Background())

	app := &App{
		config:       cfg,
		logger:       logger,
		workerCancel: workerCancel,
	}

	if err := app.openStore(workerCtx); err != nil {
		workerCancel()
		return nil, err
	}

	router, err := app.setupRouter(workerCtx)
	if err != nil {
		_ = app.store.Close()
		workerCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// openStore opens the credential store selected by configuration.
func (a *App) openStore(metricsCtx context.Context) error {
	switch a.config.Storage.Driver {
	case "bolt":
		boltStore, err := storebolt.Open(a.config.Bolt.Path)
		if err != nil {
			return fmt.Errorf("open bolt store: %w", err)
		}
		a.store = boltStore
		a.logger.Info("using standalone bolt store", "path", a.config.Bolt.Path)
		return nil

	case "postgres":
		if a.config.Database.Migrate {
			if err := storepostgres.Migrate(a.config.Database.URL); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
		}

		connectCtx, cancel := context.WithTimeout(context.Background(), a.config.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             a.config.Database.URL,
			MaxOpenConns:    a.config.Database.MaxOpenConns,
			MaxIdleConns:    a.config.Database.MaxIdleConns,
			ConnMaxLifetime: a.config.Database.ConnMaxLifetime,
			ConnectAttempts: a.config.Database.ConnectAttempts,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		a.db = db
		a.store = storepostgres.NewRepository(db)
		go a.collectDBMetrics(metricsCtx)
		return nil

	default:
		return fmt.Errorf("unknown storage driver %q", a.config.Storage.Driver)
	}
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.workerCancel()

	if a.flowManager != nil {
		a.flowManager.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Store returns the credential store. Used in tests to seed state.
func (a *App) Store() store.Store {
	return a.store
}

func (a *App) setupRouter(workerCtx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	emailSender, err := email.NewSender(email.Config{
		Enabled:      a.config.Notifications.Email.Enabled,
		SMTPHost:     a.config.Notifications.Email.SMTPHost,
		SMTPPort:     a.config.Notifications.Email.SMTPPort,
		SMTPUser:     a.config.Notifications.Email.SMTPUser,
		SMTPPassword: a.config.Notifications.Email.SMTPPassword,
		FromAddress:  a.config.Notifications.Email.FromAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	if !a.config.Notifications.Email.Enabled {
		slog.Warn("email sender is disabled: verification messages will not be sent")
	}

	mailer, err := notifications.NewMailer(emailSender, a.config.Notifications.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create mailer: %w", err)
	}

	a.flowManager = onboarding.NewFlowManager(a.config.Registration.FlowTTL)
	a.flowManager.Start(workerCtx, a.config.Registration.SweepInterval)

	onboardingService := onboarding.NewService(a.store, a.flowManager, mailer)
	onboardingHandler := onboarding.NewHandler(onboardingService)

	tokenAuth := identityjwt.NewAuthenticator(identityjwt.Config{
		SecretKey:     a.config.JWT.SecretKey,
		TokenDuration: a.config.JWT.TokenDuration,
	})
	identityService := identity.NewService(a.store, tokenAuth, identity.BuiltinAdmin{
		Name:     a.config.Admin.Name,
		Email:    a.config.Admin.Email,
		Password: a.config.Admin.Password,
	})
	identityHandler := identity.NewHandler(identityService)

	loginLimiter := httputil.NewRateLimiter(a.config.RateLimit.LoginRPS, a.config.RateLimit.LoginBurst)

	r.Route("/api/v1", func(r chi.Router) {
		onboardingHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(loginLimiter.Middleware)
			identityHandler.RegisterRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))
			identityHandler.RegisterProtectedRoutes(r)
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
