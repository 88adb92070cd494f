package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/config"
	"github.com/lumenfest/core/internal/middleware"
	"github.com/lumenfest/core/internal/modules/gateway"
	"github.com/lumenfest/core/internal/modules/tasks"
	pkgcron "github.com/lumenfest/core/internal/pkg/cron"
	"github.com/lumenfest/core/internal/pkg/ident"
	"github.com/lumenfest/core/internal/pkg/redisc"
	"github.com/lumenfest/core/internal/store"
	"go.uber.org/zap"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	st     *store.Mongo
	rc     *redisc.Client
	hub    *gateway.Hub
	sched  *pkgcron.Scheduler
	logger *zap.Logger
	cancel context.CancelFunc
}

// New initializes the application: config → document store → Redis → routes.
// Redis is optional; without it the presence gateway runs single-instance and
// the flood guard is disabled.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	hasher, err := ident.NewHasher(cfg.HashKey)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	st, err := store.Connect(context.Background(), cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}

	var rc *redisc.Client
	if cfg.RedisURL != "" {
		rc, err = redisc.Connect(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, presence fan-out and flood guard disabled", zap.Error(err))
			rc = nil
		}
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.FloodGuard(rc))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	hub := gateway.NewHub(rc, logger, middleware.TokenValidator(cfg.AdminToken))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	sched := pkgcron.New()
	tasks.RegisterJobs(sched, st, hub, logger)
	go sched.Start(ctx)

	app := &App{
		cfg:    cfg,
		router: router,
		st:     st,
		rc:     rc,
		hub:    hub,
		sched:  sched,
		logger: logger,
		cancel: cancel,
	}
	app.registerRoutes(hasher)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines and closes connections.
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()
	if a.rc != nil {
		if err := a.rc.Close(); err != nil {
			a.logger.Warn("redis close", zap.Error(err))
		}
	}
	if err := a.st.Close(ctx); err != nil {
		a.logger.Warn("store close", zap.Error(err))
	}
}
