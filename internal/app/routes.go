package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/middleware"
	"github.com/lumenfest/core/internal/modules/gateway"
	"github.com/lumenfest/core/internal/modules/health"
	"github.com/lumenfest/core/internal/modules/subscription"
	"github.com/lumenfest/core/internal/modules/tasks"
	"github.com/lumenfest/core/internal/pkg/ident"
	"github.com/lumenfest/core/internal/pkg/response"
)

var processStart = time.Now()

func (a *App) registerRoutes(hasher *ident.Hasher) {
	a.router.NoRoute(response.NotFoundRoute)
	a.router.NoMethod(response.MethodNotAllowed)

	a.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "lumenfest-core",
			"version": Version,
			"uptime":  time.Since(processStart).Round(time.Second).String(),
		})
	})

	api := a.router.Group("/api/v1")
	authMW := middleware.AdminAuth(a.cfg.AdminToken)

	svc := subscription.NewService(a.st, hasher, a.logger)
	limiter := subscription.NewLimiter(a.st, a.cfg.RateLimits, a.logger)
	sink := subscription.NewAbuseSink(a.st, a.hub, a.logger)

	subscription.NewHandler(svc, limiter, sink, hasher, a.hub, a.logger).RegisterRoutes(api)
	subscription.NewAdminHandler(a.st, limiter, a.logger).RegisterRoutes(api, authMW)
	tasks.NewHandler(a.sched).RegisterRoutes(api, authMW)
	health.NewHandler(a.st, a.rc, Version).RegisterRoutes(api)

	gateway.RegisterRoutes(a.router.Group(""), a.hub)
}
