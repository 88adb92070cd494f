package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/pkg/redisc"
	"github.com/lumenfest/core/internal/store"
)

// Handler reports liveness of the service and its backing stores.
type Handler struct {
	store     store.Store
	rc        *redisc.Client // optional
	version   string
	startedAt time.Time
}

func NewHandler(st store.Store, rc *redisc.Client, version string) *Handler {
	return &Handler{store: st, rc: rc, version: version, startedAt: time.Now()}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.health)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		components["database"] = "down: " + err.Error()
		healthy = false
	} else {
		components["database"] = "up"
	}

	if h.rc != nil {
		if err := h.rc.Ping(ctx); err != nil {
			components["redis"] = "down: " + err.Error()
			healthy = false
		} else {
			components["redis"] = "up"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"version":    h.version,
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"components": components,
	})
}
