// Package tasks defines the background jobs and their admin API.
package tasks

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/modules/gateway"
	pkgcron "github.com/lumenfest/core/internal/pkg/cron"
	"github.com/lumenfest/core/internal/pkg/response"
	"github.com/lumenfest/core/internal/store"
	"go.uber.org/zap"
)

const (
	JobDailySummary = "daily-metrics-summary"
	JobCounterPurge = "rate-counter-purge"

	// Counters untouched for this long carry no useful state; any window or
	// block they held has long expired.
	counterRetention = 7 * 24 * time.Hour
)

// RegisterJobs adds the recurring jobs to the scheduler.
func RegisterJobs(sched *pkgcron.Scheduler, st store.Store, hub *gateway.Hub, log *zap.Logger) {
	sched.Register(pkgcron.Job{
		Name:        JobDailySummary,
		Description: "log and broadcast yesterday's subscription metrics",
		Interval:    24 * time.Hour,
		Fn:          dailySummary(st, hub, log),
	})
	sched.Register(pkgcron.Job{
		Name:        JobCounterPurge,
		Description: "delete rate counters idle for more than a week",
		Interval:    24 * time.Hour,
		Fn:          counterPurge(st, log),
	})
}

func dailySummary(st store.Store, hub *gateway.Hub, log *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
		m, err := st.GetDailyMetrics(ctx, date)
		if err != nil {
			return err
		}
		if m == nil {
			log.Info("daily summary: no activity", zap.String("date", date))
			return nil
		}
		log.Info("daily summary",
			zap.String("date", date),
			zap.Int("newSubscriptions", m.NewSubscriptions),
			zap.Int("unsubscriptions", m.Unsubscriptions),
			zap.Int("netGrowth", m.NetGrowth),
			zap.Int("rateLimited", m.RateLimited),
			zap.Int("spamAttempts", m.SpamAttempts),
			zap.Int("uniqueIPs", m.UniqueIPs),
		)
		if hub != nil {
			hub.BroadcastAdmin("daily-summary", m)
		}
		return nil
	}
}

func counterPurge(st store.Store, log *zap.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-counterRetention).UnixMilli()
		removed, err := st.PurgeRateCounters(ctx, cutoff)
		if err != nil {
			return err
		}
		if removed > 0 {
			log.Info("purged stale rate counters", zap.Int64("removed", removed))
		}
		return nil
	}
}

// Handler exposes the scheduler over the admin API.
type Handler struct {
	sched *pkgcron.Scheduler
}

func NewHandler(sched *pkgcron.Scheduler) *Handler {
	return &Handler{sched: sched}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/admin/jobs", authMW)
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name/run", h.run)
}

func (h *Handler) list(c *gin.Context) {
	response.OK(c, "", h.sched.List())
}

func (h *Handler) get(c *gin.Context) {
	item, err := h.sched.Status(c.Param("name"))
	if err != nil {
		response.NotFound(c, response.CodeInvalidRequest, "job not found")
		return
	}
	response.OK(c, "", item)
}

func (h *Handler) run(c *gin.Context) {
	if err := h.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
		response.NotFound(c, response.CodeInvalidRequest, "job not found")
		return
	}
	response.OK(c, "job triggered", nil)
}
