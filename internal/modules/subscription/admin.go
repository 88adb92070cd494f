package subscription

import (
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/pkg/response"
	"github.com/lumenfest/core/internal/store"
	"go.uber.org/zap"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// AdminHandler exposes the operator surface: subscriber listing, daily
// metrics, the manual rate-limit override, and the abuse log.
type AdminHandler struct {
	store   store.Store
	limiter *Limiter
	log     *zap.Logger
}

// NewAdminHandler wires the operator endpoints.
func NewAdminHandler(st store.Store, limiter *Limiter, log *zap.Logger) *AdminHandler {
	return &AdminHandler{store: st, limiter: limiter, log: log}
}

// RegisterRoutes mounts the admin endpoints; authMW must enforce the operator
// token.
func (h *AdminHandler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/admin", authMW)
	g.GET("/subscribers", h.listSubscribers)
	g.GET("/metrics/:date", h.getMetrics)
	g.POST("/block", h.manualBlock)
	g.GET("/abuse", h.listAbuse)
}

func (h *AdminHandler) listSubscribers(c *gin.Context) {
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	size, _ := strconv.ParseInt(c.DefaultQuery("size", "20"), 10, 64)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	recs, total, err := h.store.ListSubscriptions(c.Request.Context(), (page-1)*size, size)
	if err != nil {
		h.log.Error("list subscribers failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	response.OK(c, "ok", gin.H{
		"subscribers": recs,
		"total":       total,
		"page":        page,
		"size":        size,
	})
}

func (h *AdminHandler) getMetrics(c *gin.Context) {
	date := c.Param("date")
	if !datePattern.MatchString(date) {
		response.BadRequest(c, response.CodeInvalidRequest, "date must be YYYY-MM-DD")
		return
	}
	m, err := h.store.GetDailyMetrics(c.Request.Context(), date)
	if err != nil {
		h.log.Error("get metrics failed", zap.String("date", date), zap.Error(err))
		response.InternalError(c)
		return
	}
	if m == nil {
		response.NotFound(c, response.CodeInvalidRequest, "no metrics for that day")
		return
	}
	response.OK(c, "ok", m)
}

func (h *AdminHandler) manualBlock(c *gin.Context) {
	var dto BlockDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, response.CodeInvalidRequest, "scope, key, and durationMinutes are required")
		return
	}
	duration := time.Duration(dto.DurationMinutes) * time.Minute
	if err := h.limiter.Block(c.Request.Context(), dto.Scope, dto.Key, duration); err != nil {
		response.BadRequest(c, response.CodeInvalidRequest, err.Error())
		return
	}
	response.OK(c, "block applied", gin.H{
		"scope":        dto.Scope,
		"blockedUntil": time.Now().Add(duration).UTC().Format(time.RFC3339),
	})
}

func (h *AdminHandler) listAbuse(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	events, err := h.store.ListAbuseEvents(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("list abuse events failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	response.OK(c, "ok", gin.H{"events": events})
}
