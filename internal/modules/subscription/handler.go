package subscription

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenfest/core/internal/models"
	"github.com/lumenfest/core/internal/modules/gateway"
	"github.com/lumenfest/core/internal/pkg/ident"
	"github.com/lumenfest/core/internal/pkg/response"
	"github.com/lumenfest/core/internal/store"
	"go.uber.org/zap"
)

const thanksMessage = "Thanks for subscribing! See you at the festival."

// Handler sequences the admission pipeline for the subscribe endpoint:
// honeypot short-circuit → email validation → rate limiting → spam scoring →
// subscription write → metrics update.
type Handler struct {
	svc     *Service
	limiter *Limiter
	sink    *AbuseSink
	hasher  *ident.Hasher
	hub     *gateway.Hub // optional, ambient presence on the landing page
	log     *zap.Logger
	now     func() time.Time
}

// NewHandler wires the pipeline.
func NewHandler(svc *Service, limiter *Limiter, sink *AbuseSink, hasher *ident.Hasher, hub *gateway.Hub, log *zap.Logger) *Handler {
	return &Handler{svc: svc, limiter: limiter, sink: sink, hasher: hasher, hub: hub, log: log, now: time.Now}
}

// RegisterRoutes mounts the public subscription endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/subscribe")
	g.POST("", h.subscribe)

	rg.POST("/unsubscribe", h.unsubscribe)
	rg.GET("/unsubscribe", h.unsubscribeByQuery) // mail-client link
}

func (h *Handler) subscribe(c *gin.Context) {
	var dto SubscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, response.CodeInvalidRequest, "email is required")
		return
	}

	ctx := c.Request.Context()
	ipHash := h.hasher.HashIP(c.ClientIP())
	emailHash := h.hasher.HashEmail(dto.Email)
	userAgent := c.Request.UserAgent()

	// Honeypot first. Bots get a response indistinguishable from success so
	// they have no signal to adapt on.
	if strings.TrimSpace(dto.Honeypot) != "" {
		h.sink.Record(ctx, models.AbuseHoneypotFilled, models.SeverityHigh, models.AbuseDetails{
			EmailHash: emailHash,
			IPHash:    ipHash,
			UserAgent: userAgent,
			Reason:    "honeypot-filled",
		})
		h.svc.RecordMetrics(ctx, store.MetricsDelta{SpamAttempts: 1, IPHash: ipHash})
		h.fakeSuccess(c)
		return
	}

	if check := ValidateEmail(dto.Email); !check.Valid {
		h.rejectInvalidEmail(c, check, emailHash, ipHash, userAgent)
		return
	}

	decision, err := h.limiter.CheckAll(ctx, ipHash, emailHash)
	if err != nil {
		h.log.Error("rate limit check failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	if !decision.Allowed {
		h.sink.Record(ctx, models.AbuseRateLimit, models.SeverityMedium, models.AbuseDetails{
			EmailHash: emailHash,
			IPHash:    ipHash,
			UserAgent: userAgent,
			Reason:    "rate-limit:" + decision.Scope,
		})
		h.svc.RecordMetrics(ctx, store.MetricsDelta{RateLimited: 1, IPHash: ipHash})
		retry := int(decision.RetryAfter.Round(time.Second).Seconds())
		if retry < 1 {
			retry = 1
		}
		response.RateLimited(c, retry, "too many attempts, please try again later")
		return
	}
	c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

	verdict := DetectSpam(SpamInput{
		Email:           dto.Email,
		Honeypot:        dto.Honeypot,
		ClientTimestamp: dto.Timestamp,
		UserAgent:       userAgent,
		IP:              c.ClientIP(),
	}, h.now())
	if verdict.IsSpam {
		h.sink.Record(ctx, models.AbuseSpamDetected, models.SeverityMedium, models.AbuseDetails{
			EmailHash: emailHash,
			IPHash:    ipHash,
			UserAgent: userAgent,
			Reason:    verdict.Reason,
			Extra:     response.CodeSpamDetected + " flags=" + strings.Join(verdict.Flags, ","),
		})
		h.svc.RecordMetrics(ctx, store.MetricsDelta{SpamAttempts: 1, IPHash: ipHash})
		// Silently accepted: no write happens, the client sees success.
		h.fakeSuccess(c)
		return
	}

	meta := models.SubscriberMetadata{
		IPHash:    ipHash,
		UserAgent: userAgent,
		Country:   c.GetHeader("CF-IPCountry"),
		Referrer:  c.Request.Referer(),
		Locale:    firstLocale(c.GetHeader("Accept-Language")),
	}
	source := dto.Source
	if source == "" {
		source = "landing-page"
	}

	out, err := h.svc.Subscribe(ctx, strings.TrimSpace(dto.Email), source, meta)
	if err != nil {
		h.log.Error("subscription write failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	if out.AlreadySubscribed {
		response.Outcome(c, response.CodeAlreadySubscribed, "this email is already subscribed")
		return
	}

	h.svc.RecordMetrics(ctx, store.MetricsDelta{NewSubscriptions: 1, IPHash: ipHash})
	if h.hub != nil {
		// Anonymous: the landing page only shows that someone joined.
		h.hub.BroadcastPublic("subscriber-joined", map[string]string{"source": source})
	}
	response.OK(c, thanksMessage, subscribedData{
		Status:       out.Record.Status,
		SubscribedAt: out.Record.LastSubscribedAt.Format(time.RFC3339),
	})
}

func (h *Handler) rejectInvalidEmail(c *gin.Context, check EmailCheck, emailHash, ipHash, userAgent string) {
	eventType := models.AbuseInvalidEmail
	code := response.CodeInvalidEmail
	message := "please enter a valid email address"

	switch check.Reason {
	case "malicious-content":
		eventType = models.AbuseMaliciousContent
	case "disposable-domain":
		eventType = models.AbuseDisposableEmail
		code = response.CodeDisposableEmail
		message = "disposable email addresses are not accepted"
	case "suspicious-local-part", "repeated-characters", "reserved-domain":
		eventType = models.AbuseSuspiciousPattern
	case "typo-domain":
		message = "did you mean @" + check.Suggestion + "?"
	}

	h.sink.Record(c.Request.Context(), eventType, check.Severity, models.AbuseDetails{
		EmailHash: emailHash,
		IPHash:    ipHash,
		UserAgent: userAgent,
		Reason:    check.Reason,
	})
	response.BadRequest(c, code, message)
}

// fakeSuccess mirrors a genuine subscribe response without touching any
// record. Deliberate deception, see the honeypot handling above.
func (h *Handler) fakeSuccess(c *gin.Context) {
	response.OK(c, thanksMessage, subscribedData{
		Status:       models.StatusSubscribed,
		SubscribedAt: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) unsubscribe(c *gin.Context) {
	var dto UnsubscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, response.CodeInvalidRequest, "token is required")
		return
	}
	h.handleUnsubscribe(c, dto.Token)
}

func (h *Handler) unsubscribeByQuery(c *gin.Context) {
	h.handleUnsubscribe(c, c.Query("token"))
}

func (h *Handler) handleUnsubscribe(c *gin.Context, token string) {
	if !ident.ValidTokenFormat(token) {
		response.BadRequest(c, response.CodeInvalidToken, "malformed unsubscribe token")
		return
	}

	ctx := c.Request.Context()
	out, err := h.svc.Unsubscribe(ctx, token)
	if err != nil {
		h.log.Error("unsubscribe failed", zap.Error(err))
		response.InternalError(c)
		return
	}
	switch {
	case out.NotFound:
		response.NotFound(c, response.CodeInvalidToken, "unknown unsubscribe token")
	case out.AlreadyUnsubscribed:
		response.Outcome(c, response.CodeAlreadyUnsubscribed, "this email is already unsubscribed")
	default:
		h.svc.RecordMetrics(ctx, store.MetricsDelta{Unsubscriptions: 1})
		response.OK(c, "you have been unsubscribed", unsubscribedData{
			Email:          ident.MaskEmail(out.Record.Email),
			UnsubscribedAt: out.Record.UnsubscribedAt.Format(time.RFC3339),
		})
	}
}

func firstLocale(acceptLanguage string) string {
	locale, _, _ := strings.Cut(acceptLanguage, ",")
	locale, _, _ = strings.Cut(locale, ";")
	return strings.TrimSpace(locale)
}

