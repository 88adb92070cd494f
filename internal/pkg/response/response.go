package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Stable error codes returned to clients. Do not rename: the landing page
// switches on these.
const (
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeDisposableEmail     = "DISPOSABLE_EMAIL"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeAlreadySubscribed   = "ALREADY_SUBSCRIBED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeAlreadyUnsubscribed = "ALREADY_UNSUBSCRIBED"
	CodeServerError         = "SERVER_ERROR"
	CodeSpamDetected        = "SPAM_DETECTED"
)

// ErrorBody carries the machine-stable part of a failure response.
type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter *int   `json:"retryAfter,omitempty"` // seconds
}

// Envelope is the wire shape of every subscription API response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// OK sends a 200 success envelope.
func OK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Outcome sends a 200 envelope for a recognized no-op (already subscribed,
// already unsubscribed). The request did not fail, but nothing changed.
func Outcome(c *gin.Context, code, message string) {
	c.JSON(http.StatusOK, Envelope{
		Success: false,
		Message: message,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// BadRequest sends a 400 envelope with a specific error code.
func BadRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{
		Success: false,
		Message: message,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// NotFound sends a 404 envelope.
func NotFound(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusNotFound, Envelope{
		Success: false,
		Message: message,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// RateLimited sends a 429 envelope with Retry-After and X-RateLimit-Remaining
// headers. retryAfter is in seconds.
func RateLimited(c *gin.Context, retryAfter int, message string) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-RateLimit-Remaining", "0")
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Envelope{
		Success: false,
		Message: message,
		Error:   &ErrorBody{Code: CodeRateLimitExceeded, Message: message, RetryAfter: &retryAfter},
	})
}

// Unauthorized sends a 401 envelope.
func Unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{
		Success: false,
		Message: "authorization required",
		Error:   &ErrorBody{Code: CodeInvalidRequest, Message: "authorization required"},
	})
}

// InternalError sends a 500 envelope. Internal detail is never leaked; the
// cause is expected to be logged by the caller.
func InternalError(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, Envelope{
		Success: false,
		Message: "something went wrong, please try again later",
		Error:   &ErrorBody{Code: CodeServerError, Message: "something went wrong, please try again later"},
	})
}

// NotFoundRoute is the catch-all for unknown paths.
func NotFoundRoute(c *gin.Context) {
	NotFound(c, CodeInvalidRequest, "route not found")
}

// MethodNotAllowed handles known paths with the wrong verb.
func MethodNotAllowed(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, Envelope{
		Success: false,
		Message: "method not allowed",
		Error:   &ErrorBody{Code: CodeInvalidRequest, Message: "method not allowed"},
	})
}
