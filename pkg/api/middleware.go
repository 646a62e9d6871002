package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/group"
	"github.com/ZentaChain/zentalk-groupchat/pkg/node"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
	"github.com/ZentaChain/zentalk-groupchat/pkg/session"
)

// CORSMiddleware lets browser clients call the API from any origin
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// DefaultRateLimitClients bounds how many client addresses are tracked
const DefaultRateLimitClients = 4096

// RateLimiter gives every client address a token bucket refilled at
// perMinute requests per minute. The least recently seen clients are
// forgotten once DefaultRateLimitClients are tracked.
type RateLimiter struct {
	perMinute int
	every     rate.Limit

	mu      sync.Mutex
	clients *lru.Cache
}

// NewRateLimiter creates a limiter allowing perMinute requests per client
func NewRateLimiter(perMinute int) (*RateLimiter, error) {
	if perMinute <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", perMinute)
	}
	clients, err := lru.New(DefaultRateLimitClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		perMinute: perMinute,
		every:     rate.Every(time.Minute / time.Duration(perMinute)),
		clients:   clients,
	}, nil
}

// Allow reports whether a request from ip may proceed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.clients.Get(ip); ok {
		return v.(*rate.Limiter).Allow()
	}
	l := rate.NewLimiter(rl.every, rl.perMinute)
	rl.clients.Add(ip, l)
	return l.Allow()
}

// RateLimitMiddleware rejects clients over their budget with 429
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "Rate limit exceeded",
				Message: fmt.Sprintf("Maximum %d requests per minute", limiter.perMinute),
			})
			return
		}
		c.Next()
	}
}

// LoggingMiddleware logs failed requests and any handler errors
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		log.Printf("⚠️  API %s %s -> %d in %v %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.Errors.String())
	}
}

// AuthMiddleware validates API keys
func AuthMiddleware(validAPIKeys map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Missing API key"})
			return
		}

		if !validAPIKeys[apiKey] {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid API key"})
			return
		}

		c.Next()
	}
}

// ErrorResponse is a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// SuccessResponse is a standard success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// errorStatus maps engine errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrChatNotFound),
		errors.Is(err, group.ErrPeerNotFound):
		return http.StatusNotFound

	case errors.Is(err, group.ErrNotPermitted),
		errors.Is(err, group.ErrBanned):
		return http.StatusForbidden

	case errors.Is(err, group.ErrNotJoined),
		errors.Is(err, group.ErrWrongState),
		errors.Is(err, group.ErrAlreadyBanned),
		errors.Is(err, group.ErrStaleCertificate),
		errors.Is(err, group.ErrDuplicateCertificate),
		errors.Is(err, session.ErrAlreadyInChat):
		return http.StatusConflict

	case errors.Is(err, group.ErrNickTooLong),
		errors.Is(err, group.ErrTopicTooLong),
		errors.Is(err, group.ErrMessageTooLong),
		errors.Is(err, group.ErrPartTooLong),
		errors.Is(err, group.ErrEmptyPayload),
		errors.Is(err, group.ErrInvalidStatus),
		errors.Is(err, group.ErrFromSelf),
		errors.Is(err, crypto.ErrInvalidKey),
		errors.Is(err, protocol.ErrPacketTooLarge):
		return http.StatusBadRequest

	case errors.Is(err, node.ErrNotRunning),
		errors.Is(err, session.ErrKilled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err as an ErrorResponse
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	code := errorStatus(err)
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: err.Error(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request",
		Message: msg,
	})
}
