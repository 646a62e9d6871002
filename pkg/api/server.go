// Package api provides the HTTP control API of a group chat node
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/node"
	"github.com/ZentaChain/zentalk-groupchat/pkg/session"
)

// Node is the part of a running node the API drives
type Node interface {
	Do(ctx context.Context, fn func(*session.Session) error) error
	Events(since uint64, limit int) []node.LoggedEvent
	Rejected() map[string]uint64
	PublicKey() crypto.ExtPublicKey
	LocalAddr() netip.AddrPort
	AnnounceAddr() netip.AddrPort
}

// Server represents the HTTP API server of a node
type Server struct {
	node       Node
	router     *gin.Engine
	port       int
	opTimeout  time.Duration
	limiter    *RateLimiter
	httpServer *http.Server
	startedAt  time.Time
}

// Config holds server configuration
type Config struct {
	Port         int
	EnableCORS   bool
	RateLimit    int // Requests per minute
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	OpTimeout    time.Duration // Bound on one call into the node
	APIKeys      []string      // Required in X-API-Key when non-empty
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		RateLimit:    100,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		OpTimeout:    5 * time.Second,
	}
}

// NewServer creates a new HTTP API server
func NewServer(n Node, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = 5 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		node:      n,
		router:    gin.New(),
		port:      config.Port,
		opTimeout: config.OpTimeout,
		startedAt: time.Now(),
	}

	server.setupMiddleware(config)
	server.setupRoutes(config)

	return server
}

// Handler returns the router, for embedding in another server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(config *Config) {
	if config.EnableCORS {
		s.router.Use(CORSMiddleware())
	}

	if config.RateLimit > 0 {
		limiter, err := NewRateLimiter(config.RateLimit)
		if err != nil {
			log.Printf("⚠️  Rate limiting disabled: %v", err)
		} else {
			s.limiter = limiter
			s.router.Use(RateLimitMiddleware(limiter))
		}
	}

	s.router.Use(LoggingMiddleware())
	s.router.Use(gin.Recovery())
}

func (s *Server) setupRoutes(config *Config) {
	v1 := s.router.Group("/api/v1")
	if len(config.APIKeys) > 0 {
		keys := make(map[string]bool, len(config.APIKeys))
		for _, k := range config.APIKeys {
			keys[k] = true
		}
		v1.Use(AuthMiddleware(keys))
	}
	{
		chats := v1.Group("/chats")
		{
			chats.GET("", s.handleListChats)
			chats.POST("", s.handleCreateChat)
			chats.POST("/join", s.handleJoinChat)
			chats.GET("/:group", s.handleGetChat)
			chats.DELETE("/:group", s.handleDeleteChat)

			chats.POST("/:group/messages", s.handleSendMessage)
			chats.PUT("/:group/nick", s.handleSetNick)
			chats.PUT("/:group/topic", s.handleSetTopic)
			chats.PUT("/:group/status", s.handleSetStatus)

			chats.GET("/:group/peers", s.handleListPeers)
			chats.GET("/:group/peers/:peer", s.handleGetPeer)
			chats.POST("/:group/peers/:peer/messages", s.handleSendPrivateMessage)
			chats.POST("/:group/peers/:peer/ban", s.handleBan)
			chats.POST("/:group/peers/:peer/op", s.handleGrantOp)
			chats.DELETE("/:group/peers/:peer/op", s.handleRevokeOp)
			chats.PUT("/:group/peers/:peer/ignore", s.handleIgnore)
		}

		v1.GET("/events", s.handleEvents)
		v1.POST("/requests", s.handleSendRequest)

		nodeGroup := v1.Group("/node")
		{
			nodeGroup.GET("/info", s.handleNodeInfo)
			nodeGroup.GET("/rejected", s.handleRejected)
		}
	}

	// Health check endpoint (outside versioning)
	s.router.GET("/health", s.handleHealth)
}

// Start serves HTTP until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🌐 HTTP API server starting on port %d...", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	log.Println("🛑 Shutting down HTTP API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// do runs fn on the node goroutine, bounded by the request context
func (s *Server) do(c *gin.Context, fn func(*session.Session) error) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opTimeout)
	defer cancel()
	return s.node.Do(ctx, fn)
}
