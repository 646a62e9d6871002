package api

import (
	"encoding/base64"
	"net/http"
	"net/netip"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/node"
	"github.com/ZentaChain/zentalk-groupchat/pkg/session"
)

// maxEventsPerPoll bounds one /events response
const maxEventsPerPoll = 500

// NodeInfoResponse contains information about this node
type NodeInfoResponse struct {
	Success      bool                `json:"success"`
	PublicKey    crypto.ExtPublicKey `json:"publicKey"`
	ListenAddr   string              `json:"listenAddr"`
	AnnounceAddr string              `json:"announceAddr,omitempty"`
	ChatCount    int                 `json:"chatCount"`
	StartedAt    time.Time           `json:"startedAt"`
}

// RejectedResponse counts dropped packets per reason
type RejectedResponse struct {
	Success bool              `json:"success"`
	Total   uint64            `json:"total"`
	Reasons map[string]uint64 `json:"reasons"`
}

// EventsResponse is one page of the node's event log
type EventsResponse struct {
	Success bool               `json:"success"`
	Count   int                `json:"count"`
	Next    uint64             `json:"next"`
	Events  []node.LoggedEvent `json:"events"`
}

// HealthResponse contains node health information
type HealthResponse struct {
	Success    bool   `json:"success"`
	Status     string `json:"status"` // "healthy", "unhealthy"
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
}

// SendRequestRequest sends a request envelope to another identity. Data is base64.
type SendRequestRequest struct {
	PublicKey string `json:"publicKey" binding:"required"`
	Addr      string `json:"addr" binding:"required"`
	RequestID *byte  `json:"requestId" binding:"required"`
	Data      string `json:"data"`
}

// handleNodeInfo handles GET /api/v1/node/info
func (s *Server) handleNodeInfo(c *gin.Context) {
	var count int
	if err := s.do(c, func(sess *session.Session) error {
		count = len(sess.Chats())
		return nil
	}); err != nil {
		abortWithError(c, err)
		return
	}

	resp := NodeInfoResponse{
		Success:    true,
		PublicKey:  s.node.PublicKey(),
		ListenAddr: s.node.LocalAddr().String(),
		ChatCount:  count,
		StartedAt:  s.startedAt,
	}
	if a := s.node.AnnounceAddr(); a.IsValid() {
		resp.AnnounceAddr = a.String()
	}

	c.JSON(http.StatusOK, resp)
}

// handleRejected handles GET /api/v1/node/rejected
func (s *Server) handleRejected(c *gin.Context) {
	reasons := s.node.Rejected()

	var total uint64
	for _, n := range reasons {
		total += n
	}

	c.JSON(http.StatusOK, RejectedResponse{Success: true, Total: total, Reasons: reasons})
}

// handleEvents handles GET /api/v1/events?since=N&limit=M
func (s *Server) handleEvents(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		badRequest(c, "since must be a sequence number")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(maxEventsPerPoll)))
	if err != nil || limit <= 0 || limit > maxEventsPerPoll {
		limit = maxEventsPerPoll
	}

	events := s.node.Events(since, limit)
	if events == nil {
		events = []node.LoggedEvent{}
	}

	next := since
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}

	c.JSON(http.StatusOK, EventsResponse{Success: true, Count: len(events), Next: next, Events: events})
}

// handleSendRequest handles POST /api/v1/requests
func (s *Server) handleSendRequest(c *gin.Context) {
	var req SendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	recipient, err := crypto.ParseExtPublicKey(req.PublicKey)
	if err != nil {
		badRequest(c, "publicKey must be a 64-byte hex public key")
		return
	}
	addr, err := netip.ParseAddrPort(req.Addr)
	if err != nil {
		badRequest(c, "addr must be ip:port")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		badRequest(c, "data must be base64")
		return
	}

	err = s.do(c, func(sess *session.Session) error {
		return sess.SendRequest(recipient.EncryptionKey(), addr, *req.RequestID, data)
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{Success: true, Message: "Request sent"})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Success:    true,
		Status:     "healthy",
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	// The node answers within the op timeout when its loop is alive
	if err := s.do(c, func(*session.Session) error { return nil }); err != nil {
		resp.Success = false
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}
