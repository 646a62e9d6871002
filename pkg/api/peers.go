package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/group"
)

// PeerInfo describes one chat member
type PeerInfo struct {
	Number     uint32              `json:"number"`
	PublicKey  crypto.ExtPublicKey `json:"publicKey"`
	Addr       string              `json:"addr,omitempty"`
	Nick       string              `json:"nick"`
	Status     string              `json:"status"`
	Role       string              `json:"role"`
	Verified   bool                `json:"verified"`
	Banned     bool                `json:"banned"`
	Ignored    bool                `json:"ignored"`
	Close      bool                `json:"close"`
	LastUpdate time.Time           `json:"lastUpdate"`
}

// PeersResponse lists the members of a chat
type PeersResponse struct {
	Success bool       `json:"success"`
	Count   int        `json:"count"`
	Peers   []PeerInfo `json:"peers"`
}

// PeerResponse carries one member
type PeerResponse struct {
	Success bool     `json:"success"`
	Peer    PeerInfo `json:"peer"`
}

// IgnoreRequest sets or clears the ignore flag
type IgnoreRequest struct {
	Ignore bool `json:"ignore"`
}

func peerInfo(p group.Peer, inClose map[group.PeerNumber]bool) PeerInfo {
	info := PeerInfo{
		Number:     uint32(p.Number),
		PublicKey:  p.PublicKey,
		Nick:       string(p.Nick),
		Status:     p.Status.String(),
		Role:       p.Role().String(),
		Verified:   p.Verified,
		Banned:     p.Banned,
		Ignored:    p.Ignore,
		Close:      inClose[p.Number],
		LastUpdate: p.LastUpdate,
	}
	if p.Addr.IsValid() {
		info.Addr = p.Addr.String()
	}
	return info
}

func closeMembers(chat *group.Chat) map[group.PeerNumber]bool {
	m := make(map[group.PeerNumber]bool)
	for _, p := range chat.CloseSet() {
		m[p] = true
	}
	return m
}

// peerParam parses the :peer path parameter
func peerParam(c *gin.Context) (group.PeerNumber, bool) {
	num, err := strconv.ParseUint(c.Param("peer"), 10, 32)
	if err != nil {
		badRequest(c, "Peer number must be a non-negative integer")
		return 0, false
	}
	return group.PeerNumber(num), true
}

// handleListPeers handles GET /api/v1/chats/:group/peers
func (s *Server) handleListPeers(c *gin.Context) {
	peers := []PeerInfo{}
	ok := s.withChat(c, func(_ int, chat *group.Chat) error {
		inClose := closeMembers(chat)
		for _, p := range chat.Peers() {
			peers = append(peers, peerInfo(p, inClose))
		}
		return nil
	})
	if !ok {
		return
	}

	c.JSON(http.StatusOK, PeersResponse{Success: true, Count: len(peers), Peers: peers})
}

// handleGetPeer handles GET /api/v1/chats/:group/peers/:peer
func (s *Server) handleGetPeer(c *gin.Context) {
	num, ok := peerParam(c)
	if !ok {
		return
	}

	var info PeerInfo
	if !s.withChat(c, func(_ int, chat *group.Chat) error {
		p, err := chat.Peer(num)
		if err != nil {
			return err
		}
		info = peerInfo(p, closeMembers(chat))
		return nil
	}) {
		return
	}

	c.JSON(http.StatusOK, PeerResponse{Success: true, Peer: info})
}

// handleSendPrivateMessage handles POST /api/v1/chats/:group/peers/:peer/messages
func (s *Server) handleSendPrivateMessage(c *gin.Context) {
	num, ok := peerParam(c)
	if !ok {
		return
	}
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if s.withChat(c, func(_ int, chat *group.Chat) error {
		return chat.SendPrivateMessage(num, []byte(req.Text))
	}) {
		c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Private message sent"})
	}
}

// peerAction runs one operator action against the :peer parameter
func (s *Server) peerAction(c *gin.Context, done string, action func(chat *group.Chat, num group.PeerNumber) error) {
	num, ok := peerParam(c)
	if !ok {
		return
	}

	if s.withChat(c, func(_ int, chat *group.Chat) error {
		return action(chat, num)
	}) {
		c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: done})
	}
}

// handleBan handles POST /api/v1/chats/:group/peers/:peer/ban
func (s *Server) handleBan(c *gin.Context) {
	s.peerAction(c, "Peer banned", (*group.Chat).Ban)
}

// handleGrantOp handles POST /api/v1/chats/:group/peers/:peer/op
func (s *Server) handleGrantOp(c *gin.Context) {
	s.peerAction(c, "Operator granted", (*group.Chat).GrantOperator)
}

// handleRevokeOp handles DELETE /api/v1/chats/:group/peers/:peer/op
func (s *Server) handleRevokeOp(c *gin.Context) {
	s.peerAction(c, "Operator revoked", (*group.Chat).RevokeOperator)
}

// handleIgnore handles PUT /api/v1/chats/:group/peers/:peer/ignore
func (s *Server) handleIgnore(c *gin.Context) {
	var req IgnoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	s.peerAction(c, "Ignore updated", func(chat *group.Chat, num group.PeerNumber) error {
		return chat.SetIgnore(num, req.Ignore)
	})
}
