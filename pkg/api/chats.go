package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/group"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
	"github.com/ZentaChain/zentalk-groupchat/pkg/session"
)

// ChatInfo describes one chat of the node
type ChatInfo struct {
	Group      int                 `json:"group"`
	ChatKey    crypto.ExtPublicKey `json:"chatKey"`
	SelfKey    crypto.ExtPublicKey `json:"selfKey"`
	State      string              `json:"state"`
	Founder    bool                `json:"founder"`
	Role       string              `json:"role"`
	Topic      string              `json:"topic"`
	Nick       string              `json:"nick"`
	Status     string              `json:"status"`
	PeerCount  int                 `json:"peerCount"`
	ClosePeers []uint32            `json:"closePeers"`
}

// ChatsResponse lists the node's chats
type ChatsResponse struct {
	Success bool       `json:"success"`
	Count   int        `json:"count"`
	Chats   []ChatInfo `json:"chats"`
}

// ChatResponse carries one chat
type ChatResponse struct {
	Success bool     `json:"success"`
	Chat    ChatInfo `json:"chat"`
}

// JoinRequest names the chat to join by its public key
type JoinRequest struct {
	ChatKey string `json:"chatKey" binding:"required"`
}

// TextRequest carries a message, nick, topic or part message
type TextRequest struct {
	Text string `json:"text"`
}

// StatusRequest carries a status name: online, offline, away or busy
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func chatInfo(num int, c *group.Chat) ChatInfo {
	info := ChatInfo{
		Group:      num,
		ChatKey:    c.ChatKey(),
		SelfKey:    c.SelfPublicKey(),
		State:      c.State().String(),
		Founder:    c.IsFounder(),
		Role:       c.SelfRole().String(),
		Topic:      string(c.Topic()),
		Nick:       string(c.SelfNick()),
		Status:     c.SelfStatus().String(),
		PeerCount:  c.PeerCount(),
		ClosePeers: []uint32{},
	}
	for _, p := range c.CloseSet() {
		info.ClosePeers = append(info.ClosePeers, uint32(p))
	}
	return info
}

func parseStatus(name string) (protocol.Status, bool) {
	for s := protocol.StatusOnline; s < protocol.StatusInvalid; s++ {
		if s.String() == name {
			return s, true
		}
	}
	return protocol.StatusInvalid, false
}

// groupParam parses the :group path parameter
func groupParam(c *gin.Context) (int, bool) {
	num, err := strconv.Atoi(c.Param("group"))
	if err != nil || num < 0 {
		badRequest(c, "Group number must be a non-negative integer")
		return 0, false
	}
	return num, true
}

// withChat runs fn against the chat named by the :group parameter
func (s *Server) withChat(c *gin.Context, fn func(num int, chat *group.Chat) error) bool {
	num, ok := groupParam(c)
	if !ok {
		return false
	}

	err := s.do(c, func(sess *session.Session) error {
		chat, err := sess.Chat(num)
		if err != nil {
			return err
		}
		return fn(num, chat)
	})
	if err != nil {
		abortWithError(c, err)
		return false
	}
	return true
}

// handleListChats handles GET /api/v1/chats
func (s *Server) handleListChats(c *gin.Context) {
	chats := []ChatInfo{}
	err := s.do(c, func(sess *session.Session) error {
		for _, num := range sess.Chats() {
			chat, err := sess.Chat(num)
			if err != nil {
				return err
			}
			chats = append(chats, chatInfo(num, chat))
		}
		return nil
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChatsResponse{Success: true, Count: len(chats), Chats: chats})
}

// handleCreateChat handles POST /api/v1/chats
func (s *Server) handleCreateChat(c *gin.Context) {
	var info ChatInfo
	err := s.do(c, func(sess *session.Session) error {
		num, err := sess.CreateChat()
		if err != nil {
			return err
		}
		chat, err := sess.Chat(num)
		if err != nil {
			return err
		}
		info = chatInfo(num, chat)
		return nil
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ChatResponse{Success: true, Chat: info})
}

// handleJoinChat handles POST /api/v1/chats/join
func (s *Server) handleJoinChat(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	chatKey, err := crypto.ParseExtPublicKey(req.ChatKey)
	if err != nil {
		badRequest(c, "chatKey must be a 64-byte hex public key")
		return
	}

	var info ChatInfo
	err = s.do(c, func(sess *session.Session) error {
		num, err := sess.JoinChat(chatKey)
		if err != nil {
			return err
		}
		chat, err := sess.Chat(num)
		if err != nil {
			return err
		}
		info = chatInfo(num, chat)
		return nil
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, ChatResponse{Success: true, Chat: info})
}

// handleGetChat handles GET /api/v1/chats/:group
func (s *Server) handleGetChat(c *gin.Context) {
	var info ChatInfo
	ok := s.withChat(c, func(num int, chat *group.Chat) error {
		info = chatInfo(num, chat)
		return nil
	})
	if !ok {
		return
	}

	c.JSON(http.StatusOK, ChatResponse{Success: true, Chat: info})
}

// handleDeleteChat handles DELETE /api/v1/chats/:group with an optional
// ?message= part message
func (s *Server) handleDeleteChat(c *gin.Context) {
	num, ok := groupParam(c)
	if !ok {
		return
	}
	part := c.Query("message")

	err := s.do(c, func(sess *session.Session) error {
		return sess.DeleteChat(num, []byte(part))
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Chat deleted"})
}

// handleSendMessage handles POST /api/v1/chats/:group/messages
func (s *Server) handleSendMessage(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if s.withChat(c, func(_ int, chat *group.Chat) error {
		return chat.SendMessage([]byte(req.Text))
	}) {
		c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Message sent"})
	}
}

// handleSetNick handles PUT /api/v1/chats/:group/nick
func (s *Server) handleSetNick(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if s.withChat(c, func(_ int, chat *group.Chat) error {
		return chat.SetSelfNick([]byte(req.Text))
	}) {
		c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Nick changed"})
	}
}

// handleSetTopic handles PUT /api/v1/chats/:group/topic
func (s *Server) handleSetTopic(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if s.withChat(c, func(_ int, chat *group.Chat) error {
		return chat.SetTopic([]byte(req.Text))
	}) {
		c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Topic changed"})
	}
}

// handleSetStatus handles PUT /api/v1/chats/:group/status
func (s *Server) handleSetStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	status, ok := parseStatus(req.Status)
	if !ok {
		badRequest(c, "status must be one of online, offline, away, busy")
		return
	}

	if s.withChat(c, func(_ int, chat *group.Chat) error {
		return chat.SetSelfStatus(status)
	}) {
		c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Status changed"})
	}
}
