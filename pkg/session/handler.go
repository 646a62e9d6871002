package session

import (
	"net/netip"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/group"
)

// RequestEvent is an authenticated request envelope addressed to our identity
type RequestEvent struct {
	From      crypto.PublicKey
	Addr      netip.AddrPort
	RequestID byte
	Data      []byte
}

// Handler receives everything the session surfaces to the application.
// Calls are synchronous and must not block.
type Handler interface {
	HandleGroupEvent(groupNumber int, ev group.Event)
	HandleRequest(ev RequestEvent)
}

// Handlers adapts one callback per event kind to a Handler. Nil callbacks are skipped.
type Handlers struct {
	Message        func(groupNumber int, peer group.PeerNumber, msg []byte)
	PrivateMessage func(groupNumber int, peer group.PeerNumber, msg []byte)
	OpAction       func(groupNumber int, ev group.OpActionEvent)
	NickChange     func(groupNumber int, peer group.PeerNumber, nick []byte)
	TopicChange    func(groupNumber int, peer group.PeerNumber, topic []byte)
	PeerJoin       func(groupNumber int, peer group.PeerNumber)
	SelfJoin       func(groupNumber int, peers []group.PeerNumber)
	PeerExit       func(groupNumber int, peer group.PeerNumber, partMessage []byte)
	Request        func(ev RequestEvent)
}

// HandleGroupEvent dispatches ev to the matching callback
func (h *Handlers) HandleGroupEvent(groupNumber int, ev group.Event) {
	switch e := ev.(type) {
	case group.MessageEvent:
		if h.Message != nil {
			h.Message(groupNumber, e.Peer, e.Message)
		}
	case group.PrivateMessageEvent:
		if h.PrivateMessage != nil {
			h.PrivateMessage(groupNumber, e.Peer, e.Message)
		}
	case group.OpActionEvent:
		if h.OpAction != nil {
			h.OpAction(groupNumber, e)
		}
	case group.NickChangeEvent:
		if h.NickChange != nil {
			h.NickChange(groupNumber, e.Peer, e.Nick)
		}
	case group.TopicChangeEvent:
		if h.TopicChange != nil {
			h.TopicChange(groupNumber, e.Peer, e.Topic)
		}
	case group.PeerJoinEvent:
		if h.PeerJoin != nil {
			h.PeerJoin(groupNumber, e.Peer)
		}
	case group.SelfJoinEvent:
		if h.SelfJoin != nil {
			h.SelfJoin(groupNumber, e.Peers)
		}
	case group.PeerExitEvent:
		if h.PeerExit != nil {
			h.PeerExit(groupNumber, e.Peer, e.PartMessage)
		}
	}
}

// HandleRequest dispatches a request envelope
func (h *Handlers) HandleRequest(ev RequestEvent) {
	if h.Request != nil {
		h.Request(ev)
	}
}
