package group

import "github.com/ZentaChain/zentalk-groupchat/pkg/protocol"

// EventKind identifies an application event
type EventKind int

const (
	EventMessage EventKind = iota
	EventPrivateMessage
	EventOpAction
	EventNickChange
	EventTopicChange
	EventPeerJoin
	EventSelfJoin
	EventPeerExit
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventPrivateMessage:
		return "private_message"
	case EventOpAction:
		return "op_action"
	case EventNickChange:
		return "nick_change"
	case EventTopicChange:
		return "topic_change"
	case EventPeerJoin:
		return "peer_join"
	case EventSelfJoin:
		return "self_join"
	case EventPeerExit:
		return "peer_exit"
	default:
		return "unknown"
	}
}

// Event is delivered synchronously to the application. Handlers must not block.
type Event interface {
	Kind() EventKind
}

// MessageEvent is a plain message from a peer
type MessageEvent struct {
	Peer    PeerNumber
	Message []byte
}

// PrivateMessageEvent is a message addressed to us only
type PrivateMessageEvent struct {
	Peer    PeerNumber
	Message []byte
}

// OpActionEvent reports an accepted certificate. Self is set when we are the target.
type OpActionEvent struct {
	Source PeerNumber
	Target PeerNumber
	Self   bool
	Type   protocol.CertType
}

// NickChangeEvent reports a peer's new nick
type NickChangeEvent struct {
	Peer PeerNumber
	Nick []byte
}

// TopicChangeEvent reports a new topic
type TopicChangeEvent struct {
	Peer  PeerNumber
	Topic []byte
}

// PeerJoinEvent reports a new peer
type PeerJoinEvent struct {
	Peer PeerNumber
}

// SelfJoinEvent reports that we joined, with the initial peer list
type SelfJoinEvent struct {
	Peers []PeerNumber
}

// PeerExitEvent reports a departed peer. PartMessage is empty on timeout.
type PeerExitEvent struct {
	Peer        PeerNumber
	PartMessage []byte
}

func (MessageEvent) Kind() EventKind        { return EventMessage }
func (PrivateMessageEvent) Kind() EventKind { return EventPrivateMessage }
func (OpActionEvent) Kind() EventKind       { return EventOpAction }
func (NickChangeEvent) Kind() EventKind     { return EventNickChange }
func (TopicChangeEvent) Kind() EventKind    { return EventTopicChange }
func (PeerJoinEvent) Kind() EventKind       { return EventPeerJoin }
func (SelfJoinEvent) Kind() EventKind       { return EventSelfJoin }
func (PeerExitEvent) Kind() EventKind       { return EventPeerExit }
