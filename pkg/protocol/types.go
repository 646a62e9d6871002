package protocol

import (
	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

// Packet types (first byte of every datagram)
const (
	PacketCrypto              byte = 0x20
	PacketGroupInviteRequest  byte = 0x5b
	PacketGroupInviteResponse byte = 0x5c
	PacketGroupBroadcast      byte = 0x5d
)

// Request ids carried inside a request envelope
const (
	RequestFriend byte = 32
	RequestPing   byte = 254
)

// Size limits
const (
	MaxCryptoRequestSize = 1024

	MaxGCPacketSize      = 65507
	MaxGCNickSize        = 128
	MaxGCTopicSize       = 512
	MaxGCMessageSize     = 1368
	MaxGCPartMessageSize = 128

	MaxCertificatesNum = 5

	TimestampSize = 8
)

// Certificate sizes on the wire
const (
	SemiInviteCertificateSize = 1 + crypto.ExtPublicKeySize + TimestampSize + crypto.SignatureSize
	InviteCertificateSize     = SemiInviteCertificateSize + crypto.ExtPublicKeySize + TimestampSize + crypto.SignatureSize
	CommonCertificateSize     = 1 + crypto.ExtPublicKeySize*2 + TimestampSize + crypto.SignatureSize
)

// CertType identifies the kind of certificate (first byte)
type CertType uint8

const (
	CertInvite              CertType = 0
	CertBan                 CertType = 1
	CertOpCredentials       CertType = 2
	CertRevokeOpCredentials CertType = 3
)

func (t CertType) String() string {
	switch t {
	case CertInvite:
		return "invite"
	case CertBan:
		return "ban"
	case CertOpCredentials:
		return "op_credentials"
	case CertRevokeOpCredentials:
		return "revoke_op_credentials"
	default:
		return "unknown"
	}
}

// Status is a peer's presence status
type Status uint8

const (
	StatusNone Status = iota
	StatusOnline
	StatusOffline
	StatusAway
	StatusBusy
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	case StatusAway:
		return "away"
	case StatusBusy:
		return "busy"
	default:
		return "invalid"
	}
}

// Valid reports whether s can be set by a peer
func (s Status) Valid() bool {
	return s > StatusNone && s < StatusInvalid
}

// MessageKind identifies a group broadcast
type MessageKind uint8

const (
	KindPing MessageKind = iota
	KindStatus
	KindNewPeer
	KindChangeNick
	KindChangeTopic
	KindMessage
	KindPrivateMessage
	KindOpAction
	KindPeerExit
	KindSyncRequest
	KindSyncResponse
)

func (k MessageKind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindStatus:
		return "status"
	case KindNewPeer:
		return "new_peer"
	case KindChangeNick:
		return "change_nick"
	case KindChangeTopic:
		return "change_topic"
	case KindMessage:
		return "message"
	case KindPrivateMessage:
		return "private_message"
	case KindOpAction:
		return "op_action"
	case KindPeerExit:
		return "peer_exit"
	case KindSyncRequest:
		return "sync_request"
	case KindSyncResponse:
		return "sync_response"
	default:
		return "unknown"
	}
}
