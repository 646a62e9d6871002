package group

import (
	"net/netip"
	"time"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

// PeerNumber identifies a peer within one chat. Numbers are never reused.
type PeerNumber uint32

// SelfPeer is the number of our own record in events
const SelfPeer PeerNumber = 0

// Peer is a member of a chat as seen by the local node
type Peer struct {
	Number    PeerNumber
	Addr      netip.AddrPort
	PublicKey crypto.ExtPublicKey
	Invite    protocol.InviteCertificate
	Certs     []protocol.CommonCertificate

	Nick       []byte
	Status     protocol.Status
	Banned     bool
	BannedTime time.Time
	Ignore     bool
	Verified   bool

	LastUpdate   time.Time
	LastPingRecv time.Time

	role         Role
	lastPingSent time.Time
	lastMsgNum   uint32
	seenMsg      bool
}

// Role returns the peer's current role
func (p *Peer) Role() Role {
	return p.role
}

// Copy returns a snapshot of the peer safe to hand to callers
func (p *Peer) Copy() Peer {
	c := *p
	c.Nick = append([]byte(nil), p.Nick...)
	c.Certs = append([]protocol.CommonCertificate(nil), p.Certs...)
	return c
}

// touch records a state change
func (p *Peer) touch(now time.Time) {
	p.LastUpdate = now
}

// appendCert stores c, dropping the oldest certificates beyond the retention bound
func appendCert(certs []protocol.CommonCertificate, c protocol.CommonCertificate) []protocol.CommonCertificate {
	certs = append(certs, c)
	if len(certs) > protocol.MaxCertificatesNum {
		certs = append(certs[:0:0], certs[len(certs)-protocol.MaxCertificatesNum:]...)
	}
	return certs
}

// acceptMessageNumber drops replays. Numbers from one sender only grow.
func (p *Peer) acceptMessageNumber(n uint32) bool {
	if p.seenMsg && n <= p.lastMsgNum {
		return false
	}
	p.seenMsg = true
	p.lastMsgNum = n
	return true
}
