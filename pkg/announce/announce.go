package announce

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

var (
	ErrInvalidSignature = errors.New("invalid announcement signature")
	ErrExpired          = errors.New("announcement expired")
	ErrInvalidAddress   = errors.New("invalid announcement address")
)

const (
	// TTL bounds how long an announcement is trusted after it was signed
	TTL = 5 * time.Minute

	// MaxEntriesPerChat bounds the members returned by a lookup
	MaxEntriesPerChat = 8
)

// Announcement is a signed statement that a chat member is reachable at an
// address. It is signed with the member's per-chat key.
type Announcement struct {
	ChatKey   crypto.ExtPublicKey `json:"chat_key"`
	PublicKey crypto.ExtPublicKey `json:"public_key"`
	Addr      string              `json:"addr"` // multiaddr, e.g. /ip4/1.2.3.4/udp/33445
	Timestamp int64               `json:"timestamp"`
	Signature []byte              `json:"signature"`
}

// Entry is a verified member address returned by an address book
type Entry struct {
	PublicKey crypto.ExtPublicKey
	Addr      netip.AddrPort
}

// New creates a signed announcement
func New(chatKey crypto.ExtPublicKey, kp *crypto.ExtKeyPair, addr netip.AddrPort, now time.Time) (*Announcement, error) {
	maddr, err := ToMultiaddr(addr)
	if err != nil {
		return nil, err
	}

	a := &Announcement{
		ChatKey:   chatKey,
		PublicKey: kp.Public,
		Addr:      maddr.String(),
		Timestamp: now.Unix(),
	}
	a.Signature = kp.Sign(a.signatureMessage())
	return a, nil
}

// signatureMessage is chatKey || publicKey || addr || timestamp
func (a *Announcement) signatureMessage() []byte {
	msg := make([]byte, 0, 2*crypto.ExtPublicKeySize+len(a.Addr)+8)
	msg = append(msg, a.ChatKey[:]...)
	msg = append(msg, a.PublicKey[:]...)
	msg = append(msg, a.Addr...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(a.Timestamp))
	return msg
}

// Verify checks the signature, the expiry and the address
func (a *Announcement) Verify(now time.Time) error {
	if !crypto.Verify(a.PublicKey, a.signatureMessage(), a.Signature) {
		return ErrInvalidSignature
	}
	if a.Expired(now) {
		return ErrExpired
	}
	if _, err := a.AddrPort(); err != nil {
		return err
	}
	return nil
}

// Expired reports whether the announcement is older than TTL
func (a *Announcement) Expired(now time.Time) bool {
	return now.Sub(time.Unix(a.Timestamp, 0)) > TTL
}

// AddrPort parses the announced address
func (a *Announcement) AddrPort() (netip.AddrPort, error) {
	maddr, err := multiaddr.NewMultiaddr(a.Addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return FromMultiaddr(maddr)
}

// Entry returns the announced member
func (a *Announcement) Entry() (Entry, error) {
	addr, err := a.AddrPort()
	if err != nil {
		return Entry{}, err
	}
	return Entry{PublicKey: a.PublicKey, Addr: addr}, nil
}

// Encode encodes the announcement to JSON
func (a *Announcement) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// Decode decodes an announcement from JSON
func Decode(data []byte) (*Announcement, error) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ToMultiaddr converts a UDP address to its multiaddr form
func ToMultiaddr(addr netip.AddrPort) (multiaddr.Multiaddr, error) {
	if !addr.IsValid() {
		return nil, ErrInvalidAddress
	}
	maddr, err := manet.FromNetAddr(net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return maddr, nil
}

// FromMultiaddr converts a /ip{4,6}/.../udp/... multiaddr back to an address
func FromMultiaddr(maddr multiaddr.Multiaddr) (netip.AddrPort, error) {
	na, err := manet.ToNetAddr(maddr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	udp, ok := na.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("%w: not a udp address", ErrInvalidAddress)
	}
	ap := udp.AddrPort()
	ap = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	if !ap.IsValid() || ap.Port() == 0 {
		return netip.AddrPort{}, ErrInvalidAddress
	}
	return ap, nil
}
