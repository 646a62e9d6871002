package group

import (
	"errors"
	"fmt"
	"log"
	"net/netip"
	"sort"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

var (
	ErrNotJoined            = errors.New("chat not joined")
	ErrWrongState           = errors.New("operation not valid in current chat state")
	ErrNotPermitted         = errors.New("insufficient role")
	ErrBanned               = errors.New("peer is banned")
	ErrAlreadyBanned        = errors.New("peer already banned")
	ErrPeerNotFound         = errors.New("peer not found")
	ErrNickTooLong          = errors.New("nick too long")
	ErrTopicTooLong         = errors.New("topic too long")
	ErrMessageTooLong       = errors.New("message too long")
	ErrPartTooLong          = errors.New("part message too long")
	ErrEmptyPayload         = errors.New("empty payload")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrWrongChat            = errors.New("packet for another chat")
	ErrUnknownSender        = errors.New("unknown sender")
	ErrStaleCertificate     = errors.New("certificate older than the state it changes")
	ErrDuplicateCertificate = errors.New("certificate already applied")
	ErrReplay               = errors.New("replayed message number")
	ErrNoAddress            = errors.New("peer has no known address")
	ErrFromSelf             = errors.New("packet from our own key")
)

// Timing
const (
	PingInterval   = 5 * time.Second
	BadNodeTimeout = 60 * time.Second
	JoinTimeout    = 30 * time.Second
	SyncInterval   = 2 * PingInterval

	// StandbyPingInterval paces pings to verified peers outside the close set
	StandbyPingInterval = BadNodeTimeout / 4
)

// State is a chat's membership state
type State int

const (
	StateNew State = iota
	StateJoining
	StateJoined
	StateParted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateParted:
		return "parted"
	default:
		return "unknown"
	}
}

// Sender enqueues an outgoing datagram. It must not block.
type Sender interface {
	SendTo(addr netip.AddrPort, packet []byte) error
}

// Member is an announced chat member used to bootstrap a join
type Member struct {
	PublicKey crypto.ExtPublicKey
	Addr      netip.AddrPort
}

// Config configures a chat
type Config struct {
	Sender   Sender
	Clock    clock.Clock
	Emit     func(Event)
	Nick     []byte
	SelfAddr netip.AddrPort
}

// Chat is one group chat as seen by the local node. It is not safe for
// concurrent use; the owning session serialises every call.
type Chat struct {
	cfg   Config
	clock clock.Clock

	self    *crypto.ExtKeyPair
	me      *Peer
	founder *crypto.ExtKeyPair

	chatKey  crypto.ExtPublicKey
	chatHash uint32
	topic    []byte

	peers    map[PeerNumber]*Peer
	byKey    map[crypto.ExtPublicKey]PeerNumber
	nextPeer PeerNumber
	close    *closeSet

	authority map[crypto.ExtPublicKey]*authority

	keys   *crypto.SharedKeyCache
	nonce  crypto.Nonce
	msgNum uint32

	state       State
	pendingSemi *protocol.SemiInviteCertificate
	joinStarted time.Time
	lastPing    time.Time
	lastSync    time.Time
}

// New creates a chat in the NEW state with a fresh self key pair
func New(cfg Config) (*Chat, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("chat requires a sender")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if len(cfg.Nick) > protocol.MaxGCNickSize {
		return nil, ErrNickTooLong
	}

	self, err := crypto.GenerateExtKeyPair()
	if err != nil {
		return nil, err
	}

	keys, err := crypto.NewSharedKeyCache(self.Secret.EncryptionKey(), crypto.DefaultSharedKeyCacheSize)
	if err != nil {
		return nil, err
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		return nil, err
	}

	c := &Chat{
		cfg:      cfg,
		clock:    cfg.Clock,
		self:     self,
		peers:    make(map[PeerNumber]*Peer),
		byKey:    make(map[crypto.ExtPublicKey]PeerNumber),
		nextPeer: 1,
		close:    newCloseSet(GroupCloseConnections),
		keys:     keys,
		nonce:    nonce,
		state:    StateNew,

		authority: make(map[crypto.ExtPublicKey]*authority),
	}
	c.me = &Peer{
		PublicKey: self.Public,
		Addr:      cfg.SelfAddr,
		Nick:      append([]byte(nil), cfg.Nick...),
		Status:    protocol.StatusOnline,
		role:      RoleUser,
	}
	c.authorityOf(self.Public)

	return c, nil
}

// Found makes us the founder of a new chat: a chat key pair is generated
// and our invite is countersigned by it, rooting the verification chain.
func (c *Chat) Found() error {
	if c.state != StateNew {
		return ErrWrongState
	}

	founder, err := crypto.GenerateExtKeyPair()
	if err != nil {
		return err
	}

	ts := c.timestamp()
	invite, err := protocol.NewSemiInvite(c.self, ts).Countersign(founder, ts)
	if err != nil {
		return err
	}

	c.founder = founder
	c.setChatKey(founder.Public)
	c.me.Invite = *invite
	c.me.Verified = true
	c.me.role = c.me.role.Grant(GrantRole(RoleFounder))
	c.authorityOf(c.self.Public).founder = true
	c.enterJoined()

	log.Printf("✅ Founded chat %s", c.chatKey.Short())
	c.emit(SelfJoinEvent{})
	return nil
}

// BeginJoin enters JOINING for the chat identified by its public key.
// Invite requests go out through RequestInvite.
func (c *Chat) BeginJoin(chatKey crypto.ExtPublicKey) error {
	if c.state != StateNew {
		return ErrWrongState
	}
	if chatKey.IsZero() || !chatKey.Consistent() {
		return crypto.ErrInvalidKey
	}

	c.setChatKey(chatKey)
	c.pendingSemi = protocol.NewSemiInvite(c.self, c.timestamp())
	c.joinStarted = c.clock.Now()
	c.state = StateJoining
	return nil
}

// RequestInvite sends our semi-invite to each member. Returns how many were sent.
func (c *Chat) RequestInvite(members []Member) int {
	if c.state != StateJoining {
		return 0
	}

	req := &protocol.InviteRequest{Semi: *c.pendingSemi, Nick: c.me.Nick}
	payload := req.Encode()

	sent := 0
	for _, m := range members {
		if m.PublicKey == c.self.Public {
			continue
		}
		if err := c.sendPacket(protocol.PacketGroupInviteRequest, m.PublicKey, m.Addr, payload); err != nil {
			log.Printf("⚠️  Invite request to %s failed: %v", m.PublicKey.Short(), err)
			continue
		}
		sent++
	}
	return sent
}

func (c *Chat) setChatKey(k crypto.ExtPublicKey) {
	c.chatKey = k
	c.chatHash = crypto.ChatHash(k)
}

func (c *Chat) enterJoined() {
	now := c.clock.Now()
	c.state = StateJoined
	c.pendingSemi = nil
	c.lastPing = now
	c.lastSync = now
	c.me.touch(now)
}

// ===== ACCESSORS =====

// State returns the membership state
func (c *Chat) State() State { return c.state }

// ChatKey returns the chat public key (zero while NEW)
func (c *Chat) ChatKey() crypto.ExtPublicKey { return c.chatKey }

// ChatHash returns the routing hash carried by this chat's packets
func (c *Chat) ChatHash() uint32 { return c.chatHash }

// SelfPublicKey returns our key within this chat
func (c *Chat) SelfPublicKey() crypto.ExtPublicKey { return c.self.Public }

// KeyPair returns our key pair within this chat, used to sign announcements
func (c *Chat) KeyPair() *crypto.ExtKeyPair { return c.self }

// IsFounder reports whether we hold the chat key pair
func (c *Chat) IsFounder() bool { return c.founder != nil }

// Self returns a snapshot of our own peer record
func (c *Chat) Self() Peer { return c.me.Copy() }

// SelfRole returns our role
func (c *Chat) SelfRole() Role { return c.me.role }

// Topic returns the chat topic
func (c *Chat) Topic() []byte { return append([]byte(nil), c.topic...) }

// PeerCount returns the number of known peers, banned included
func (c *Chat) PeerCount() int { return len(c.peers) }

// Peer returns a snapshot of one peer
func (c *Chat) Peer(num PeerNumber) (Peer, error) {
	p, ok := c.peers[num]
	if !ok {
		return Peer{}, ErrPeerNotFound
	}
	return p.Copy(), nil
}

// PeerByKey returns the number of the peer with the given key
func (c *Chat) PeerByKey(pk crypto.ExtPublicKey) (PeerNumber, bool) {
	num, ok := c.byKey[pk]
	return num, ok
}

// Peers returns snapshots of all peers ordered by number
func (c *Chat) Peers() []Peer {
	out := make([]Peer, 0, len(c.peers))
	for _, num := range c.PeerNumbers() {
		out = append(out, c.peers[num].Copy())
	}
	return out
}

// PeerNumbers returns every peer number in ascending order
func (c *Chat) PeerNumbers() []PeerNumber {
	nums := make([]PeerNumber, 0, len(c.peers))
	for num := range c.peers {
		nums = append(nums, num)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

// CloseSet returns the close-peer set, most recently responsive first
func (c *Chat) CloseSet() []PeerNumber { return c.close.list() }

// Members returns the addresses of known peers, for join bootstrap and announce checks
func (c *Chat) Members() []Member {
	out := make([]Member, 0, len(c.peers))
	for _, num := range c.PeerNumbers() {
		p := c.peers[num]
		if p.Banned || !p.Addr.IsValid() {
			continue
		}
		out = append(out, Member{PublicKey: p.PublicKey, Addr: p.Addr})
	}
	return out
}

// ===== PEER TABLE =====

func (c *Chat) timestamp() uint64 {
	return uint64(c.clock.Now().Unix())
}

func (c *Chat) emit(ev Event) {
	if c.cfg.Emit != nil {
		c.cfg.Emit(ev)
	}
}

// lookup returns the peer record for pk, our own record included
func (c *Chat) lookup(pk crypto.ExtPublicKey) *Peer {
	if pk == c.self.Public {
		return c.me
	}
	if num, ok := c.byKey[pk]; ok {
		return c.peers[num]
	}
	return nil
}

// addPeer inserts a peer whose invite has already been verified. An existing
// key only has its address refreshed.
func (c *Chat) addPeer(pk crypto.ExtPublicKey, invite protocol.InviteCertificate, addr netip.AddrPort, nick []byte) (*Peer, bool) {
	now := c.clock.Now()

	if num, ok := c.byKey[pk]; ok {
		p := c.peers[num]
		if addr.IsValid() && addr != p.Addr {
			p.Addr = addr
			p.touch(now)
		}
		return p, false
	}

	p := &Peer{
		Number:       c.nextPeer,
		Addr:         addr,
		PublicKey:    pk,
		Invite:       invite,
		Nick:         append([]byte(nil), nick...),
		Status:       protocol.StatusOnline,
		role:         RoleUser,
		LastUpdate:   now,
		LastPingRecv: now,
	}
	c.nextPeer++
	c.peers[p.Number] = p
	c.byKey[pk] = p.Number
	c.authorityOf(pk)
	return p, true
}

// removePeer drops a peer from every table
func (c *Chat) removePeer(p *Peer) {
	c.close.remove(p.Number)
	delete(c.peers, p.Number)
	delete(c.byKey, p.PublicKey)
	c.keys.Forget(p.PublicKey.EncryptionKey())
	c.fillCloseSet()
}

// memberCount is the number of non-banned members, ourselves included
func (c *Chat) memberCount() uint32 {
	n := uint32(1)
	for _, p := range c.peers {
		if !p.Banned {
			n++
		}
	}
	return n
}

// ===== SENDING =====

func (c *Chat) sendPacket(pktType byte, to crypto.ExtPublicKey, addr netip.AddrPort, payload []byte) error {
	if !addr.IsValid() {
		return ErrNoAddress
	}

	h := &protocol.GroupHeader{
		Type:     pktType,
		ChatHash: c.chatHash,
		Sender:   c.self.Public,
		Nonce:    c.nonce,
	}
	crypto.IncrementNonce(&c.nonce)

	pkt, err := protocol.SealGroupPacket(h, c.keys.Get(to.EncryptionKey()), payload)
	if err != nil {
		return err
	}
	return c.cfg.Sender.SendTo(addr, pkt)
}

func (c *Chat) sendBroadcast(p *Peer, kind protocol.MessageKind, body []byte) error {
	c.msgNum++
	b := &protocol.Broadcast{Kind: kind, Number: c.msgNum, Body: body}
	return c.sendPacket(protocol.PacketGroupBroadcast, p.PublicKey, p.Addr, b.Encode())
}

// broadcast sends to every reachable, non-banned peer except skip
func (c *Chat) broadcast(kind protocol.MessageKind, body []byte, skip PeerNumber) int {
	sent := 0
	for _, num := range c.PeerNumbers() {
		p := c.peers[num]
		if num == skip || p.Banned || !p.Addr.IsValid() {
			continue
		}
		if err := c.sendBroadcast(p, kind, body); err != nil {
			log.Printf("⚠️  %s to peer %d failed: %v", kind, num, err)
			continue
		}
		sent++
	}
	return sent
}

func (c *Chat) sendPing(p *Peer) error {
	p.lastPingSent = c.clock.Now()
	return c.sendBroadcast(p, protocol.KindPing, protocol.EncodePing(c.memberCount()))
}
