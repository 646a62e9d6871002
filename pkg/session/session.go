package session

import (
	"errors"
	"fmt"
	"log"
	"net/netip"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ZentaChain/zentalk-groupchat/pkg/announce"
	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/group"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrAlreadyInChat = errors.New("already in chat")
	ErrKilled        = errors.New("session killed")
)

// AnnounceInterval is how often a joined chat re-publishes its address
const AnnounceInterval = 60 * time.Second

// AddressBook resolves chat keys to announced members and publishes our own
// announcements. Implementations must not block.
type AddressBook interface {
	Publish(a *announce.Announcement) error
	Lookup(chatKey crypto.ExtPublicKey) []announce.Entry
}

// Config configures a session
type Config struct {
	Identity *crypto.ExtKeyPair // long-term key for request envelopes
	Sender   group.Sender
	Book     AddressBook
	Clock    clock.Clock
	Handler  Handler
	SelfAddr netip.AddrPort
	Nick     []byte
}

type entry struct {
	chat         *group.Chat
	hash         uint32
	indexed      bool
	lastAnnounce time.Time
	lastInvite   time.Time
}

// Session owns every group chat of one identity and routes packets to them.
// It is not safe for concurrent use.
type Session struct {
	cfg    Config
	clock  clock.Clock
	chats  []*entry
	byHash map[uint32][]int
	killed bool
}

// New creates an empty session
func New(cfg Config) (*Session, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("session requires an identity")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("session requires a sender")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if len(cfg.Nick) > protocol.MaxGCNickSize {
		return nil, group.ErrNickTooLong
	}

	return &Session{
		cfg:    cfg,
		clock:  cfg.Clock,
		byHash: make(map[uint32][]int),
	}, nil
}

// PublicKey returns the long-term identity key
func (s *Session) PublicKey() crypto.ExtPublicKey {
	return s.cfg.Identity.Public
}

// SelfAddr returns the address announced for our chats
func (s *Session) SelfAddr() netip.AddrPort {
	return s.cfg.SelfAddr
}

// SetSelfAddr changes the address announced by chats created afterwards and
// by every future re-announcement
func (s *Session) SetSelfAddr(addr netip.AddrPort) {
	s.cfg.SelfAddr = addr
}

// ===== CHAT LIFECYCLE =====

// AddChat allocates a chat in the NEW state and returns its group number.
// Numbers are never reused, so a deleted chat's number stays invalid.
func (s *Session) AddChat() (int, error) {
	if s.killed {
		return 0, ErrKilled
	}

	num := len(s.chats)

	chat, err := group.New(group.Config{
		Sender:   s.cfg.Sender,
		Clock:    s.clock,
		Emit:     func(ev group.Event) { s.emit(num, ev) },
		Nick:     s.cfg.Nick,
		SelfAddr: s.cfg.SelfAddr,
	})
	if err != nil {
		return 0, err
	}

	s.chats = append(s.chats, &entry{chat: chat})
	return num, nil
}

// CreateChat founds a new chat and announces it
func (s *Session) CreateChat() (int, error) {
	num, err := s.AddChat()
	if err != nil {
		return 0, err
	}

	e := s.chats[num]
	if err := e.chat.Found(); err != nil {
		s.chats[num] = nil
		return 0, err
	}
	s.index(num)
	s.announce(e)

	log.Printf("✅ Created group %d (chat %s)", num, e.chat.ChatKey().Short())
	return num, nil
}

// JoinChat starts joining the chat identified by inviteKey, the chat public
// key shared out of band. Invite requests go to every announced member and
// are retried on each ping interval until the join completes or times out.
func (s *Session) JoinChat(inviteKey crypto.ExtPublicKey) (int, error) {
	if s.killed {
		return 0, ErrKilled
	}
	for _, e := range s.chats {
		if e == nil || e.chat.ChatKey() != inviteKey {
			continue
		}
		if st := e.chat.State(); st == group.StateJoining || st == group.StateJoined {
			return 0, ErrAlreadyInChat
		}
	}

	num, err := s.AddChat()
	if err != nil {
		return 0, err
	}

	e := s.chats[num]
	if err := e.chat.BeginJoin(inviteKey); err != nil {
		s.chats[num] = nil
		return 0, err
	}
	s.index(num)

	sent := s.requestInvites(e)
	log.Printf("Joining chat %s as group %d, %d invite requests sent", inviteKey.Short(), num, sent)
	return num, nil
}

// requestInvites resolves announced members and sends each our semi-invite
func (s *Session) requestInvites(e *entry) int {
	e.lastInvite = s.clock.Now()
	if s.cfg.Book == nil {
		return 0
	}

	entries := s.cfg.Book.Lookup(e.chat.ChatKey())
	members := make([]group.Member, 0, len(entries))
	for _, en := range entries {
		members = append(members, group.Member{PublicKey: en.PublicKey, Addr: en.Addr})
	}
	return e.chat.RequestInvite(members)
}

// DeleteChat parts the chat with an optional message and releases it
func (s *Session) DeleteChat(num int, partMessage []byte) error {
	e, err := s.entry(num)
	if err != nil {
		return err
	}
	if len(partMessage) > protocol.MaxGCPartMessageSize {
		return group.ErrPartTooLong
	}

	if err := e.chat.Part(partMessage); err != nil {
		log.Printf("⚠️  Part of group %d failed: %v", num, err)
	}
	s.unindex(num)
	s.chats[num] = nil

	log.Printf("Deleted group %d", num)
	return nil
}

// Chat returns the chat with the given group number
func (s *Session) Chat(num int) (*group.Chat, error) {
	e, err := s.entry(num)
	if err != nil {
		return nil, err
	}
	return e.chat, nil
}

// Chats returns every allocated group number in ascending order
func (s *Session) Chats() []int {
	var nums []int
	for i, e := range s.chats {
		if e != nil {
			nums = append(nums, i)
		}
	}
	return nums
}

// ChatByKey returns the group number of the chat with the given key
func (s *Session) ChatByKey(chatKey crypto.ExtPublicKey) (int, bool) {
	for _, num := range s.byHash[crypto.ChatHash(chatKey)] {
		if s.chats[num].chat.ChatKey() == chatKey {
			return num, true
		}
	}
	return 0, false
}

// Kill parts and releases every chat. The session is unusable afterwards.
func (s *Session) Kill() {
	for _, num := range s.Chats() {
		if err := s.DeleteChat(num, nil); err != nil {
			log.Printf("⚠️  Failed to delete chat %d: %v", num, err)
		}
	}
	s.killed = true
}

func (s *Session) entry(num int) (*entry, error) {
	if num < 0 || num >= len(s.chats) || s.chats[num] == nil {
		return nil, ErrChatNotFound
	}
	return s.chats[num], nil
}

func (s *Session) emit(num int, ev group.Event) {
	if s.cfg.Handler != nil {
		s.cfg.Handler.HandleGroupEvent(num, ev)
	}
}

// ===== ROUTING =====

// index makes the chat reachable by its chat hash
func (s *Session) index(num int) {
	e := s.chats[num]
	if e.indexed {
		s.unindex(num)
	}
	e.hash = e.chat.ChatHash()
	e.indexed = true
	s.byHash[e.hash] = append(s.byHash[e.hash], num)
}

func (s *Session) unindex(num int) {
	e := s.chats[num]
	if e == nil || !e.indexed {
		return
	}

	nums := s.byHash[e.hash]
	for i, n := range nums {
		if n == num {
			nums = append(nums[:i], nums[i+1:]...)
			break
		}
	}
	if len(nums) == 0 {
		delete(s.byHash, e.hash)
	} else {
		s.byHash[e.hash] = nums
	}
	e.indexed = false
}

// HandlePacket dispatches one inbound datagram: request envelopes to the
// identity, group packets to the chat named by their chat hash
func (s *Session) HandlePacket(src netip.AddrPort, packet []byte) error {
	if s.killed {
		return ErrKilled
	}
	if len(packet) == 0 {
		return protocol.ErrPacketTooShort
	}

	switch {
	case packet[0] == protocol.PacketCrypto:
		return s.handleRequest(src, packet)
	case protocol.IsGroupPacket(packet[0]):
		return s.handleGroupPacket(src, packet)
	default:
		return protocol.ErrWrongPacketType
	}
}

// handleGroupPacket tries every chat sharing the packet's chat hash. A
// collision is resolved by the first chat whose key authenticates it.
func (s *Session) handleGroupPacket(src netip.AddrPort, packet []byte) error {
	hash, err := protocol.PeekChatHash(packet)
	if err != nil {
		return err
	}

	candidates := s.byHash[hash]
	if len(candidates) == 0 {
		return ErrChatNotFound
	}

	var lastErr error
	for _, num := range candidates {
		err := s.chats[num].chat.HandlePacket(src, packet)
		if errors.Is(err, crypto.ErrDecryptionFailed) || errors.Is(err, group.ErrWrongChat) {
			lastErr = err
			continue
		}
		return err
	}
	return lastErr
}

func (s *Session) handleRequest(src netip.AddrPort, packet []byte) error {
	id := s.cfg.Identity
	from, requestID, data, err := protocol.HandleRequest(id.Public.EncryptionKey(), id.Secret.EncryptionKey(), packet)
	if err != nil {
		return err
	}

	if s.cfg.Handler != nil {
		s.cfg.Handler.HandleRequest(RequestEvent{
			From:      from,
			Addr:      src,
			RequestID: requestID,
			Data:      data,
		})
	}
	return nil
}

// SendRequest seals data in a request envelope for recipient and sends it
func (s *Session) SendRequest(recipient crypto.PublicKey, addr netip.AddrPort, requestID byte, data []byte) error {
	if s.killed {
		return ErrKilled
	}

	id := s.cfg.Identity
	packet, err := protocol.CreateRequest(id.Public.EncryptionKey(), id.Secret.EncryptionKey(), recipient, data, requestID)
	if err != nil {
		return err
	}
	return s.cfg.Sender.SendTo(addr, packet)
}

// ===== TIMERS =====

// Tick drives every chat's timers, re-announces joined chats and retries
// pending joins. It must be called periodically.
func (s *Session) Tick() {
	if s.killed {
		return
	}

	now := s.clock.Now()
	for num, e := range s.chats {
		if e == nil {
			continue
		}

		e.chat.Tick()

		switch e.chat.State() {
		case group.StateJoined:
			if e.lastAnnounce.IsZero() || now.Sub(e.lastAnnounce) >= AnnounceInterval {
				s.announce(e)
			}

		case group.StateJoining:
			if now.Sub(e.lastInvite) >= group.PingInterval {
				s.requestInvites(e)
			}

		case group.StateNew:
			// The join timed out; the chat no longer owns its hash
			if e.indexed {
				log.Printf("⚠️  Join of group %d timed out", num)
				s.unindex(num)
			}
		}
	}
}

// announce publishes a signed record of where this chat can be reached
func (s *Session) announce(e *entry) {
	e.lastAnnounce = s.clock.Now()
	if s.cfg.Book == nil || !s.cfg.SelfAddr.IsValid() {
		return
	}

	a, err := announce.New(e.chat.ChatKey(), e.chat.KeyPair(), s.cfg.SelfAddr, e.lastAnnounce)
	if err != nil {
		log.Printf("⚠️  Announcement for chat %s failed: %v", e.chat.ChatKey().Short(), err)
		return
	}
	if err := s.cfg.Book.Publish(a); err != nil {
		log.Printf("⚠️  Publishing chat %s failed: %v", e.chat.ChatKey().Short(), err)
	}
}
