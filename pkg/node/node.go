// Package node runs a group chat session: one goroutine owns the session and
// serialises inbound datagrams, periodic ticks and application calls.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/group"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
	"github.com/ZentaChain/zentalk-groupchat/pkg/session"
)

var (
	ErrNotRunning     = errors.New("node not running")
	ErrAlreadyRunning = errors.New("node already running")
)

// DefaultTickInterval drives session timers. It must be well below the ping interval.
const DefaultTickInterval = 500 * time.Millisecond

const inboundQueueSize = 256

// Transport sends and receives raw datagrams
type Transport interface {
	group.Sender
	Serve(ctx context.Context, handle func(src netip.AddrPort, packet []byte)) error
	LocalAddr() netip.AddrPort
	Close() error
}

// Config configures a node
type Config struct {
	Identity     *crypto.ExtKeyPair
	Transport    Transport
	Book         session.AddressBook
	Clock        clock.Clock
	TickInterval time.Duration
	Nick         []byte

	// AnnounceAddr is published for our chats. Defaults to the transport's
	// local address when that is routable.
	AnnounceAddr netip.AddrPort

	EventLogSize int

	// Handler additionally receives every event, on the node goroutine
	Handler session.Handler
}

type inbound struct {
	src    netip.AddrPort
	packet []byte
}

type op struct {
	fn   func(*session.Session) error
	done chan error
}

// Node owns a session and the goroutine that drives it
type Node struct {
	cfg     Config
	clock   clock.Clock
	session *session.Session
	events  *EventLog

	inbound chan inbound
	ops     chan op

	mu      sync.Mutex
	running bool
	stopped chan struct{}

	// rejected counts dropped packets per reason; each reason is logged once
	rejected map[string]uint64
}

// New creates a node. Call Run to start it.
func New(cfg Config) (*Node, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("node requires a transport")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if !cfg.AnnounceAddr.IsValid() {
		if local := cfg.Transport.LocalAddr(); local.IsValid() && !local.Addr().IsUnspecified() {
			cfg.AnnounceAddr = local
		}
	}

	n := &Node{
		cfg:      cfg,
		clock:    cfg.Clock,
		events:   NewEventLog(cfg.EventLogSize),
		inbound:  make(chan inbound, inboundQueueSize),
		ops:      make(chan op),
		stopped:  make(chan struct{}),
		rejected: make(map[string]uint64),
	}

	s, err := session.New(session.Config{
		Identity: cfg.Identity,
		Sender:   cfg.Transport,
		Book:     cfg.Book,
		Clock:    cfg.Clock,
		Handler:  n,
		SelfAddr: cfg.AnnounceAddr,
		Nick:     cfg.Nick,
	})
	if err != nil {
		return nil, err
	}
	n.session = s
	return n, nil
}

// PublicKey returns the node's long-term identity key
func (n *Node) PublicKey() crypto.ExtPublicKey {
	return n.cfg.Identity.Public
}

// LocalAddr returns the transport's bound address
func (n *Node) LocalAddr() netip.AddrPort {
	return n.cfg.Transport.LocalAddr()
}

// AnnounceAddr returns the address published for our chats
func (n *Node) AnnounceAddr() netip.AddrPort {
	return n.cfg.AnnounceAddr
}

// Events returns logged events newer than since
func (n *Node) Events(since uint64, limit int) []LoggedEvent {
	return n.events.Since(since, limit)
}

// Run drives the session until ctx is done. Every session call happens on
// this goroutine. The session is killed and the transport closed on return.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrAlreadyRunning
	}
	n.running = true
	n.mu.Unlock()

	defer close(n.stopped)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- n.cfg.Transport.Serve(serveCtx, n.enqueue)
	}()

	ticker := n.clock.Ticker(n.cfg.TickInterval)
	defer ticker.Stop()

	log.Printf("✅ Node %s running on %s", n.PublicKey().Short(), n.LocalAddr())

	for {
		select {
		case <-ctx.Done():
			n.shutdown()
			return nil

		case err := <-serveErr:
			n.shutdown()
			if err != nil {
				return fmt.Errorf("transport failed: %w", err)
			}
			return nil

		case in := <-n.inbound:
			if err := n.session.HandlePacket(in.src, in.packet); err != nil {
				n.reject(in.packet, err)
			}

		case <-ticker.C:
			n.session.Tick()

		case o := <-n.ops:
			o.done <- o.fn(n.session)
		}
	}
}

func (n *Node) shutdown() {
	n.session.Kill()
	if err := n.cfg.Transport.Close(); err != nil {
		log.Printf("⚠️  Closing transport failed: %v", err)
	}
	log.Printf("Node %s stopped", n.PublicKey().Short())
}

// enqueue is called from the transport's read goroutine. Datagrams are
// dropped when the node falls behind.
func (n *Node) enqueue(src netip.AddrPort, packet []byte) {
	select {
	case n.inbound <- inbound{src: src, packet: packet}:
	default:
		n.mu.Lock()
		n.rejected["inbound queue full"]++
		n.mu.Unlock()
	}
}

// reject records a dropped packet and logs the first occurrence of each
// reason per chat
func (n *Node) reject(packet []byte, err error) {
	reason := err.Error()
	if hash, perr := protocol.PeekChatHash(packet); perr == nil {
		reason = fmt.Sprintf("%08x: %s", hash, reason)
	}

	n.mu.Lock()
	n.rejected[reason]++
	first := n.rejected[reason] == 1
	n.mu.Unlock()

	if first {
		log.Printf("⚠️  Dropped packet (%s)", reason)
	}
}

// Rejected returns how many packets were dropped per reason
func (n *Node) Rejected() map[string]uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make(map[string]uint64, len(n.rejected))
	for k, v := range n.rejected {
		out[k] = v
	}
	return out
}

// Do runs fn on the node goroutine and returns its error. fn must not
// retain the session.
func (n *Node) Do(ctx context.Context, fn func(*session.Session) error) error {
	o := op{fn: fn, done: make(chan error, 1)}

	select {
	case n.ops <- o:
	case <-n.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-o.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ===== session.Handler =====

// HandleGroupEvent logs ev and forwards it
func (n *Node) HandleGroupEvent(groupNumber int, ev group.Event) {
	le := loggedGroupEvent(groupNumber, ev)
	le.Time = n.clock.Now()
	n.events.Append(le)

	if n.cfg.Handler != nil {
		n.cfg.Handler.HandleGroupEvent(groupNumber, ev)
	}
}

// HandleRequest logs ev and forwards it
func (n *Node) HandleRequest(ev session.RequestEvent) {
	le := loggedRequest(ev)
	le.Time = n.clock.Now()
	n.events.Append(le)

	if n.cfg.Handler != nil {
		n.cfg.Handler.HandleRequest(ev)
	}
}
