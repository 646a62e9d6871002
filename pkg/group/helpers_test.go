package group

import (
	"net/netip"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

type datagram struct {
	from, to netip.AddrPort
	pkt      []byte
}

// testNet delivers datagrams between chats in memory, in send order
type testNet struct {
	t      *testing.T
	clock  *clock.Mock
	nodes  map[netip.AddrPort]*testNode
	queue  []datagram
	errors []error
}

type testNode struct {
	addr   netip.AddrPort
	chat   *Chat
	events []Event
	online bool
}

type netSender struct {
	net  *testNet
	from netip.AddrPort
}

func (s *netSender) SendTo(addr netip.AddrPort, pkt []byte) error {
	s.net.queue = append(s.net.queue, datagram{from: s.from, to: addr, pkt: append([]byte(nil), pkt...)})
	return nil
}

func newTestNet(t *testing.T) *testNet {
	return &testNet{
		t:     t,
		clock: clock.NewMock(),
		nodes: make(map[netip.AddrPort]*testNode),
	}
}

func (n *testNet) node(nick string) *testNode {
	n.t.Helper()

	addr := netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, 0, byte(len(n.nodes) + 1)}), 33445)
	node := &testNode{addr: addr, online: true}

	c, err := New(Config{
		Sender:   &netSender{net: n, from: addr},
		Clock:    n.clock,
		Emit:     func(ev Event) { node.events = append(node.events, ev) },
		Nick:     []byte(nick),
		SelfAddr: addr,
	})
	require.NoError(n.t, err)

	node.chat = c
	n.nodes[addr] = node
	return node
}

// founder creates a node that founds a chat
func (n *testNet) founder(nick string) *testNode {
	n.t.Helper()
	node := n.node(nick)
	require.NoError(n.t, node.chat.Found())
	return node
}

// flush delivers queued datagrams until the network is quiet
func (n *testNet) flush() {
	for i := 0; len(n.queue) > 0 && i < 10000; i++ {
		d := n.queue[0]
		n.queue = n.queue[1:]

		dst, ok := n.nodes[d.to]
		if !ok || !dst.online {
			continue
		}
		if err := dst.chat.HandlePacket(d.from, d.pkt); err != nil {
			n.errors = append(n.errors, err)
		}
	}
}

// join makes joiner join the chat through via
func (n *testNet) join(joiner, via *testNode) {
	n.t.Helper()
	require.NoError(n.t, joiner.chat.BeginJoin(via.chat.ChatKey()))
	sent := joiner.chat.RequestInvite([]Member{{PublicKey: via.chat.SelfPublicKey(), Addr: via.addr}})
	require.Equal(n.t, 1, sent)
	n.flush()
	require.Equal(n.t, StateJoined, joiner.chat.State())
}

// peerNumber returns how viewer numbers other
func (n *testNet) peerNumber(viewer, other *testNode) PeerNumber {
	n.t.Helper()
	num, ok := viewer.chat.PeerByKey(other.chat.SelfPublicKey())
	require.True(n.t, ok, "peer not known")
	return num
}

func (node *testNode) eventsOf(kind EventKind) []Event {
	var out []Event
	for _, ev := range node.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

// addInvitedPeer inserts a peer invited by inviter directly into c's table
func addInvitedPeer(t *testing.T, c *Chat, inviter *crypto.ExtKeyPair, addr netip.AddrPort) (*crypto.ExtKeyPair, *Peer) {
	t.Helper()

	kp, err := crypto.GenerateExtKeyPair()
	require.NoError(t, err)

	invite, err := protocol.NewSemiInvite(kp, c.timestamp()).Countersign(inviter, c.timestamp())
	require.NoError(t, err)

	p, isNew := c.addPeer(kp.Public, *invite, addr, []byte("peer"))
	require.True(t, isNew)
	c.recomputeVerification()
	c.fillCloseSet()
	return kp, p
}

func testAddr(last byte) netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{192, 168, 0, last}), 40000)
}
