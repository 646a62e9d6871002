package group

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

func TestFound(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")

	assert.Equal(t, StateJoined, a.chat.State())
	assert.True(t, a.chat.IsFounder())
	assert.True(t, a.chat.SelfRole().Has(RoleFounder))
	assert.True(t, a.chat.Self().Verified)
	assert.Equal(t, crypto.ChatHash(a.chat.ChatKey()), a.chat.ChatHash())
	self := a.chat.Self()
	require.NoError(t, self.Invite.Verify())

	require.Len(t, a.eventsOf(EventSelfJoin), 1)
	assert.Empty(t, a.eventsOf(EventSelfJoin)[0].(SelfJoinEvent).Peers)

	assert.ErrorIs(t, a.chat.Found(), ErrWrongState)
}

func TestJoinThroughFounder(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")

	n.join(b, a)
	assert.Empty(t, n.errors)

	// Bob's view
	founder := n.peerNumber(b, a)
	pa, err := b.chat.Peer(founder)
	require.NoError(t, err)
	assert.True(t, pa.Role().Has(RoleFounder))
	assert.True(t, pa.Verified)
	assert.Equal(t, []byte("alice"), pa.Nick)
	assert.Equal(t, a.addr, pa.Addr)
	assert.True(t, b.chat.Self().Verified)
	assert.False(t, b.chat.SelfRole().Privileged())

	joins := b.eventsOf(EventSelfJoin)
	require.Len(t, joins, 1)
	assert.Equal(t, []PeerNumber{founder}, joins[0].(SelfJoinEvent).Peers)

	// Alice's view
	pb, err := a.chat.Peer(n.peerNumber(a, b))
	require.NoError(t, err)
	assert.True(t, pb.Verified)
	assert.Equal(t, b.addr, pb.Addr)
	assert.Equal(t, []byte("bob"), pb.Nick)
	assert.Len(t, a.eventsOf(EventPeerJoin), 1)
	assert.Contains(t, a.chat.CloseSet(), pb.Number)

	t.Logf("✅ Bob joined through the founder")
}

func TestJoinTransitive(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")
	c := n.node("carol")

	n.join(b, a)
	n.join(c, b)
	assert.Empty(t, n.errors)

	// Carol learned both members from Bob's snapshot
	assert.Equal(t, 2, c.chat.PeerCount())
	pa, err := c.chat.Peer(n.peerNumber(c, a))
	require.NoError(t, err)
	assert.True(t, pa.Verified)
	assert.True(t, pa.Role().Has(RoleFounder))
	assert.True(t, c.chat.Self().Verified)

	// Alice learned Carol from Bob's new-peer announcement
	pc, err := a.chat.Peer(n.peerNumber(a, c))
	require.NoError(t, err)
	assert.True(t, pc.Verified)
	assert.Equal(t, c.addr, pc.Addr)
	assert.Len(t, a.eventsOf(EventPeerJoin), 2)
}

func TestRequestInviteRetransmit(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")

	require.NoError(t, b.chat.BeginJoin(a.chat.ChatKey()))
	member := []Member{{PublicKey: a.chat.SelfPublicKey(), Addr: a.addr}}
	b.chat.RequestInvite(member)

	// The first response is lost
	n.nodes[b.addr].online = false
	n.flush()
	n.nodes[b.addr].online = true
	assert.Equal(t, StateJoining, b.chat.State())

	b.chat.RequestInvite(member)
	n.flush()

	assert.Equal(t, StateJoined, b.chat.State())
	assert.Equal(t, 1, a.chat.PeerCount())
	assert.Len(t, a.eventsOf(EventPeerJoin), 1)
}

func TestBeginJoinValidation(t *testing.T) {
	n := newTestNet(t)
	b := n.node("bob")

	assert.ErrorIs(t, b.chat.BeginJoin(crypto.ExtPublicKey{}), crypto.ErrInvalidKey)
	assert.Equal(t, StateNew, b.chat.State())
	assert.Zero(t, b.chat.RequestInvite(nil))
}

func TestJoinTimeout(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")

	require.NoError(t, b.chat.BeginJoin(a.chat.ChatKey()))
	assert.Equal(t, StateJoining, b.chat.State())

	n.clock.Add(JoinTimeout - 1)
	b.chat.Tick()
	assert.Equal(t, StateJoining, b.chat.State())

	n.clock.Add(1)
	b.chat.Tick()
	assert.Equal(t, StateNew, b.chat.State())
	assert.True(t, b.chat.ChatKey().IsZero())
}

func TestMessages(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")
	c := n.node("carol")
	n.join(b, a)
	n.join(c, a)

	require.NoError(t, a.chat.SendMessage([]byte("hello everyone")))
	n.flush()

	for _, node := range []*testNode{b, c} {
		msgs := node.eventsOf(EventMessage)
		require.Len(t, msgs, 1)
		ev := msgs[0].(MessageEvent)
		assert.Equal(t, []byte("hello everyone"), ev.Message)
		assert.Equal(t, n.peerNumber(node, a), ev.Peer)
	}

	// Private message reaches only Bob
	require.NoError(t, a.chat.SendPrivateMessage(n.peerNumber(a, b), []byte("psst")))
	n.flush()
	assert.Len(t, b.eventsOf(EventPrivateMessage), 1)
	assert.Empty(t, c.eventsOf(EventPrivateMessage))

	// Carol ignores Alice
	ignored, err := c.chat.ToggleIgnore(n.peerNumber(c, a))
	require.NoError(t, err)
	assert.True(t, ignored)
	require.NoError(t, a.chat.SendMessage([]byte("again")))
	n.flush()
	assert.Len(t, c.eventsOf(EventMessage), 1)
	assert.Len(t, b.eventsOf(EventMessage), 2)

	assert.Empty(t, n.errors)
}

func TestNickTopicStatus(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")
	n.join(b, a)

	require.NoError(t, a.chat.SetSelfNick([]byte("alicia")))
	require.NoError(t, a.chat.SetTopic([]byte("release planning")))
	require.NoError(t, a.chat.SetSelfStatus(protocol.StatusAway))
	n.flush()

	founder := n.peerNumber(b, a)
	nick, err := b.chat.PeerNick(founder)
	require.NoError(t, err)
	assert.Equal(t, []byte("alicia"), nick)
	assert.Equal(t, []byte("release planning"), b.chat.Topic())

	status, err := b.chat.PeerStatus(founder)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusAway, status)

	require.Len(t, b.eventsOf(EventNickChange), 1)
	require.Len(t, b.eventsOf(EventTopicChange), 1)

	// Bob is a plain user
	assert.ErrorIs(t, b.chat.SetTopic([]byte("mine now")), ErrNotPermitted)
	assert.Equal(t, []byte("release planning"), b.chat.Topic())

	assert.ErrorIs(t, a.chat.SetSelfStatus(protocol.StatusNone), ErrInvalidStatus)
	assert.ErrorIs(t, a.chat.SetSelfStatus(protocol.StatusInvalid), ErrInvalidStatus)

	_, err = b.chat.PeerStatus(99)
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestTopicFromUserRejected(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")
	n.join(b, a)

	// Bob forges a topic change broadcast
	pa := b.chat.peers[n.peerNumber(b, a)]
	require.NoError(t, b.chat.sendBroadcast(pa, protocol.KindChangeTopic, []byte("hijacked")))
	n.flush()

	assert.Empty(t, a.chat.Topic())
	require.Len(t, n.errors, 1)
	assert.ErrorIs(t, n.errors[0], ErrNotPermitted)
}

func TestSizeLimits(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")

	tests := []struct {
		name    string
		op      func([]byte) error
		limit   int
		wantErr error
	}{
		{"nick", a.chat.SetSelfNick, protocol.MaxGCNickSize, ErrNickTooLong},
		{"topic", a.chat.SetTopic, protocol.MaxGCTopicSize, ErrTopicTooLong},
		{"message", a.chat.SendMessage, protocol.MaxGCMessageSize, ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.op(bytes.Repeat([]byte("a"), tt.limit)))
			assert.ErrorIs(t, tt.op(bytes.Repeat([]byte("b"), tt.limit+1)), tt.wantErr)
		})
	}

	// Rejected changes leave state untouched
	assert.Equal(t, bytes.Repeat([]byte("a"), protocol.MaxGCNickSize), a.chat.SelfNick())
	assert.Equal(t, bytes.Repeat([]byte("a"), protocol.MaxGCTopicSize), a.chat.Topic())

	assert.ErrorIs(t, a.chat.SendMessage(nil), ErrEmptyPayload)
	assert.ErrorIs(t, a.chat.SetSelfNick(nil), ErrEmptyPayload)
	assert.NoError(t, a.chat.SetTopic(nil))
}

func TestOperationsRequireJoined(t *testing.T) {
	n := newTestNet(t)
	b := n.node("bob")

	assert.ErrorIs(t, b.chat.SendMessage([]byte("hi")), ErrNotJoined)
	assert.ErrorIs(t, b.chat.SendPrivateMessage(1, []byte("hi")), ErrNotJoined)
	assert.ErrorIs(t, b.chat.SetSelfNick([]byte("bobby")), ErrNotJoined)
	assert.ErrorIs(t, b.chat.SetTopic([]byte("t")), ErrNotJoined)
	assert.ErrorIs(t, b.chat.SetSelfStatus(protocol.StatusBusy), ErrNotJoined)
	assert.ErrorIs(t, b.chat.Ban(1), ErrNotJoined)
	assert.ErrorIs(t, b.chat.HandlePacket(testAddr(1), []byte{protocol.PacketGroupBroadcast}), ErrNotJoined)

	assert.Equal(t, []byte("bob"), b.chat.SelfNick())
}

func TestPacketRejection(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")
	n.join(b, a)

	require.NoError(t, b.chat.SendMessage([]byte("original")))
	require.Len(t, n.queue, 1)
	d := n.queue[0]
	n.flush()
	require.Len(t, a.eventsOf(EventMessage), 1)

	t.Run("replay", func(t *testing.T) {
		assert.ErrorIs(t, a.chat.HandlePacket(d.from, d.pkt), ErrReplay)
	})

	t.Run("tampered", func(t *testing.T) {
		pkt := append([]byte(nil), d.pkt...)
		pkt[len(pkt)-1] ^= 0x80
		assert.ErrorIs(t, a.chat.HandlePacket(d.from, pkt), crypto.ErrDecryptionFailed)
	})

	t.Run("wrong chat", func(t *testing.T) {
		pkt := append([]byte(nil), d.pkt...)
		pkt[1] ^= 0xff
		assert.ErrorIs(t, a.chat.HandlePacket(d.from, pkt), ErrWrongChat)
	})

	t.Run("truncated", func(t *testing.T) {
		assert.ErrorIs(t, a.chat.HandlePacket(d.from, d.pkt[:protocol.GroupHeaderSize]), protocol.ErrPacketTooShort)
	})

	assert.Len(t, a.eventsOf(EventMessage), 1)
}

func TestPart(t *testing.T) {
	n := newTestNet(t)
	a := n.founder("alice")
	b := n.node("bob")
	n.join(b, a)

	assert.ErrorIs(t, b.chat.Part(bytes.Repeat([]byte("x"), protocol.MaxGCPartMessageSize+1)), ErrPartTooLong)
	require.NoError(t, b.chat.Part([]byte("bye")))
	n.flush()

	assert.Equal(t, StateParted, b.chat.State())
	assert.Zero(t, a.chat.PeerCount())
	assert.Empty(t, a.chat.CloseSet())

	exits := a.eventsOf(EventPeerExit)
	require.Len(t, exits, 1)
	assert.Equal(t, []byte("bye"), exits[0].(PeerExitEvent).PartMessage)
}
