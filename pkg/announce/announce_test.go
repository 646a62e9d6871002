package announce

import (
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

func newKeys(t *testing.T) (crypto.ExtPublicKey, *crypto.ExtKeyPair) {
	t.Helper()
	chat, err := crypto.GenerateExtKeyPair()
	require.NoError(t, err)
	member, err := crypto.GenerateExtKeyPair()
	require.NoError(t, err)
	return chat.Public, member
}

func mustAnnounce(t *testing.T, chatKey crypto.ExtPublicKey, kp *crypto.ExtKeyPair, addr string, now time.Time) *Announcement {
	t.Helper()
	a, err := New(chatKey, kp, netip.MustParseAddrPort(addr), now)
	require.NoError(t, err)
	return a
}

func TestAnnouncementSignVerify(t *testing.T) {
	chatKey, kp := newKeys(t)
	now := time.Unix(1_700_000_000, 0)

	a := mustAnnounce(t, chatKey, kp, "203.0.113.7:33445", now)
	assert.Equal(t, "/ip4/203.0.113.7/udp/33445", a.Addr)
	require.NoError(t, a.Verify(now))

	e, err := a.Entry()
	require.NoError(t, err)
	assert.Equal(t, kp.Public, e.PublicKey)
	assert.Equal(t, netip.MustParseAddrPort("203.0.113.7:33445"), e.Addr)

	t.Run("roundtrip", func(t *testing.T) {
		data, err := a.Encode()
		require.NoError(t, err)
		decoded, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, a, decoded)
		assert.NoError(t, decoded.Verify(now))
	})

	t.Run("tampered address", func(t *testing.T) {
		forged := *a
		forged.Addr = "/ip4/198.51.100.1/udp/33445"
		assert.ErrorIs(t, forged.Verify(now), ErrInvalidSignature)
	})

	t.Run("tampered chat", func(t *testing.T) {
		forged := *a
		forged.ChatKey[0] ^= 1
		assert.ErrorIs(t, forged.Verify(now), ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		assert.NoError(t, a.Verify(now.Add(TTL)))
		assert.ErrorIs(t, a.Verify(now.Add(TTL+time.Second)), ErrExpired)
	})
}

func TestAnnouncementIPv6(t *testing.T) {
	chatKey, kp := newKeys(t)
	now := time.Unix(1_700_000_000, 0)

	a := mustAnnounce(t, chatKey, kp, "[2001:db8::1]:5000", now)
	assert.Equal(t, "/ip6/2001:db8::1/udp/5000", a.Addr)

	e, err := a.Entry()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("[2001:db8::1]:5000"), e.Addr)
}

func TestAnnouncementInvalidAddress(t *testing.T) {
	chatKey, kp := newKeys(t)

	_, err := New(chatKey, kp, netip.AddrPort{}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidAddress)

	// A TCP address is not reachable by the datagram transport
	a := &Announcement{ChatKey: chatKey, PublicKey: kp.Public, Addr: "/ip4/1.2.3.4/tcp/80", Timestamp: time.Now().Unix()}
	a.Signature = kp.Sign(a.signatureMessage())
	assert.ErrorIs(t, a.Verify(time.Now()), ErrInvalidAddress)
}

func TestMemoryBook(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	book := NewMemoryBook(clk)

	chatKey, alice := newKeys(t)
	_, bob := newKeys(t)

	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, alice, "10.0.0.1:1000", clk.Now())))
	clk.Add(time.Second)
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, bob, "10.0.0.2:1000", clk.Now())))

	entries := book.Lookup(chatKey)
	require.Len(t, entries, 2)
	assert.Equal(t, bob.Public, entries[0].PublicKey)
	assert.Equal(t, alice.Public, entries[1].PublicKey)

	// An older record never replaces a newer one
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, alice, "10.0.0.9:1000", clk.Now().Add(-time.Minute))))
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, alice, "10.0.0.3:1000", clk.Now())))
	for _, e := range book.Lookup(chatKey) {
		if e.PublicKey == alice.Public {
			assert.Equal(t, netip.MustParseAddrPort("10.0.0.3:1000"), e.Addr)
		}
	}

	// Forged records are refused
	forged := mustAnnounce(t, chatKey, alice, "10.0.0.4:1000", clk.Now())
	forged.Addr = "/ip4/10.0.0.66/udp/1000"
	assert.ErrorIs(t, book.Publish(forged), ErrInvalidSignature)

	// Records age out
	clk.Add(TTL + time.Second)
	assert.Empty(t, book.Lookup(chatKey))

	other, _ := newKeys(t)
	assert.Empty(t, book.Lookup(other))
}

func TestMemoryBookBounded(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	book := NewMemoryBook(clk)

	chatKey, _ := newKeys(t)
	for i := 0; i < MaxEntriesPerChat+4; i++ {
		_, kp := newKeys(t)
		require.NoError(t, book.Publish(mustAnnounce(t, chatKey, kp, "10.0.0.1:1000", clk.Now())))
		clk.Add(time.Second)
	}
	assert.Len(t, book.Lookup(chatKey), MaxEntriesPerChat)

	book.Forget(chatKey)
	assert.Empty(t, book.Lookup(chatKey))
}
