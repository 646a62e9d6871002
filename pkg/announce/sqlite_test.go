package announce

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteBook(t *testing.T, clk clock.Clock) (*SQLiteBook, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "announce.db")
	book, err := NewSQLiteBook(path, clk)
	require.NoError(t, err)
	t.Cleanup(func() { book.Close() })
	return book, path
}

func TestSQLiteBookPublishLookup(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	book, _ := newSQLiteBook(t, clk)

	chatKey, alice := newKeys(t)
	_, bob := newKeys(t)

	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, alice, "10.0.0.1:1000", clk.Now())))
	clk.Add(time.Second)
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, bob, "10.0.0.2:1000", clk.Now())))

	entries := book.Lookup(chatKey)
	require.Len(t, entries, 2)
	assert.Equal(t, bob.Public, entries[0].PublicKey)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.2:1000"), entries[0].Addr)

	// Upsert keeps the newest record per member
	clk.Add(time.Second)
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, alice, "10.0.0.3:1000", clk.Now())))
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, alice, "10.0.0.9:1000", clk.Now().Add(-time.Minute))))

	entries = book.Lookup(chatKey)
	require.Len(t, entries, 2)
	assert.Equal(t, alice.Public, entries[0].PublicKey)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.3:1000"), entries[0].Addr)
}

func TestSQLiteBookPersists(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	book, path := newSQLiteBook(t, clk)

	chatKey, alice := newKeys(t)
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, alice, "10.0.0.1:1000", clk.Now())))
	require.NoError(t, book.Close())

	reopened, err := NewSQLiteBook(path, clk)
	require.NoError(t, err)
	defer reopened.Close()

	entries := reopened.Lookup(chatKey)
	require.Len(t, entries, 1)
	assert.Equal(t, alice.Public, entries[0].PublicKey)
}

func TestSQLiteBookExpiry(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	book, _ := newSQLiteBook(t, clk)

	chatKey, alice := newKeys(t)
	_, bob := newKeys(t)
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, alice, "10.0.0.1:1000", clk.Now())))

	clk.Add(TTL / 2)
	require.NoError(t, book.Publish(mustAnnounce(t, chatKey, bob, "10.0.0.2:1000", clk.Now())))

	clk.Add(TTL/2 + time.Second)
	entries := book.Lookup(chatKey)
	require.Len(t, entries, 1)
	assert.Equal(t, bob.Public, entries[0].PublicKey)

	removed, err := book.Prune()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	book.Forget(chatKey)
	assert.Empty(t, book.Lookup(chatKey))
}

func TestSQLiteBookRejectsForged(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))
	book, _ := newSQLiteBook(t, clk)

	chatKey, alice := newKeys(t)
	forged := mustAnnounce(t, chatKey, alice, "10.0.0.1:1000", clk.Now())
	forged.Timestamp++

	assert.ErrorIs(t, book.Publish(forged), ErrInvalidSignature)
	assert.Empty(t, book.Lookup(chatKey))
}
