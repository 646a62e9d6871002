package identity

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

func TestSaveLoad(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	kp, err := crypto.GenerateExtKeyPair()
	require.NoError(t, err)
	require.NoError(t, s.Save("alice", kp))

	got, err := s.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, kp.Public, got.Public)
	assert.Equal(t, kp.Secret, got.Secret)

	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
}

func TestLoadMissing(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	_, err := s.Load("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("nobody"), ErrNotFound)
}

func TestLoadOrCreateIsStable(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	first, err := s.LoadOrCreate(DefaultKeyName)
	require.NoError(t, err)
	second, err := s.LoadOrCreate(DefaultKeyName)
	require.NoError(t, err)

	assert.Equal(t, first.Public, second.Public)
	assert.True(t, first.Public.Consistent())
}

func TestLoadRejectsGarbage(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: "bad", Data: []byte("not pem")}})
	s := NewStore(ring)

	_, err := s.Load("bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{Dir: dir, Password: "test-password"})
	require.NoError(t, err)
	kp, err := s.LoadOrCreate("node")
	require.NoError(t, err)

	reopened, err := Open(Config{Dir: dir, Password: "test-password"})
	require.NoError(t, err)
	got, err := reopened.Load("node")
	require.NoError(t, err)
	assert.Equal(t, kp.Public, got.Public)

	require.NoError(t, reopened.Delete("node"))
	_, err = reopened.Load("node")
	assert.ErrorIs(t, err, ErrNotFound)
}
