package crypto

import (
	"encoding/hex"
	"testing"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string // BLAKE2b-256 hash in hex
	}{
		{
			name:     "empty input",
			input:    []byte{},
			expected: "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8",
		},
		{
			name:     "simple string",
			input:    []byte("hello world"),
			expected: "256c83b297114d201b30179f3f0ef0cace9783622da5974326b436178aeef610",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hex.EncodeToString(Hash(tt.input))
			if got != tt.expected {
				t.Errorf("Hash() = %s, want %s", got, tt.expected)
			}
			if HashString(tt.input) != tt.expected {
				t.Errorf("HashString() = %s, want %s", HashString(tt.input), tt.expected)
			}
		})
	}
}

func TestChatHash(t *testing.T) {
	a, _ := GenerateExtKeyPair()
	b, _ := GenerateExtKeyPair()

	if ChatHash(a.Public) != ChatHash(a.Public) {
		t.Error("ChatHash() is not deterministic")
	}
	if ChatHash(a.Public) == ChatHash(b.Public) {
		t.Log("⚠️  hash collision between two random keys")
	}
}

func TestSharedKeyCache(t *testing.T) {
	self, _ := GenerateKeyPair()
	peer, _ := GenerateKeyPair()

	cache, err := NewSharedKeyCache(self.Secret, 2)
	if err != nil {
		t.Fatalf("NewSharedKeyCache() error = %v", err)
	}

	got := cache.Get(peer.Public)
	if got != Precompute(peer.Public, self.Secret) {
		t.Error("cached key differs from Precompute")
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}

	// Bounded size
	for i := 0; i < 3; i++ {
		kp, _ := GenerateKeyPair()
		cache.Get(kp.Public)
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}

	cache.Forget(peer.Public)

	other, _ := GenerateKeyPair()
	cache.Reset(other.Secret)
	if cache.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", cache.Len())
	}
	if cache.Get(peer.Public) != Precompute(peer.Public, other.Secret) {
		t.Error("Reset() did not rebind the secret key")
	}
}
