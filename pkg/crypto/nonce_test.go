package crypto

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestIncrementNonce(t *testing.T) {
	tests := []struct {
		name string
		in   Nonce
		want Nonce
	}{
		{
			name: "zero",
			in:   Nonce{},
			want: Nonce{23: 1},
		},
		{
			name: "carry one byte",
			in:   Nonce{23: 0xff},
			want: Nonce{22: 1},
		},
		{
			name: "carry across the tail",
			in:   Nonce{20: 0xff, 21: 0xff, 22: 0xff, 23: 0xff},
			want: Nonce{19: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.in
			IncrementNonce(&n)
			if n != tt.want {
				t.Errorf("IncrementNonce() = %x, want %x", n, tt.want)
			}
		})
	}
}

func TestIncrementNonceWraps(t *testing.T) {
	var n Nonce
	for i := range n {
		n[i] = 0xff
	}

	IncrementNonce(&n)
	if n != (Nonce{}) {
		t.Errorf("all-ones nonce should wrap to zero, got %x", n)
	}
}

func TestIncrementNonceNeverIdentity(t *testing.T) {
	n, _ := NewNonce()
	for i := 0; i < 1000; i++ {
		before := n
		IncrementNonce(&n)
		if n == before {
			t.Fatalf("increment %d left nonce unchanged", i)
		}
	}
}

func TestIncrementNonceBy(t *testing.T) {
	t.Run("zero is identity", func(t *testing.T) {
		n, _ := NewNonce()
		before := n
		IncrementNonceBy(&n, 0)
		if n != before {
			t.Error("IncrementNonceBy(n, 0) changed the nonce")
		}
	})

	t.Run("additive without overflow", func(t *testing.T) {
		var base Nonce
		copy(base[:20], bytes.Repeat([]byte{0xab}, 20))
		binary.BigEndian.PutUint32(base[20:], 1000)

		ab := base
		IncrementNonceBy(&ab, 300)
		IncrementNonceBy(&ab, 700)

		sum := base
		IncrementNonceBy(&sum, 1000)

		if ab != sum {
			t.Errorf("a then b = %x, a+b = %x", ab, sum)
		}
		if binary.BigEndian.Uint32(sum[20:]) != 2000 {
			t.Errorf("tail = %d, want 2000", binary.BigEndian.Uint32(sum[20:]))
		}
		if !bytes.Equal(sum[:20], base[:20]) {
			t.Error("prefix changed without overflow")
		}
	})

	t.Run("overflow carries into prefix", func(t *testing.T) {
		var n Nonce
		binary.BigEndian.PutUint32(n[20:], 0xfffffffe)

		IncrementNonceBy(&n, 3)

		if binary.BigEndian.Uint32(n[20:]) != 1 {
			t.Errorf("tail = %d, want 1", binary.BigEndian.Uint32(n[20:]))
		}
		if n[19] != 1 {
			t.Errorf("carry byte = %d, want 1", n[19])
		}
	})

	t.Run("carry ripples through prefix", func(t *testing.T) {
		var n Nonce
		n[18] = 0x00
		n[19] = 0xff
		binary.BigEndian.PutUint32(n[20:], 0xffffffff)

		IncrementNonceBy(&n, 1)

		want := Nonce{18: 1}
		if n != want {
			t.Errorf("got %x, want %x", n, want)
		}
	})

	t.Run("matches repeated increment", func(t *testing.T) {
		n, _ := NewNonce()
		binary.BigEndian.PutUint32(n[20:], 0xffffff00)

		stepped := n
		for i := 0; i < 512; i++ {
			IncrementNonce(&stepped)
		}

		jumped := n
		IncrementNonceBy(&jumped, 512)

		if stepped != jumped {
			t.Errorf("stepped = %x, jumped = %x", stepped, jumped)
		}
	})
}

func TestNewNonceRandom(t *testing.T) {
	a, err := NewNonce()
	if err != nil {
		t.Fatalf("NewNonce() error = %v", err)
	}
	b, _ := NewNonce()
	if a == b {
		t.Error("two random nonces are equal")
	}

	k1, err := NewSymmetricKey()
	if err != nil {
		t.Fatalf("NewSymmetricKey() error = %v", err)
	}
	k2, _ := NewSymmetricKey()
	if k1 == k2 {
		t.Error("two random keys are equal")
	}
}
