package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Nonce is a 24-byte box nonce. It must never repeat under one shared key.
type Nonce [NonceSize]byte

// IncrementNonce adds 1 to the nonce as a big-endian integer
func IncrementNonce(n *Nonce) {
	for i := NonceSize; i != 0; i-- {
		n[i-1]++
		if n[i-1] != 0 {
			break
		}
	}
}

// IncrementNonceBy adds num to the trailing 4 bytes (big-endian). On 32-bit
// overflow a single carry is propagated into the leading bytes.
func IncrementNonceBy(n *Nonce, num uint32) {
	tail := n[NonceSize-4:]
	old := binary.BigEndian.Uint32(tail)
	sum := old + num

	if sum < old {
		for i := NonceSize - 4; i != 0; i-- {
			n[i-1]++
			if n[i-1] != 0 {
				break
			}
		}
	}

	binary.BigEndian.PutUint32(tail, sum)
}

// NewNonce returns a nonce filled with random bytes
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return n, nil
}

// NewSymmetricKey returns a random symmetric key
func NewSymmetricKey() (SharedKey, error) {
	var k SharedKey
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("failed to generate key: %w", err)
	}
	return k, nil
}
