package crypto

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash generates a BLAKE2b-256 hash
func Hash(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// HashString generates a BLAKE2b hash and returns hex string
func HashString(data []byte) string {
	return hex.EncodeToString(Hash(data))
}

// ChatHash returns the 32-bit routing hash carried by every group packet
func ChatHash(chatKey ExtPublicKey) uint32 {
	sum := blake2b.Sum256(chatKey[:])
	return binary.BigEndian.Uint32(sum[:4])
}
