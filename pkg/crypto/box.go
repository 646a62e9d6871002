package crypto

import (
	"crypto/subtle"

	"golang.org/x/crypto/nacl/box"
)

// SharedKey is a precomputed Curve25519 shared secret
type SharedKey [SharedKeySize]byte

// ComparePublicKeys compares two public keys in constant time
func ComparePublicKeys(a, b PublicKey) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// KeysEqual compares two key byte strings in constant time.
// Lengths are not secret.
func KeysEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// PublicKeyValid rejects keys with the top bit of the last byte set.
// Use it for input sanitation only.
func PublicKeyValid(pk PublicKey) bool {
	return pk[EncPublicKeySize-1] < 128
}

// Precompute derives the shared key for their public key and our secret key.
// Callers should cache the result per remote peer.
func Precompute(theirPublic PublicKey, ourSecret SecretKey) SharedKey {
	var shared SharedKey
	box.Precompute((*[32]byte)(&shared), (*[32]byte)(&theirPublic), (*[32]byte)(&ourSecret))
	return shared
}

// EncryptSymmetric seals plain under the shared key and nonce.
// The result is MAC || ciphertext, len(plain)+MACSize bytes.
func EncryptSymmetric(shared SharedKey, nonce Nonce, plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, ErrEncryptionFailed
	}
	return box.SealAfterPrecomputation(nil, plain, (*[24]byte)(&nonce), (*[32]byte)(&shared)), nil
}

// DecryptSymmetric opens a ciphertext produced by EncryptSymmetric.
// Short input and authentication failure both return ErrDecryptionFailed.
func DecryptSymmetric(shared SharedKey, nonce Nonce, encrypted []byte) ([]byte, error) {
	if len(encrypted) <= MACSize {
		return nil, ErrDecryptionFailed
	}

	plain, ok := box.OpenAfterPrecomputation(nil, encrypted, (*[24]byte)(&nonce), (*[32]byte)(&shared))
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

// EncryptAsymmetric precomputes the shared key and encrypts. Each call pays
// for a scalar multiplication.
func EncryptAsymmetric(theirPublic PublicKey, ourSecret SecretKey, nonce Nonce, plain []byte) ([]byte, error) {
	return EncryptSymmetric(Precompute(theirPublic, ourSecret), nonce, plain)
}

// DecryptAsymmetric precomputes the shared key and decrypts
func DecryptAsymmetric(theirPublic PublicKey, ourSecret SecretKey, nonce Nonce, encrypted []byte) ([]byte, error) {
	return DecryptSymmetric(Precompute(theirPublic, ourSecret), nonce, encrypted)
}
