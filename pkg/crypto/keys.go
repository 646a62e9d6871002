package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Key sizes
const (
	EncPublicKeySize  = 32
	EncSecretKeySize  = 32
	SignPublicKeySize = ed25519.PublicKeySize
	SignSecretKeySize = ed25519.PrivateKeySize
	SignatureSize     = ed25519.SignatureSize

	// Extended keys are the encryption key followed by the signature key
	ExtPublicKeySize = EncPublicKeySize + SignPublicKeySize
	ExtSecretKeySize = EncSecretKeySize + SignSecretKeySize

	SharedKeySize    = 32
	SymmetricKeySize = 32
	NonceSize        = 24
	MACSize          = box.Overhead
)

// PublicKey is a Curve25519 encryption public key
type PublicKey [EncPublicKeySize]byte

// SecretKey is a Curve25519 encryption secret key
type SecretKey [EncSecretKeySize]byte

// ExtPublicKey is an encryption public key followed by the Ed25519 key it was derived from
type ExtPublicKey [ExtPublicKeySize]byte

// ExtSecretKey is an encryption secret key followed by the Ed25519 key it was derived from
type ExtSecretKey [ExtSecretKeySize]byte

// KeyPair is a plain encryption key pair
type KeyPair struct {
	Public PublicKey
	Secret SecretKey
}

// ExtKeyPair is an extended key pair: one identity that both signs and encrypts
type ExtKeyPair struct {
	Public ExtPublicKey
	Secret ExtSecretKey
}

// GenerateKeyPair generates a random encryption key pair
func GenerateKeyPair() (*KeyPair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyPair{Public: *pub, Secret: *sec}, nil
}

// PublicFromSecret recomputes the encryption public key for a secret key
func PublicFromSecret(secret SecretKey) (PublicKey, error) {
	var pub PublicKey
	out, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return pub, ErrInvalidKey
	}
	copy(pub[:], out)
	return pub, nil
}

// GenerateExtKeyPair creates a signature key pair and derives the encryption keys from it
func GenerateExtKeyPair() (*ExtKeyPair, error) {
	_, signSecret, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signature key: %w", err)
	}
	return ExtKeyPairFromSigningKey(signSecret)
}

// ExtKeyPairFromSeed derives an extended key pair from a 32-byte Ed25519 seed
func ExtKeyPairFromSeed(seed []byte) (*ExtKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidKey
	}
	return ExtKeyPairFromSigningKey(ed25519.NewKeyFromSeed(seed))
}

// ExtKeyPairFromSigningKey derives the encryption keys from an Ed25519 secret key
func ExtKeyPairFromSigningKey(signSecret ed25519.PrivateKey) (*ExtKeyPair, error) {
	if len(signSecret) != SignSecretKeySize {
		return nil, ErrInvalidKey
	}

	signPublic := signSecret.Public().(ed25519.PublicKey)
	encPublic, err := EncPublicFromSigning(signPublic)
	if err != nil {
		return nil, err
	}
	encSecret := EncSecretFromSigning(signSecret)

	kp := &ExtKeyPair{}
	copy(kp.Public[:EncPublicKeySize], encPublic[:])
	copy(kp.Public[EncPublicKeySize:], signPublic)
	copy(kp.Secret[:EncSecretKeySize], encSecret[:])
	copy(kp.Secret[EncSecretKeySize:], signSecret)

	return kp, nil
}

// EncSecretFromSigning converts an Ed25519 secret key to a Curve25519 secret key
func EncSecretFromSigning(signSecret ed25519.PrivateKey) SecretKey {
	h := sha512.Sum512(signSecret.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	var sk SecretKey
	copy(sk[:], h[:EncSecretKeySize])
	return sk
}

// EncPublicFromSigning converts an Ed25519 public key to a Curve25519 public key
func EncPublicFromSigning(signPublic ed25519.PublicKey) (PublicKey, error) {
	var pk PublicKey
	if len(signPublic) != SignPublicKeySize {
		return pk, ErrInvalidKey
	}

	var point edwards25519.Point
	if _, err := point.SetBytes(signPublic); err != nil {
		return pk, ErrInvalidKey
	}
	copy(pk[:], point.BytesMontgomery())
	return pk, nil
}

// ExtPublicKeyFromSigning builds the extended public key for an Ed25519 public key
func ExtPublicKeyFromSigning(signPublic ed25519.PublicKey) (ExtPublicKey, error) {
	var ext ExtPublicKey
	enc, err := EncPublicFromSigning(signPublic)
	if err != nil {
		return ext, err
	}
	copy(ext[:EncPublicKeySize], enc[:])
	copy(ext[EncPublicKeySize:], signPublic)
	return ext, nil
}

// EncryptionKey returns the encryption half of the key
func (k ExtPublicKey) EncryptionKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k[:EncPublicKeySize])
	return pk
}

// SigningKey returns the Ed25519 half of the key
func (k ExtPublicKey) SigningKey() ed25519.PublicKey {
	pk := make(ed25519.PublicKey, SignPublicKeySize)
	copy(pk, k[EncPublicKeySize:])
	return pk
}

// Consistent reports whether the encryption half is derived from the signature half
func (k ExtPublicKey) Consistent() bool {
	enc, err := EncPublicFromSigning(k.SigningKey())
	if err != nil {
		return false
	}
	return ComparePublicKeys(enc, k.EncryptionKey())
}

// IsZero reports whether the key is unset
func (k ExtPublicKey) IsZero() bool {
	return k == ExtPublicKey{}
}

// String returns the hex representation of the key
func (k ExtPublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first 8 hex characters, for logs
func (k ExtPublicKey) Short() string {
	return hex.EncodeToString(k[:4])
}

// MarshalText encodes the key as hex
func (k ExtPublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a hex key
func (k *ExtPublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParseExtPublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// EncryptionKey returns the encryption half of the key
func (k ExtSecretKey) EncryptionKey() SecretKey {
	var sk SecretKey
	copy(sk[:], k[:EncSecretKeySize])
	return sk
}

// SigningKey returns the Ed25519 half of the key
func (k ExtSecretKey) SigningKey() ed25519.PrivateKey {
	sk := make(ed25519.PrivateKey, SignSecretKeySize)
	copy(sk, k[EncSecretKeySize:])
	return sk
}

// EncryptionKeyPair returns the plain encryption key pair
func (kp *ExtKeyPair) EncryptionKeyPair() *KeyPair {
	return &KeyPair{
		Public: kp.Public.EncryptionKey(),
		Secret: kp.Secret.EncryptionKey(),
	}
}

// Sign signs msg with the signature half of the secret key
func (kp *ExtKeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(kp.Secret.SigningKey(), msg)
}

// Verify checks sig over msg against the signature half of pub
func Verify(pub ExtPublicKey, msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(pub.SigningKey(), msg, sig)
}

// ParseExtPublicKey decodes a hex extended public key
func ParseExtPublicKey(s string) (ExtPublicKey, error) {
	var k ExtPublicKey
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != ExtPublicKeySize {
		return k, ErrInvalidKey
	}
	copy(k[:], raw)
	return k, nil
}
