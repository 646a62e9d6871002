// Package identity keeps the node's long-term key pair in a keyring
package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log"

	"github.com/99designs/keyring"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

// ServiceName namespaces our items in the OS keyring
const ServiceName = "zentalk-groupchat"

// DefaultKeyName is used when the node is not given a key name
const DefaultKeyName = "default"

var ErrNotFound = errors.New("identity not found")

// Config selects the keyring backend
type Config struct {
	// Dir enables the encrypted file backend in this directory. When empty,
	// the platform's native keyring is used.
	Dir      string
	Password string
}

// Store reads and writes extended key pairs. Only the Ed25519 private key
// is stored; the encryption half is derived from it.
type Store struct {
	ring keyring.Keyring
}

// Open opens the configured keyring
func Open(cfg Config) (*Store, error) {
	kc := keyring.Config{ServiceName: ServiceName}
	if cfg.Dir != "" {
		kc.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		kc.FileDir = cfg.Dir
		kc.FilePasswordFunc = keyring.FixedStringPrompt(cfg.Password)
	}

	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewStore(ring), nil
}

// NewStore wraps an opened keyring
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Load returns the key pair stored under name
func (s *Store) Load(name string) (*crypto.ExtKeyPair, error) {
	item, err := s.ring.Get(name)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key from keyring: %w", err)
	}

	block, _ := pem.Decode(item.Data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key %q is not Ed25519", name)
	}

	return crypto.ExtKeyPairFromSigningKey(edKey)
}

// Save stores kp under name, replacing any existing key
func (s *Store) Save(name string, kp *crypto.ExtKeyPair) error {
	der, err := x509.MarshalPKCS8PrivateKey(kp.Secret.SigningKey())
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	err = s.ring.Set(keyring.Item{
		Key:         name,
		Data:        pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}),
		Label:       "group chat identity " + name,
		Description: kp.Public.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

// LoadOrCreate returns the key pair under name, generating and storing a new
// one on first use
func (s *Store) LoadOrCreate(name string) (*crypto.ExtKeyPair, error) {
	kp, err := s.Load(name)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	kp, err = crypto.GenerateExtKeyPair()
	if err != nil {
		return nil, err
	}
	if err := s.Save(name, kp); err != nil {
		return nil, err
	}

	log.Printf("✅ Generated identity %q: %s", name, kp.Public.Short())
	return kp, nil
}

// Names lists stored identities
func (s *Store) Names() ([]string, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	return keys, nil
}

// Delete removes the identity under name
func (s *Store) Delete(name string) error {
	if _, err := s.ring.Get(name); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get key from keyring: %w", err)
	}
	return s.ring.Remove(name)
}
