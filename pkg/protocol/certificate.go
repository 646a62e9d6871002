package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidCertificate = errors.New("invalid certificate")
)

// ===== SEMI-INVITE =====

// SemiInviteCertificate is the invitee's half of an invite, pending countersignature
type SemiInviteCertificate struct {
	Invitee          crypto.ExtPublicKey
	InviteeTimestamp uint64
	InviteeSignature [crypto.SignatureSize]byte
}

// NewSemiInvite signs a semi-invite for the invitee's own key
func NewSemiInvite(invitee *crypto.ExtKeyPair, timestamp uint64) *SemiInviteCertificate {
	c := &SemiInviteCertificate{
		Invitee:          invitee.Public,
		InviteeTimestamp: timestamp,
	}
	copy(c.InviteeSignature[:], invitee.Sign(c.EncodeForSigning()))
	return c
}

// EncodeForSigning encodes the semi-invite without its signature
func (c *SemiInviteCertificate) EncodeForSigning() []byte {
	buf := make([]byte, SemiInviteCertificateSize-crypto.SignatureSize)
	offset := 0

	buf[offset] = byte(CertInvite)
	offset++

	copy(buf[offset:], c.Invitee[:])
	offset += crypto.ExtPublicKeySize

	binary.BigEndian.PutUint64(buf[offset:], c.InviteeTimestamp)

	return buf
}

// Encode encodes the semi-invite to bytes
func (c *SemiInviteCertificate) Encode() []byte {
	buf := make([]byte, 0, SemiInviteCertificateSize)
	buf = append(buf, c.EncodeForSigning()...)
	buf = append(buf, c.InviteeSignature[:]...)
	return buf
}

// Decode decodes a semi-invite from bytes
func (c *SemiInviteCertificate) Decode(buf []byte) error {
	if len(buf) < SemiInviteCertificateSize {
		return ErrInvalidCertificate
	}
	if CertType(buf[0]) != CertInvite {
		return ErrInvalidCertificate
	}

	offset := 1
	copy(c.Invitee[:], buf[offset:offset+crypto.ExtPublicKeySize])
	offset += crypto.ExtPublicKeySize

	c.InviteeTimestamp = binary.BigEndian.Uint64(buf[offset:])
	offset += TimestampSize

	copy(c.InviteeSignature[:], buf[offset:offset+crypto.SignatureSize])

	return nil
}

// Verify checks the invitee signature
func (c *SemiInviteCertificate) Verify() error {
	if !crypto.Verify(c.Invitee, c.EncodeForSigning(), c.InviteeSignature[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// Countersign completes the invite. The semi-invite must verify first.
func (c *SemiInviteCertificate) Countersign(inviter *crypto.ExtKeyPair, timestamp uint64) (*InviteCertificate, error) {
	if err := c.Verify(); err != nil {
		return nil, err
	}

	invite := &InviteCertificate{
		Invitee:          c.Invitee,
		InviteeTimestamp: c.InviteeTimestamp,
		InviteeSignature: c.InviteeSignature,
		Inviter:          inviter.Public,
		InviterTimestamp: timestamp,
	}
	copy(invite.InviterSignature[:], inviter.Sign(invite.EncodeForSigning()))

	return invite, nil
}

// ===== INVITE =====

// InviteCertificate is a co-signed attestation that Inviter admitted Invitee
type InviteCertificate struct {
	Invitee          crypto.ExtPublicKey
	InviteeTimestamp uint64
	InviteeSignature [crypto.SignatureSize]byte
	Inviter          crypto.ExtPublicKey
	InviterTimestamp uint64
	InviterSignature [crypto.SignatureSize]byte
}

// Semi returns the invitee half of the certificate
func (c *InviteCertificate) Semi() *SemiInviteCertificate {
	return &SemiInviteCertificate{
		Invitee:          c.Invitee,
		InviteeTimestamp: c.InviteeTimestamp,
		InviteeSignature: c.InviteeSignature,
	}
}

// EncodeForSigning encodes every field before the inviter signature
func (c *InviteCertificate) EncodeForSigning() []byte {
	buf := make([]byte, 0, InviteCertificateSize-crypto.SignatureSize)
	buf = append(buf, c.Semi().Encode()...)
	buf = append(buf, c.Inviter[:]...)
	buf = binary.BigEndian.AppendUint64(buf, c.InviterTimestamp)
	return buf
}

// Encode encodes the invite certificate to bytes
func (c *InviteCertificate) Encode() []byte {
	buf := make([]byte, 0, InviteCertificateSize)
	buf = append(buf, c.EncodeForSigning()...)
	buf = append(buf, c.InviterSignature[:]...)
	return buf
}

// Decode decodes an invite certificate from bytes
func (c *InviteCertificate) Decode(buf []byte) error {
	if len(buf) < InviteCertificateSize {
		return ErrInvalidCertificate
	}

	var semi SemiInviteCertificate
	if err := semi.Decode(buf); err != nil {
		return err
	}
	c.Invitee = semi.Invitee
	c.InviteeTimestamp = semi.InviteeTimestamp
	c.InviteeSignature = semi.InviteeSignature

	offset := SemiInviteCertificateSize
	copy(c.Inviter[:], buf[offset:offset+crypto.ExtPublicKeySize])
	offset += crypto.ExtPublicKeySize

	c.InviterTimestamp = binary.BigEndian.Uint64(buf[offset:])
	offset += TimestampSize

	copy(c.InviterSignature[:], buf[offset:offset+crypto.SignatureSize])

	return nil
}

// Verify checks both signatures. Timestamps are not ordered against each other.
func (c *InviteCertificate) Verify() error {
	if err := c.Semi().Verify(); err != nil {
		return err
	}
	if !crypto.Verify(c.Inviter, c.EncodeForSigning(), c.InviterSignature[:]) {
		return ErrInvalidSignature
	}
	return nil
}

// Timestamp is the authoritative time of the invite, used to order bans
func (c *InviteCertificate) Timestamp() uint64 {
	if c.InviterTimestamp > c.InviteeTimestamp {
		return c.InviterTimestamp
	}
	return c.InviteeTimestamp
}

// IsZero reports whether the certificate is unset
func (c *InviteCertificate) IsZero() bool {
	return c.Invitee.IsZero() && c.Inviter.IsZero()
}

// ===== COMMON =====

// CommonCertificate is a single-signer attestation (ban, operator grant or revoke)
type CommonCertificate struct {
	Type      CertType
	Target    crypto.ExtPublicKey
	Source    crypto.ExtPublicKey
	Timestamp uint64
	Signature [crypto.SignatureSize]byte
}

// NewCommonCertificate creates and signs a certificate from source against target
func NewCommonCertificate(certType CertType, target crypto.ExtPublicKey, source *crypto.ExtKeyPair, timestamp uint64) (*CommonCertificate, error) {
	if !isCommonType(certType) {
		return nil, ErrInvalidCertificate
	}

	c := &CommonCertificate{
		Type:      certType,
		Target:    target,
		Source:    source.Public,
		Timestamp: timestamp,
	}
	copy(c.Signature[:], source.Sign(c.EncodeForSigning()))

	return c, nil
}

// EncodeForSigning encodes the certificate without its signature
func (c *CommonCertificate) EncodeForSigning() []byte {
	buf := make([]byte, CommonCertificateSize-crypto.SignatureSize)
	offset := 0

	buf[offset] = byte(c.Type)
	offset++

	copy(buf[offset:], c.Target[:])
	offset += crypto.ExtPublicKeySize

	copy(buf[offset:], c.Source[:])
	offset += crypto.ExtPublicKeySize

	binary.BigEndian.PutUint64(buf[offset:], c.Timestamp)

	return buf
}

// Encode encodes the certificate to bytes
func (c *CommonCertificate) Encode() []byte {
	buf := make([]byte, 0, CommonCertificateSize)
	buf = append(buf, c.EncodeForSigning()...)
	buf = append(buf, c.Signature[:]...)
	return buf
}

// Decode decodes a common certificate from bytes
func (c *CommonCertificate) Decode(buf []byte) error {
	if len(buf) < CommonCertificateSize {
		return ErrInvalidCertificate
	}

	c.Type = CertType(buf[0])
	if !isCommonType(c.Type) {
		return ErrInvalidCertificate
	}

	offset := 1
	copy(c.Target[:], buf[offset:offset+crypto.ExtPublicKeySize])
	offset += crypto.ExtPublicKeySize

	copy(c.Source[:], buf[offset:offset+crypto.ExtPublicKeySize])
	offset += crypto.ExtPublicKeySize

	c.Timestamp = binary.BigEndian.Uint64(buf[offset:])
	offset += TimestampSize

	copy(c.Signature[:], buf[offset:offset+crypto.SignatureSize])

	return nil
}

// Verify checks the source signature. Whether the source is allowed to
// issue the certificate is decided by the chat holding it.
func (c *CommonCertificate) Verify() error {
	if !isCommonType(c.Type) {
		return ErrInvalidCertificate
	}
	if !crypto.Verify(c.Source, c.EncodeForSigning(), c.Signature[:]) {
		return ErrInvalidSignature
	}
	return nil
}

func isCommonType(t CertType) bool {
	return t == CertBan || t == CertOpCredentials || t == CertRevokeOpCredentials
}
