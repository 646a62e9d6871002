package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

var (
	ErrInvalidHeader = errors.New("invalid header")
)

// GroupHeaderSize is the clear-text prefix of every group packet
const GroupHeaderSize = 1 + 4 + crypto.ExtPublicKeySize + crypto.NonceSize

// GroupHeader is the clear-text prefix of a group packet:
//
//	[1 type][4 chat_hash][64 sender ext pk][24 nonce]
type GroupHeader struct {
	Type     byte
	ChatHash uint32
	Sender   crypto.ExtPublicKey
	Nonce    crypto.Nonce
}

// Encode encodes the header to bytes
func (h *GroupHeader) Encode() []byte {
	buf := make([]byte, GroupHeaderSize)
	offset := 0

	buf[offset] = h.Type
	offset++

	binary.BigEndian.PutUint32(buf[offset:], h.ChatHash)
	offset += 4

	copy(buf[offset:], h.Sender[:])
	offset += crypto.ExtPublicKeySize

	copy(buf[offset:], h.Nonce[:])

	return buf
}

// Decode decodes the header from bytes
func (h *GroupHeader) Decode(buf []byte) error {
	if len(buf) < GroupHeaderSize {
		return ErrInvalidHeader
	}

	offset := 0
	h.Type = buf[offset]
	offset++

	h.ChatHash = binary.BigEndian.Uint32(buf[offset:])
	offset += 4

	copy(h.Sender[:], buf[offset:offset+crypto.ExtPublicKeySize])
	offset += crypto.ExtPublicKeySize

	copy(h.Nonce[:], buf[offset:offset+crypto.NonceSize])

	return nil
}

// Validate validates the header
func (h *GroupHeader) Validate() error {
	if !IsGroupPacket(h.Type) {
		return ErrWrongPacketType
	}
	return nil
}

// IsGroupPacket reports whether t is one of the group packet types
func IsGroupPacket(t byte) bool {
	return t == PacketGroupInviteRequest || t == PacketGroupInviteResponse || t == PacketGroupBroadcast
}

// PeekChatHash returns the routing hash of a group packet without decrypting it
func PeekChatHash(packet []byte) (uint32, error) {
	if len(packet) < 5 || !IsGroupPacket(packet[0]) {
		return 0, ErrInvalidHeader
	}
	return binary.BigEndian.Uint32(packet[1:5]), nil
}

// SealGroupPacket encrypts payload under shared and prepends the header
func SealGroupPacket(h *GroupHeader, shared crypto.SharedKey, payload []byte) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if GroupHeaderSize+len(payload)+crypto.MACSize > MaxGCPacketSize {
		return nil, ErrPacketTooLarge
	}

	encrypted, err := crypto.EncryptSymmetric(shared, h.Nonce, payload)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, GroupHeaderSize+len(encrypted))
	buf = append(buf, h.Encode()...)
	buf = append(buf, encrypted...)
	return buf, nil
}

// SplitGroupPacket parses the header and returns it with the still-encrypted body
func SplitGroupPacket(packet []byte) (*GroupHeader, []byte, error) {
	if len(packet) > MaxGCPacketSize {
		return nil, nil, ErrPacketTooLarge
	}
	if len(packet) <= GroupHeaderSize+crypto.MACSize {
		return nil, nil, ErrPacketTooShort
	}

	h := &GroupHeader{}
	if err := h.Decode(packet); err != nil {
		return nil, nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, nil, err
	}

	return h, packet[GroupHeaderSize:], nil
}

// OpenGroupPacket decrypts a body returned by SplitGroupPacket
func OpenGroupPacket(h *GroupHeader, shared crypto.SharedKey, body []byte) ([]byte, error) {
	return crypto.DecryptSymmetric(shared, h.Nonce, body)
}
