package protocol

import (
	"errors"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

var (
	ErrPacketTooLarge  = errors.New("packet too large")
	ErrPacketTooShort  = errors.New("packet too short")
	ErrWrongPacketType = errors.New("wrong packet type")
	ErrWrongRecipient  = errors.New("packet not addressed to us")
)

const requestHeaderSize = 1 + crypto.EncPublicKeySize*2 + crypto.NonceSize

// minRequestSize is the smallest envelope carrying at least a request id
const minRequestSize = requestHeaderSize + 1 + crypto.MACSize

// CreateRequest builds an anonymous request envelope:
//
//	[0x20][32 recv_pk][32 send_pk][24 nonce][box(request_id || data)]
//
// A fresh random nonce is used for every request.
func CreateRequest(sendPub crypto.PublicKey, sendSec crypto.SecretKey, recvPub crypto.PublicKey, data []byte, requestID byte) ([]byte, error) {
	size := requestHeaderSize + 1 + len(data) + crypto.MACSize
	if size > MaxCryptoRequestSize {
		return nil, ErrPacketTooLarge
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		return nil, err
	}

	plain := make([]byte, 1+len(data))
	plain[0] = requestID
	copy(plain[1:], data)

	encrypted, err := crypto.EncryptAsymmetric(recvPub, sendSec, nonce, plain)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, size)
	buf = append(buf, PacketCrypto)
	buf = append(buf, recvPub[:]...)
	buf = append(buf, sendPub[:]...)
	buf = append(buf, nonce[:]...)
	buf = append(buf, encrypted...)

	return buf, nil
}

// HandleRequest opens a request envelope addressed to selfPub and returns
// the sender key, request id and payload. Nothing in the payload is looked at
// before authentication succeeds.
func HandleRequest(selfPub crypto.PublicKey, selfSec crypto.SecretKey, packet []byte) (crypto.PublicKey, byte, []byte, error) {
	var sender crypto.PublicKey

	if len(packet) < minRequestSize {
		return sender, 0, nil, ErrPacketTooShort
	}
	if len(packet) > MaxCryptoRequestSize {
		return sender, 0, nil, ErrPacketTooLarge
	}
	if packet[0] != PacketCrypto {
		return sender, 0, nil, ErrWrongPacketType
	}

	offset := 1
	var recipient crypto.PublicKey
	copy(recipient[:], packet[offset:offset+crypto.EncPublicKeySize])
	offset += crypto.EncPublicKeySize

	if recipient != selfPub {
		return sender, 0, nil, ErrWrongRecipient
	}

	copy(sender[:], packet[offset:offset+crypto.EncPublicKeySize])
	offset += crypto.EncPublicKeySize

	var nonce crypto.Nonce
	copy(nonce[:], packet[offset:offset+crypto.NonceSize])
	offset += crypto.NonceSize

	plain, err := crypto.DecryptAsymmetric(sender, selfSec, nonce, packet[offset:])
	if err != nil {
		return crypto.PublicKey{}, 0, nil, crypto.ErrDecryptionFailed
	}

	return sender, plain[0], plain[1:], nil
}
