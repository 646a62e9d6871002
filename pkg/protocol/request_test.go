package protocol

import (
	"bytes"
	"testing"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

func TestCreateHandleRequest(t *testing.T) {
	alice, _ := crypto.GenerateKeyPair()
	bob, _ := crypto.GenerateKeyPair()

	maxData := MaxCryptoRequestSize - requestHeaderSize - 1 - crypto.MACSize

	tests := []struct {
		name string
		id   byte
		data []byte
	}{
		{"friend request", RequestFriend, []byte("hi, add me")},
		{"ping request", RequestPing, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{"empty data", RequestPing, nil},
		{"maximum size", RequestFriend, bytes.Repeat([]byte{0x55}, maxData)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, err := CreateRequest(alice.Public, alice.Secret, bob.Public, tt.data, tt.id)
			if err != nil {
				t.Fatalf("CreateRequest() error = %v", err)
			}

			if pkt[0] != PacketCrypto {
				t.Errorf("packet type = %x, want %x", pkt[0], PacketCrypto)
			}

			sender, id, data, err := HandleRequest(bob.Public, bob.Secret, pkt)
			if err != nil {
				t.Fatalf("HandleRequest() error = %v", err)
			}

			if sender != alice.Public {
				t.Error("sender key mismatch")
			}
			if id != tt.id {
				t.Errorf("request id = %d, want %d", id, tt.id)
			}
			if !bytes.Equal(data, tt.data) {
				t.Error("payload mismatch")
			}
		})
	}
}

func TestCreateRequestTooLarge(t *testing.T) {
	alice, _ := crypto.GenerateKeyPair()
	bob, _ := crypto.GenerateKeyPair()

	data := make([]byte, MaxCryptoRequestSize-requestHeaderSize-crypto.MACSize)
	pkt, err := CreateRequest(alice.Public, alice.Secret, bob.Public, data, RequestFriend)
	if err != ErrPacketTooLarge {
		t.Errorf("CreateRequest() error = %v, want %v", err, ErrPacketTooLarge)
	}
	if pkt != nil {
		t.Error("no packet expected on failure")
	}
}

func TestHandleRequestFailures(t *testing.T) {
	alice, _ := crypto.GenerateKeyPair()
	bob, _ := crypto.GenerateKeyPair()
	eve, _ := crypto.GenerateKeyPair()

	pkt, err := CreateRequest(alice.Public, alice.Secret, bob.Public, []byte("secret"), RequestFriend)
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	// Eve claims to be the recipient
	redirected := append([]byte(nil), pkt...)
	copy(redirected[1:], eve.Public[:])

	wrongType := append([]byte(nil), pkt...)
	wrongType[0] = PacketGroupBroadcast

	tampered := append([]byte(nil), pkt...)
	tampered[len(tampered)-1] ^= 0x01

	tests := []struct {
		name    string
		pub     crypto.PublicKey
		sec     crypto.SecretKey
		packet  []byte
		wantErr error
	}{
		{"wrong recipient", eve.Public, eve.Secret, pkt, ErrWrongRecipient},
		{"wrong secret key", bob.Public, eve.Secret, pkt, crypto.ErrDecryptionFailed},
		{"truncated by one byte", bob.Public, bob.Secret, pkt[:len(pkt)-1], crypto.ErrDecryptionFailed},
		{"tampered", bob.Public, bob.Secret, tampered, crypto.ErrDecryptionFailed},
		{"redirected", eve.Public, eve.Secret, redirected, crypto.ErrDecryptionFailed},
		{"wrong type", bob.Public, bob.Secret, wrongType, ErrWrongPacketType},
		{"too short", bob.Public, bob.Secret, pkt[:minRequestSize-1], ErrPacketTooShort},
		{"too large", bob.Public, bob.Secret, make([]byte, MaxCryptoRequestSize+1), ErrPacketTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, data, err := HandleRequest(tt.pub, tt.sec, tt.packet)
			if err != tt.wantErr {
				t.Errorf("HandleRequest() error = %v, want %v", err, tt.wantErr)
			}
			if data != nil {
				t.Error("no payload expected on failure")
			}
		})
	}
}

func TestCreateRequestFreshNonce(t *testing.T) {
	alice, _ := crypto.GenerateKeyPair()
	bob, _ := crypto.GenerateKeyPair()

	a, _ := CreateRequest(alice.Public, alice.Secret, bob.Public, []byte("x"), RequestPing)
	b, _ := CreateRequest(alice.Public, alice.Secret, bob.Public, []byte("x"), RequestPing)

	nonceA := a[1+64 : 1+64+crypto.NonceSize]
	nonceB := b[1+64 : 1+64+crypto.NonceSize]
	if bytes.Equal(nonceA, nonceB) {
		t.Error("two requests share a nonce")
	}
}
