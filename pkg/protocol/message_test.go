package protocol

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

func TestAddrCodec(t *testing.T) {
	tests := []struct {
		name string
		addr netip.AddrPort
	}{
		{"ipv4", netip.MustParseAddrPort("192.168.1.10:33445")},
		{"ipv6", netip.MustParseAddrPort("[2001:db8::1]:443")},
		{"unset", netip.AddrPort{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [AddrSize]byte
			PutAddr(buf[:], tt.addr)
			if got := GetAddr(buf[:]); got != tt.addr {
				t.Errorf("GetAddr() = %v, want %v", got, tt.addr)
			}
		})
	}
}

func TestInviteRequestEncodeDecode(t *testing.T) {
	kp, _ := crypto.GenerateExtKeyPair()
	msg := &InviteRequest{
		Semi: *NewSemiInvite(kp, 99),
		Nick: []byte("alice"),
	}

	encoded := msg.Encode()
	if len(encoded) != SemiInviteCertificateSize+1+5 {
		t.Errorf("Encode() length = %d", len(encoded))
	}

	var decoded InviteRequest
	if err := decoded.Decode(encoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Semi != msg.Semi || !bytes.Equal(decoded.Nick, msg.Nick) {
		t.Error("decoded invite request differs")
	}

	if err := decoded.Decode(encoded[:len(encoded)-1]); err != ErrTruncated {
		t.Errorf("Decode() truncated error = %v, want %v", err, ErrTruncated)
	}
}

func TestBroadcastEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		msg  *Broadcast
	}{
		{"message", &Broadcast{Kind: KindMessage, Number: 7, Body: []byte("hi all")}},
		{"ping", &Broadcast{Kind: KindPing, Number: 1, Body: EncodePing(12)}},
		{"empty body", &Broadcast{Kind: KindSyncRequest, Number: 0xffffffff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded Broadcast
			if err := decoded.Decode(tt.msg.Encode()); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if decoded.Kind != tt.msg.Kind || decoded.Number != tt.msg.Number {
				t.Errorf("decoded = %+v, want %+v", decoded, tt.msg)
			}
			if !bytes.Equal(decoded.Body, tt.msg.Body) {
				t.Errorf("body = %x, want %x", decoded.Body, tt.msg.Body)
			}
		})
	}

	var b Broadcast
	if err := b.Decode([]byte{1, 0, 0}); err != ErrTruncated {
		t.Errorf("Decode() short error = %v, want %v", err, ErrTruncated)
	}

	count, err := DecodePing(EncodePing(12))
	if err != nil || count != 12 {
		t.Errorf("DecodePing() = %d, %v", count, err)
	}
}

func TestPeerAnnounceEncodeDecode(t *testing.T) {
	invitee, _, invite := newInvite(t)

	msg := &PeerAnnounce{
		PublicKey: invitee.Public,
		Invite:    *invite,
		Addr:      netip.MustParseAddrPort("10.0.0.2:5000"),
		Nick:      []byte("bob"),
	}

	var decoded PeerAnnounce
	if err := decoded.Decode(msg.Encode()); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.PublicKey != msg.PublicKey || decoded.Invite != msg.Invite || decoded.Addr != msg.Addr {
		t.Error("decoded announce differs")
	}
	if !bytes.Equal(decoded.Nick, msg.Nick) {
		t.Errorf("nick = %q, want %q", decoded.Nick, msg.Nick)
	}
}

func TestSyncPayloadEncodeDecode(t *testing.T) {
	invitee, inviter, invite := newInvite(t)
	ban, _ := NewCommonCertificate(CertBan, invitee.Public, inviter, 5)
	op, _ := NewCommonCertificate(CertOpCredentials, inviter.Public, inviter, 6)

	msg := &SyncPayload{
		Topic: []byte("weekly sync"),
		Peers: []PeerRecord{
			{
				PublicKey: invitee.Public,
				Invite:    *invite,
				Addr:      netip.MustParseAddrPort("10.0.0.2:5000"),
				Role:      4,
				Status:    StatusAway,
				Nick:      []byte("bob"),
				Certs:     []CommonCertificate{*ban},
			},
			{
				PublicKey: inviter.Public,
				Invite:    *invite,
				Role:      1 | 4,
				Status:    StatusOnline,
				Nick:      []byte("carol"),
				Certs:     []CommonCertificate{*op},
			},
		},
	}

	var decoded SyncPayload
	if err := decoded.Decode(msg.Encode()); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !bytes.Equal(decoded.Topic, msg.Topic) {
		t.Errorf("topic = %q, want %q", decoded.Topic, msg.Topic)
	}
	if len(decoded.Peers) != len(msg.Peers) {
		t.Fatalf("peers = %d, want %d", len(decoded.Peers), len(msg.Peers))
	}
	for i := range msg.Peers {
		want, got := msg.Peers[i], decoded.Peers[i]
		if got.PublicKey != want.PublicKey || got.Invite != want.Invite || got.Addr != want.Addr {
			t.Errorf("peer %d identity differs", i)
		}
		if got.Role != want.Role || got.Status != want.Status || !bytes.Equal(got.Nick, want.Nick) {
			t.Errorf("peer %d state differs", i)
		}
		if len(got.Certs) != 1 || got.Certs[0] != want.Certs[0] {
			t.Errorf("peer %d certificates differ", i)
		}
	}

	t.Logf("✅ Sync payload round trip with %d peers", len(decoded.Peers))
}

func TestSyncPayloadKeepsNewestCertificates(t *testing.T) {
	invitee, inviter, invite := newInvite(t)

	var certs []CommonCertificate
	for i := 0; i < MaxCertificatesNum+2; i++ {
		c, _ := NewCommonCertificate(CertOpCredentials, invitee.Public, inviter, uint64(i))
		certs = append(certs, *c)
	}

	msg := &SyncPayload{Peers: []PeerRecord{{PublicKey: invitee.Public, Invite: *invite, Certs: certs}}}

	var decoded SyncPayload
	if err := decoded.Decode(msg.Encode()); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	got := decoded.Peers[0].Certs
	if len(got) != MaxCertificatesNum {
		t.Fatalf("certificates = %d, want %d", len(got), MaxCertificatesNum)
	}
	if got[0].Timestamp != 2 {
		t.Errorf("oldest kept timestamp = %d, want 2", got[0].Timestamp)
	}
}

func TestSyncPayloadRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"topic overrun", []byte{0x00, 0x10, 'a'}},
		{"topic too long", []byte{0xff, 0xff}},
		{"missing peer", []byte{0x00, 0x00, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s SyncPayload
			if err := s.Decode(tt.buf); err == nil {
				t.Error("Decode() expected error")
			}
		})
	}
}
