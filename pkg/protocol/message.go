package protocol

import (
	"encoding/binary"
	"net/netip"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

// ===== INVITE REQUEST =====

// InviteRequest is sent by a joining peer: [137 semi-invite][1 nick_len][nick]
type InviteRequest struct {
	Semi SemiInviteCertificate
	Nick []byte
}

// Encode encodes the invite request to bytes
func (m *InviteRequest) Encode() []byte {
	buf := make([]byte, 0, SemiInviteCertificateSize+1+len(m.Nick))
	buf = append(buf, m.Semi.Encode()...)
	buf = append(buf, byte(len(m.Nick)))
	buf = append(buf, m.Nick...)
	return buf
}

// Decode decodes the invite request from bytes
func (m *InviteRequest) Decode(buf []byte) error {
	r := &reader{buf: buf}

	cert, err := r.next(SemiInviteCertificateSize)
	if err != nil {
		return err
	}
	if err := m.Semi.Decode(cert); err != nil {
		return err
	}

	m.Nick, err = r.bytes8(MaxGCNickSize)
	return err
}

// ===== INVITE RESPONSE =====

// InviteResponse carries the countersigned invite and the inviter's view of the chat
type InviteResponse struct {
	Invite InviteCertificate
	Sync   SyncPayload
}

// Encode encodes the invite response to bytes
func (m *InviteResponse) Encode() []byte {
	buf := make([]byte, 0, InviteCertificateSize+64)
	buf = append(buf, m.Invite.Encode()...)
	buf = append(buf, m.Sync.Encode()...)
	return buf
}

// Decode decodes the invite response from bytes
func (m *InviteResponse) Decode(buf []byte) error {
	if len(buf) < InviteCertificateSize {
		return ErrTruncated
	}
	if err := m.Invite.Decode(buf[:InviteCertificateSize]); err != nil {
		return err
	}
	return m.Sync.Decode(buf[InviteCertificateSize:])
}

// ===== BROADCAST =====

// Broadcast is the payload of every in-chat message: [1 kind][4 message_number][body]
type Broadcast struct {
	Kind   MessageKind
	Number uint32
	Body   []byte
}

// Encode encodes the broadcast to bytes
func (m *Broadcast) Encode() []byte {
	buf := make([]byte, 5+len(m.Body))
	buf[0] = byte(m.Kind)
	binary.BigEndian.PutUint32(buf[1:], m.Number)
	copy(buf[5:], m.Body)
	return buf
}

// Decode decodes the broadcast from bytes
func (m *Broadcast) Decode(buf []byte) error {
	r := &reader{buf: buf}

	kind, err := r.u8()
	if err != nil {
		return err
	}
	m.Kind = MessageKind(kind)

	if m.Number, err = r.u32(); err != nil {
		return err
	}

	m.Body = r.rest()
	return nil
}

// EncodePing encodes a ping body carrying the sender's peer count
func EncodePing(peerCount uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, peerCount)
}

// DecodePing decodes a ping body
func DecodePing(body []byte) (uint32, error) {
	r := &reader{buf: body}
	return r.u32()
}

// ===== NEW PEER =====

// PeerAnnounce introduces a peer to the chat: [64 pk][273 invite][18 addr][1 nick_len][nick]
type PeerAnnounce struct {
	PublicKey crypto.ExtPublicKey
	Invite    InviteCertificate
	Addr      netip.AddrPort
	Nick      []byte
}

// Encode encodes the announcement to bytes
func (m *PeerAnnounce) Encode() []byte {
	buf := make([]byte, crypto.ExtPublicKeySize+InviteCertificateSize+AddrSize, crypto.ExtPublicKeySize+InviteCertificateSize+AddrSize+1+len(m.Nick))
	offset := 0

	copy(buf[offset:], m.PublicKey[:])
	offset += crypto.ExtPublicKeySize

	copy(buf[offset:], m.Invite.Encode())
	offset += InviteCertificateSize

	PutAddr(buf[offset:], m.Addr)

	buf = append(buf, byte(len(m.Nick)))
	buf = append(buf, m.Nick...)
	return buf
}

// Decode decodes the announcement from bytes
func (m *PeerAnnounce) Decode(buf []byte) error {
	r := &reader{buf: buf}

	pk, err := r.next(crypto.ExtPublicKeySize)
	if err != nil {
		return err
	}
	copy(m.PublicKey[:], pk)

	cert, err := r.next(InviteCertificateSize)
	if err != nil {
		return err
	}
	if err := m.Invite.Decode(cert); err != nil {
		return err
	}

	addr, err := r.next(AddrSize)
	if err != nil {
		return err
	}
	m.Addr = GetAddr(addr)

	m.Nick, err = r.bytes8(MaxGCNickSize)
	return err
}

// ===== SYNC =====

// PeerRecord is one peer in a sync payload
type PeerRecord struct {
	PublicKey crypto.ExtPublicKey
	Invite    InviteCertificate
	Addr      netip.AddrPort
	Role      uint64
	Status    Status
	Nick      []byte
	Certs     []CommonCertificate
}

// SyncPayload is a chat snapshot: [2 topic_len][topic][2 npeers][records...]
type SyncPayload struct {
	Topic []byte
	Peers []PeerRecord
}

// Encode encodes the snapshot to bytes
func (m *SyncPayload) Encode() []byte {
	buf := make([]byte, 0, 4+len(m.Topic))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Topic)))
	buf = append(buf, m.Topic...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Peers)))

	for i := range m.Peers {
		p := &m.Peers[i]
		buf = append(buf, p.PublicKey[:]...)
		buf = append(buf, p.Invite.Encode()...)

		var addr [AddrSize]byte
		PutAddr(addr[:], p.Addr)
		buf = append(buf, addr[:]...)

		buf = binary.BigEndian.AppendUint64(buf, p.Role)
		buf = append(buf, byte(p.Status))
		buf = append(buf, byte(len(p.Nick)))
		buf = append(buf, p.Nick...)

		certs := p.Certs
		if len(certs) > MaxCertificatesNum {
			certs = certs[len(certs)-MaxCertificatesNum:]
		}
		buf = append(buf, byte(len(certs)))
		for j := range certs {
			buf = append(buf, certs[j].Encode()...)
		}
	}

	return buf
}

// Decode decodes the snapshot from bytes
func (m *SyncPayload) Decode(buf []byte) error {
	r := &reader{buf: buf}

	topicLen, err := r.u16()
	if err != nil {
		return err
	}
	if int(topicLen) > MaxGCTopicSize {
		return ErrTruncated
	}
	topic, err := r.next(int(topicLen))
	if err != nil {
		return err
	}
	m.Topic = append([]byte(nil), topic...)

	count, err := r.u16()
	if err != nil {
		return err
	}

	m.Peers = make([]PeerRecord, 0, count)
	for i := 0; i < int(count); i++ {
		var p PeerRecord

		pk, err := r.next(crypto.ExtPublicKeySize)
		if err != nil {
			return err
		}
		copy(p.PublicKey[:], pk)

		cert, err := r.next(InviteCertificateSize)
		if err != nil {
			return err
		}
		if err := p.Invite.Decode(cert); err != nil {
			return err
		}

		addr, err := r.next(AddrSize)
		if err != nil {
			return err
		}
		p.Addr = GetAddr(addr)

		if p.Role, err = r.u64(); err != nil {
			return err
		}

		status, err := r.u8()
		if err != nil {
			return err
		}
		p.Status = Status(status)

		if p.Nick, err = r.bytes8(MaxGCNickSize); err != nil {
			return err
		}

		ncerts, err := r.u8()
		if err != nil {
			return err
		}
		if int(ncerts) > MaxCertificatesNum {
			return ErrInvalidCertificate
		}
		for j := 0; j < int(ncerts); j++ {
			raw, err := r.next(CommonCertificateSize)
			if err != nil {
				return err
			}
			var c CommonCertificate
			if err := c.Decode(raw); err != nil {
				return err
			}
			p.Certs = append(p.Certs, c)
		}

		m.Peers = append(m.Peers, p)
	}

	return nil
}
