package group

import (
	"log"
	"net/netip"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

// HandlePacket processes one inbound group packet. Authentication happens
// before any payload field is read.
func (c *Chat) HandlePacket(src netip.AddrPort, packet []byte) error {
	if c.state != StateJoining && c.state != StateJoined {
		return ErrNotJoined
	}

	h, body, err := protocol.SplitGroupPacket(packet)
	if err != nil {
		return err
	}
	if h.ChatHash != c.chatHash {
		return ErrWrongChat
	}
	if h.Sender == c.self.Public {
		return ErrFromSelf
	}

	plain, err := protocol.OpenGroupPacket(h, c.keys.Get(h.Sender.EncryptionKey()), body)
	if err != nil {
		return crypto.ErrDecryptionFailed
	}

	switch h.Type {
	case protocol.PacketGroupInviteRequest:
		return c.handleInviteRequest(src, h.Sender, plain)
	case protocol.PacketGroupInviteResponse:
		return c.handleInviteResponse(src, h.Sender, plain)
	default:
		return c.handleBroadcast(src, h.Sender, plain)
	}
}

// ===== JOIN =====

func (c *Chat) handleInviteRequest(src netip.AddrPort, sender crypto.ExtPublicKey, plain []byte) error {
	if c.state != StateJoined {
		return ErrNotJoined
	}
	if c.me.Banned {
		return ErrBanned
	}

	var req protocol.InviteRequest
	if err := req.Decode(plain); err != nil {
		return err
	}
	if req.Semi.Invitee != sender {
		return protocol.ErrInvalidCertificate
	}
	if !sender.Consistent() {
		return crypto.ErrInvalidKey
	}
	if len(req.Nick) == 0 {
		return ErrEmptyPayload
	}
	if p := c.lookup(sender); p != nil && p.Banned {
		log.Printf("⚠️  Invite request from banned key %s rejected", sender.Short())
		return ErrBanned
	}

	invite, err := req.Semi.Countersign(c.self, c.timestamp())
	if err != nil {
		return err
	}

	p, isNew := c.addPeer(sender, *invite, src, req.Nick)
	if !isNew {
		// A retransmitted request: answer with the invite we already issued
		invite = &p.Invite
	}
	c.recomputeVerification()
	c.fillCloseSet()

	resp := &protocol.InviteResponse{Invite: *invite, Sync: c.syncPayload(p.Number)}
	if err := c.sendPacket(protocol.PacketGroupInviteResponse, p.PublicKey, p.Addr, resp.Encode()); err != nil {
		return err
	}

	if isNew {
		announce := &protocol.PeerAnnounce{
			PublicKey: p.PublicKey,
			Invite:    p.Invite,
			Addr:      p.Addr,
			Nick:      p.Nick,
		}
		c.broadcast(protocol.KindNewPeer, announce.Encode(), p.Number)

		log.Printf("✅ Invited %s into chat %s as peer %d", sender.Short(), c.chatKey.Short(), p.Number)
		c.emit(PeerJoinEvent{Peer: p.Number})
	}
	return nil
}

func (c *Chat) handleInviteResponse(src netip.AddrPort, sender crypto.ExtPublicKey, plain []byte) error {
	if c.state != StateJoining {
		return ErrWrongState
	}

	var resp protocol.InviteResponse
	if err := resp.Decode(plain); err != nil {
		return err
	}

	invite := resp.Invite
	if invite.Invitee != c.self.Public || invite.Inviter != sender {
		return protocol.ErrInvalidCertificate
	}
	if err := invite.Verify(); err != nil {
		return err
	}

	c.me.Invite = invite
	c.topic = append([]byte(nil), resp.Sync.Topic...)
	c.mergeSync(src, sender, &resp.Sync)
	c.enterJoined()
	c.fillCloseSet()

	log.Printf("✅ Joined chat %s through %s with %d peers", c.chatKey.Short(), sender.Short(), len(c.peers))
	c.emit(SelfJoinEvent{Peers: c.PeerNumbers()})
	return nil
}

// ===== SYNC =====

// syncRecordSize is the encoded size of one peer record
func syncRecordSize(p *Peer) int {
	certs := len(p.Certs)
	if certs > protocol.MaxCertificatesNum {
		certs = protocol.MaxCertificatesNum
	}
	return crypto.ExtPublicKeySize + protocol.InviteCertificateSize + protocol.AddrSize + 8 + 1 + 1 + len(p.Nick) + 1 + certs*protocol.CommonCertificateSize
}

// syncPayload snapshots the chat: our own record first, then every peer
// except skip, stopping before the packet would overflow
func (c *Chat) syncPayload(skip PeerNumber) protocol.SyncPayload {
	budget := protocol.MaxGCPacketSize - protocol.GroupHeaderSize - crypto.MACSize -
		protocol.InviteCertificateSize - 4 - len(c.topic)

	s := protocol.SyncPayload{Topic: c.Topic()}
	records := make([]*Peer, 0, len(c.peers)+1)
	records = append(records, c.me)
	for _, num := range c.PeerNumbers() {
		if num != skip {
			records = append(records, c.peers[num])
		}
	}

	for _, p := range records {
		size := syncRecordSize(p)
		if size > budget {
			break
		}
		budget -= size
		s.Peers = append(s.Peers, protocol.PeerRecord{
			PublicKey: p.PublicKey,
			Invite:    p.Invite,
			Addr:      p.Addr,
			Role:      uint64(p.role),
			Status:    p.Status,
			Nick:      p.Nick,
			Certs:     p.Certs,
		})
	}
	return s
}

// mergeSync adds every verifiable peer in a snapshot and replays their
// certificates. The sender's own record takes the address it was seen from.
func (c *Chat) mergeSync(src netip.AddrPort, sender crypto.ExtPublicKey, s *protocol.SyncPayload) []PeerNumber {
	var added []PeerNumber
	var certs []protocol.CommonCertificate

	for i := range s.Peers {
		rec := &s.Peers[i]
		if rec.PublicKey == c.self.Public {
			continue
		}
		if rec.Invite.Invitee != rec.PublicKey || !rec.PublicKey.Consistent() {
			continue
		}
		if err := rec.Invite.Verify(); err != nil {
			log.Printf("⚠️  Sync record %s dropped: %v", rec.PublicKey.Short(), err)
			continue
		}
		if len(rec.Nick) > protocol.MaxGCNickSize {
			continue
		}

		addr := rec.Addr
		if rec.PublicKey == sender {
			addr = src
		}

		p, isNew := c.addPeer(rec.PublicKey, rec.Invite, addr, rec.Nick)
		if isNew {
			if rec.Status.Valid() {
				p.Status = rec.Status
			}
			p.role = p.role.Grant(GrantRole(Role(rec.Role) & descriptiveRoles))
			added = append(added, p.Number)
		}
		certs = append(certs, rec.Certs...)
	}

	c.recomputeVerification()
	c.replayCertificates(certs)

	c.fillCloseSet()
	return added
}

// ===== BROADCAST =====

func (c *Chat) handleBroadcast(src netip.AddrPort, sender crypto.ExtPublicKey, plain []byte) error {
	if c.state != StateJoined {
		return ErrNotJoined
	}

	var b protocol.Broadcast
	if err := b.Decode(plain); err != nil {
		return err
	}

	num, known := c.byKey[sender]
	if !known {
		return c.handleUnknownSender(src, sender, &b)
	}

	p := c.peers[num]
	if p.Banned {
		return ErrBanned
	}
	if !p.acceptMessageNumber(b.Number) {
		return ErrReplay
	}

	now := c.clock.Now()
	if src.IsValid() && src != p.Addr {
		p.Addr = src
		p.touch(now)
	}

	switch b.Kind {
	case protocol.KindPing:
		return c.handlePing(p, b.Body)

	case protocol.KindStatus:
		if len(b.Body) != 1 {
			return ErrInvalidStatus
		}
		status := protocol.Status(b.Body[0])
		if !status.Valid() {
			return ErrInvalidStatus
		}
		p.Status = status
		p.touch(now)
		return nil

	case protocol.KindNewPeer:
		return c.handleNewPeer(b.Body)

	case protocol.KindChangeNick:
		if len(b.Body) == 0 {
			return ErrEmptyPayload
		}
		if len(b.Body) > protocol.MaxGCNickSize {
			return ErrNickTooLong
		}
		p.Nick = b.Body
		p.touch(now)
		c.emit(NickChangeEvent{Peer: p.Number, Nick: p.Nick})
		return nil

	case protocol.KindChangeTopic:
		if !p.role.Privileged() {
			return ErrNotPermitted
		}
		if len(b.Body) > protocol.MaxGCTopicSize {
			return ErrTopicTooLong
		}
		c.topic = b.Body
		c.emit(TopicChangeEvent{Peer: p.Number, Topic: c.Topic()})
		return nil

	case protocol.KindMessage, protocol.KindPrivateMessage:
		if len(b.Body) == 0 {
			return ErrEmptyPayload
		}
		if len(b.Body) > protocol.MaxGCMessageSize {
			return ErrMessageTooLong
		}
		if p.Ignore {
			return nil
		}
		if b.Kind == protocol.KindMessage {
			c.emit(MessageEvent{Peer: p.Number, Message: b.Body})
		} else {
			c.emit(PrivateMessageEvent{Peer: p.Number, Message: b.Body})
		}
		return nil

	case protocol.KindOpAction:
		var cert protocol.CommonCertificate
		if err := cert.Decode(b.Body); err != nil {
			return err
		}
		ev, err := c.applyCertificate(&cert)
		if err != nil {
			log.Printf("⚠️  %s from peer %d rejected: %v", cert.Type, p.Number, err)
			return err
		}
		c.emit(*ev)
		return nil

	case protocol.KindPeerExit:
		if len(b.Body) > protocol.MaxGCPartMessageSize {
			return ErrPartTooLong
		}
		c.removePeer(p)
		log.Printf("Peer %d left chat %s", p.Number, c.chatKey.Short())
		c.emit(PeerExitEvent{Peer: p.Number, PartMessage: b.Body})
		return nil

	case protocol.KindSyncRequest:
		resp := c.syncPayload(p.Number)
		return c.sendBroadcast(p, protocol.KindSyncResponse, resp.Encode())

	case protocol.KindSyncResponse:
		return c.handleSyncResponse(src, sender, b.Body)

	default:
		return protocol.ErrWrongPacketType
	}
}

// handleUnknownSender accepts pings and snapshots from keys we have not
// seen announced yet. Anything else waits until the peer is known.
func (c *Chat) handleUnknownSender(src netip.AddrPort, sender crypto.ExtPublicKey, b *protocol.Broadcast) error {
	switch b.Kind {
	case protocol.KindPing:
		now := c.clock.Now()
		if now.Sub(c.lastSync) < SyncInterval {
			return nil
		}
		c.lastSync = now
		c.msgNum++
		req := &protocol.Broadcast{Kind: protocol.KindSyncRequest, Number: c.msgNum}
		return c.sendPacket(protocol.PacketGroupBroadcast, sender, src, req.Encode())

	case protocol.KindSyncResponse:
		return c.handleSyncResponse(src, sender, b.Body)

	default:
		return ErrUnknownSender
	}
}

func (c *Chat) handlePing(p *Peer, body []byte) error {
	count, err := protocol.DecodePing(body)
	if err != nil {
		return err
	}

	now := c.clock.Now()
	p.LastPingRecv = now
	c.close.touch(p.Number)

	if now.Sub(p.lastPingSent) >= PingInterval {
		if err := c.sendPing(p); err != nil {
			log.Printf("⚠️  Ping back to peer %d failed: %v", p.Number, err)
		}
	}

	if count > c.memberCount() && now.Sub(c.lastSync) >= SyncInterval {
		c.lastSync = now
		return c.sendBroadcast(p, protocol.KindSyncRequest, nil)
	}
	return nil
}

func (c *Chat) handleNewPeer(body []byte) error {
	var a protocol.PeerAnnounce
	if err := a.Decode(body); err != nil {
		return err
	}
	if a.PublicKey == c.self.Public {
		return nil
	}
	if a.Invite.Invitee != a.PublicKey || !a.PublicKey.Consistent() {
		return protocol.ErrInvalidCertificate
	}
	if err := a.Invite.Verify(); err != nil {
		return err
	}
	if existing := c.lookup(a.PublicKey); existing != nil && existing.Banned {
		return ErrBanned
	}

	p, isNew := c.addPeer(a.PublicKey, a.Invite, a.Addr, a.Nick)
	c.recomputeVerification()
	c.fillCloseSet()

	if isNew {
		log.Printf("✅ Peer %d (%s) joined chat %s", p.Number, a.PublicKey.Short(), c.chatKey.Short())
		c.emit(PeerJoinEvent{Peer: p.Number})
	}
	return nil
}

func (c *Chat) handleSyncResponse(src netip.AddrPort, sender crypto.ExtPublicKey, body []byte) error {
	var s protocol.SyncPayload
	if err := s.Decode(body); err != nil {
		return err
	}

	// Only a verifiable record for the sender itself makes it a member
	if _, known := c.byKey[sender]; !known {
		found := false
		for i := range s.Peers {
			if s.Peers[i].PublicKey == sender {
				found = true
				break
			}
		}
		if !found {
			return ErrUnknownSender
		}
	}

	for _, num := range c.mergeSync(src, sender, &s) {
		c.emit(PeerJoinEvent{Peer: num})
	}
	return nil
}
