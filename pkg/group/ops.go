package group

import (
	"log"

	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

// checkJoined guards every mutating operation
func (c *Chat) checkJoined() error {
	if c.state != StateJoined {
		return ErrNotJoined
	}
	if c.me.Banned {
		return ErrBanned
	}
	return nil
}

func (c *Chat) peer(num PeerNumber) (*Peer, error) {
	p, ok := c.peers[num]
	if !ok {
		return nil, ErrPeerNotFound
	}
	return p, nil
}

// SendMessage broadcasts a plain message
func (c *Chat) SendMessage(msg []byte) error {
	if err := c.checkJoined(); err != nil {
		return err
	}
	if len(msg) == 0 {
		return ErrEmptyPayload
	}
	if len(msg) > protocol.MaxGCMessageSize {
		return ErrMessageTooLong
	}

	c.broadcast(protocol.KindMessage, msg, SelfPeer)
	return nil
}

// SendPrivateMessage sends a message to one peer only
func (c *Chat) SendPrivateMessage(num PeerNumber, msg []byte) error {
	if err := c.checkJoined(); err != nil {
		return err
	}
	if len(msg) == 0 {
		return ErrEmptyPayload
	}
	if len(msg) > protocol.MaxGCMessageSize {
		return ErrMessageTooLong
	}

	p, err := c.peer(num)
	if err != nil {
		return err
	}
	if p.Banned {
		return ErrBanned
	}
	return c.sendBroadcast(p, protocol.KindPrivateMessage, msg)
}

// SetSelfNick changes our nick and announces it
func (c *Chat) SetSelfNick(nick []byte) error {
	if err := c.checkJoined(); err != nil {
		return err
	}
	if len(nick) == 0 {
		return ErrEmptyPayload
	}
	if len(nick) > protocol.MaxGCNickSize {
		return ErrNickTooLong
	}

	c.me.Nick = append([]byte(nil), nick...)
	c.me.touch(c.clock.Now())
	c.broadcast(protocol.KindChangeNick, c.me.Nick, SelfPeer)
	return nil
}

// SelfNick returns our nick
func (c *Chat) SelfNick() []byte {
	return append([]byte(nil), c.me.Nick...)
}

// PeerNick returns a peer's nick
func (c *Chat) PeerNick(num PeerNumber) ([]byte, error) {
	p, err := c.peer(num)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), p.Nick...), nil
}

// SetTopic changes the topic. Requires operator or founder.
func (c *Chat) SetTopic(topic []byte) error {
	if err := c.checkJoined(); err != nil {
		return err
	}
	if len(topic) > protocol.MaxGCTopicSize {
		return ErrTopicTooLong
	}
	if !c.me.role.Privileged() {
		return ErrNotPermitted
	}

	c.topic = append([]byte(nil), topic...)
	c.broadcast(protocol.KindChangeTopic, c.topic, SelfPeer)
	return nil
}

// SetSelfStatus changes our status and announces it
func (c *Chat) SetSelfStatus(status protocol.Status) error {
	if err := c.checkJoined(); err != nil {
		return err
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}

	c.me.Status = status
	c.me.touch(c.clock.Now())
	c.broadcast(protocol.KindStatus, []byte{byte(status)}, SelfPeer)
	return nil
}

// SelfStatus returns our status
func (c *Chat) SelfStatus() protocol.Status {
	return c.me.Status
}

// PeerStatus returns a peer's status
func (c *Chat) PeerStatus(num PeerNumber) (protocol.Status, error) {
	p, err := c.peer(num)
	if err != nil {
		return protocol.StatusInvalid, err
	}
	return p.Status, nil
}

// SetIgnore sets whether messages from a peer are dropped on receipt
func (c *Chat) SetIgnore(num PeerNumber, ignore bool) error {
	p, err := c.peer(num)
	if err != nil {
		return err
	}
	p.Ignore = ignore
	return nil
}

// ToggleIgnore flips the ignore flag and returns the new value
func (c *Chat) ToggleIgnore(num PeerNumber) (bool, error) {
	p, err := c.peer(num)
	if err != nil {
		return false, err
	}
	p.Ignore = !p.Ignore
	return p.Ignore, nil
}

// Ban bans a peer. Requires operator or founder.
func (c *Chat) Ban(num PeerNumber) error {
	return c.SendOpAction(protocol.CertBan, num)
}

// GrantOperator gives a peer operator credentials. Founder only.
func (c *Chat) GrantOperator(num PeerNumber) error {
	return c.SendOpAction(protocol.CertOpCredentials, num)
}

// RevokeOperator removes a peer's operator credentials. Founder only.
func (c *Chat) RevokeOperator(num PeerNumber) error {
	return c.SendOpAction(protocol.CertRevokeOpCredentials, num)
}

// SendOpAction signs a certificate against a peer, applies it locally and
// broadcasts it. Nothing changes if the local checks fail.
func (c *Chat) SendOpAction(certType protocol.CertType, num PeerNumber) error {
	if err := c.checkJoined(); err != nil {
		return err
	}

	p, err := c.peer(num)
	if err != nil {
		return err
	}

	cert, err := protocol.NewCommonCertificate(certType, p.PublicKey, c.self, c.timestamp())
	if err != nil {
		return err
	}

	ev, err := c.applyCertificate(cert)
	if err != nil {
		return err
	}

	body := cert.Encode()
	c.broadcast(protocol.KindOpAction, body, SelfPeer)
	// A banned peer still learns why it stops hearing from us
	if certType == protocol.CertBan && p.Addr.IsValid() {
		if err := c.sendBroadcast(p, protocol.KindOpAction, body); err != nil {
			log.Printf("⚠️  Ban notice to peer %d failed: %v", p.Number, err)
		}
	}

	c.emit(*ev)
	return nil
}

// Part announces our departure and leaves the chat
func (c *Chat) Part(msg []byte) error {
	if len(msg) > protocol.MaxGCPartMessageSize {
		return ErrPartTooLong
	}
	if c.state != StateJoined {
		c.state = StateParted
		return nil
	}

	c.broadcast(protocol.KindPeerExit, msg, SelfPeer)
	c.state = StateParted
	c.close = newCloseSet(GroupCloseConnections)

	log.Printf("Left chat %s", c.chatKey.Short())
	return nil
}
