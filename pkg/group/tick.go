package group

import (
	"log"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

// Tick runs the chat's timers: join timeout, peer timeouts and pings.
// It is the only timer mechanism and must be called periodically.
func (c *Chat) Tick() {
	now := c.clock.Now()

	switch c.state {
	case StateJoining:
		if now.Sub(c.joinStarted) >= JoinTimeout {
			log.Printf("⚠️  Join of chat %s timed out", c.chatKey.Short())
			c.state = StateNew
			c.pendingSemi = nil
			c.chatKey = crypto.ExtPublicKey{}
			c.chatHash = 0
		}

	case StateJoined:
		if c.me.Banned {
			return
		}

		// Every member must keep pinging, close or not. Banned records stay.
		for _, num := range c.PeerNumbers() {
			p := c.peers[num]
			if p.Banned || now.Sub(p.LastPingRecv) < BadNodeTimeout {
				continue
			}
			c.removePeer(p)
			log.Printf("⚠️  Peer %d timed out in chat %s", num, c.chatKey.Short())
			c.emit(PeerExitEvent{Peer: num})
		}

		c.fillCloseSet()

		if now.Sub(c.lastPing) >= PingInterval {
			c.lastPing = now
			for _, num := range c.close.list() {
				if err := c.sendPing(c.peers[num]); err != nil {
					log.Printf("⚠️  Ping to peer %d failed: %v", num, err)
				}
			}
		}

		// Verified members outside the close set get an occasional ping so
		// their answer keeps them from timing out
		for _, num := range c.PeerNumbers() {
			p := c.peers[num]
			if !closeCandidate(p) || c.close.contains(num) || now.Sub(p.lastPingSent) < StandbyPingInterval {
				continue
			}
			if err := c.sendPing(p); err != nil {
				log.Printf("⚠️  Ping to standby peer %d failed: %v", num, err)
			}
		}
	}
}
