package group

import (
	"log"
	"sort"
	"time"
)

// recomputeVerification walks invite chains until nothing changes. A peer is
// verified when its inviter is the chat key (the founder) or a verified
// member. Verification is never withdrawn.
func (c *Chat) recomputeVerification() {
	members := make([]*Peer, 0, len(c.peers)+1)
	members = append(members, c.me)
	for _, num := range c.PeerNumbers() {
		members = append(members, c.peers[num])
	}

	for _, p := range members {
		if p.Invite.Inviter == c.chatKey && !p.Invite.IsZero() {
			p.role = p.role.Grant(GrantRole(RoleFounder))
			c.authorityOf(p.PublicKey).founder = true
		}
	}

	for changed := true; changed; {
		changed = false
		for _, p := range members {
			if p.Verified || p.Invite.IsZero() {
				continue
			}
			if p.Invite.Inviter == c.chatKey {
				p.Verified = true
				changed = true
				continue
			}
			inviter := c.lookup(p.Invite.Inviter)
			if inviter != nil && inviter != p && inviter.Verified {
				p.Verified = true
				changed = true
			}
		}
	}
}

// closeCandidate reports whether p may sit in the close-peer set
func closeCandidate(p *Peer) bool {
	return p.Verified && !p.Banned && p.Addr.IsValid()
}

// fillCloseSet offers every candidate, most recently responsive first
func (c *Chat) fillCloseSet() {
	candidates := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		if closeCandidate(p) && !c.close.contains(p.Number) {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].LastPingRecv.Equal(candidates[j].LastPingRecv) {
			return candidates[i].LastPingRecv.After(candidates[j].LastPingRecv)
		}
		return candidates[i].Number < candidates[j].Number
	})

	seen := func(num PeerNumber) time.Time {
		if p, ok := c.peers[num]; ok {
			return p.LastPingRecv
		}
		return time.Time{}
	}

	for _, p := range candidates {
		evicted, didEvict, added := c.close.offer(p.Number, p.LastPingRecv, seen)
		if !added {
			continue
		}
		if didEvict {
			log.Printf("Close peer %d replaced by %d", evicted, p.Number)
		}
		// A newly promoted close peer gets a full timeout window
		p.LastPingRecv = c.clock.Now()
	}
}
