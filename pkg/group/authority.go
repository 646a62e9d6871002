package group

import (
	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

// authority is what a key was allowed to do over time, keyed by certificate
// timestamps. It outlives the peer record so certificates signed by a member
// who has since left can still be judged.
type authority struct {
	founder bool
	changes []roleChange // ascending by timestamp

	// grant is the certificate behind the current operator credentials
	grant *protocol.CommonCertificate

	banned   bool
	bannedAt uint64
}

type roleChange struct {
	at uint64
	op bool
}

// opAt reports whether the key held operator credentials at ts. A grant and
// a revoke in the same second leave the key revoked.
func (a *authority) opAt(ts uint64) bool {
	op := false
	for _, ch := range a.changes {
		if ch.at > ts {
			break
		}
		op = ch.op
	}
	return op
}

func (a *authority) privilegedAt(ts uint64) bool {
	return a.founder || a.opAt(ts)
}

// bannedBefore reports whether a certificate issued at ts comes after the
// key was banned. Bans are prospective only.
func (a *authority) bannedBefore(ts uint64) bool {
	return a.banned && ts > a.bannedAt
}

// accepts reports whether a grant (op) or revoke issued at ts is newer than
// every role change already applied. A revoke may share the last change's
// second; a grant may not.
func (a *authority) accepts(ts uint64, op bool) bool {
	if len(a.changes) == 0 {
		return true
	}
	last := a.changes[len(a.changes)-1].at
	if op {
		return ts > last
	}
	return ts >= last
}

func (a *authority) record(cert *protocol.CommonCertificate, op bool) {
	a.changes = append(a.changes, roleChange{at: cert.Timestamp, op: op})
	if op {
		g := *cert
		a.grant = &g
	} else {
		a.grant = nil
	}
}

// authorityOf returns the authority record for pk, creating it on first use
func (c *Chat) authorityOf(pk crypto.ExtPublicKey) *authority {
	a, ok := c.authority[pk]
	if !ok {
		a = &authority{}
		c.authority[pk] = a
	}
	return a
}

// hasCert reports whether cert is already stored
func hasCert(certs []protocol.CommonCertificate, cert *protocol.CommonCertificate) bool {
	for i := range certs {
		if certs[i].Signature == cert.Signature {
			return true
		}
	}
	return false
}
