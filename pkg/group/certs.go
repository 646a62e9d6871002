package group

import (
	"log"
	"sort"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
	"github.com/ZentaChain/zentalk-groupchat/pkg/protocol"
)

// applyCertificate validates a common certificate and applies it. Authority
// is judged as of the certificate's timestamp: a later ban or revoke of the
// source does not undo what it was allowed to do when it signed.
func (c *Chat) applyCertificate(cert *protocol.CommonCertificate) (*OpActionEvent, error) {
	if err := cert.Verify(); err != nil {
		return nil, err
	}
	if cert.Source == cert.Target {
		return nil, ErrNotPermitted
	}

	src, known := c.authority[cert.Source]
	if !known {
		return nil, ErrPeerNotFound
	}
	if src.bannedBefore(cert.Timestamp) {
		return nil, ErrBanned
	}

	ts := cert.Timestamp
	target := c.lookup(cert.Target)

	switch cert.Type {
	case protocol.CertOpCredentials, protocol.CertRevokeOpCredentials:
		if !src.founder {
			return nil, ErrNotPermitted
		}
		if target != nil && hasCert(target.Certs, cert) {
			return nil, ErrDuplicateCertificate
		}

		dst := c.authorityOf(cert.Target)
		grant := cert.Type == protocol.CertOpCredentials
		if !grant && dst.founder {
			return nil, ErrNotPermitted
		}
		if !dst.accepts(ts, grant) {
			return nil, ErrStaleCertificate
		}
		dst.record(cert, grant)

		// Credentials of a member who already left still count for the
		// certificates it signed
		if target == nil {
			return nil, ErrPeerNotFound
		}
		if grant {
			target.role = target.role.Grant(GrantRole(RoleOp))
		} else {
			target.role = target.role.Revoke(RevokeRole(RoleOp))
		}

	case protocol.CertBan:
		if target == nil {
			return nil, ErrPeerNotFound
		}
		if target.Banned {
			return nil, ErrAlreadyBanned
		}
		if !src.privilegedAt(ts) {
			return nil, ErrNotPermitted
		}

		// Only the founder may ban an operator; nobody may ban the founder
		dst := c.authorityOf(cert.Target)
		if dst.founder {
			return nil, ErrNotPermitted
		}
		if dst.opAt(ts) && !src.founder {
			return nil, ErrNotPermitted
		}
		if ts < target.Invite.Timestamp() {
			return nil, ErrStaleCertificate
		}

		target.Banned = true
		target.BannedTime = c.clock.Now()
		dst.banned = true
		dst.bannedAt = ts
		if target != c.me {
			c.close.remove(target.Number)
			c.fillCloseSet()
		}

		// Keep the operator's own credentials next to its ban so members
		// syncing later can check it after the operator is gone
		if !src.founder && src.grant != nil && !hasCert(target.Certs, src.grant) {
			target.Certs = appendCert(target.Certs, *src.grant)
		}

	default:
		return nil, protocol.ErrInvalidCertificate
	}

	target.Certs = appendCert(target.Certs, *cert)
	target.touch(c.clock.Now())

	ev := &OpActionEvent{
		Source: SelfPeer,
		Target: target.Number,
		Self:   target == c.me,
		Type:   cert.Type,
	}
	if source := c.lookup(cert.Source); source != nil {
		ev.Source = source.Number
	}

	log.Printf("✅ %s applied to %s by %s in chat %s", cert.Type, cert.Target.Short(), cert.Source.Short(), c.chatKey.Short())
	return ev, nil
}

// replayCertificates applies certificates learned from a sync in issue
// order, so each is judged by the authority its source held at the time.
// Within one second grants go first and revokes last.
func (c *Chat) replayCertificates(certs []protocol.CommonCertificate) {
	seen := make(map[[crypto.SignatureSize]byte]bool, len(certs))
	unique := certs[:0:0]
	for _, cert := range certs {
		if !seen[cert.Signature] {
			seen[cert.Signature] = true
			unique = append(unique, cert)
		}
	}

	rank := map[protocol.CertType]int{
		protocol.CertOpCredentials:       0,
		protocol.CertBan:                 1,
		protocol.CertRevokeOpCredentials: 2,
	}
	sort.SliceStable(unique, func(i, j int) bool {
		if unique[i].Timestamp != unique[j].Timestamp {
			return unique[i].Timestamp < unique[j].Timestamp
		}
		return rank[unique[i].Type] < rank[unique[j].Type]
	})

	for i := range unique {
		_, err := c.applyCertificate(&unique[i])
		switch err {
		case nil, ErrAlreadyBanned, ErrDuplicateCertificate:
		default:
			log.Printf("⚠️  Sync certificate %s dropped: %v", unique[i].Type, err)
		}
	}
}
