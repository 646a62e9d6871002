package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleGrantRevoke(t *testing.T) {
	r := RoleUser
	assert.False(t, r.Privileged())

	r = r.Grant(GrantRole(RoleOp | RoleElf))
	assert.True(t, r.Has(RoleOp))
	assert.True(t, r.Has(RoleElf|RoleUser))
	assert.True(t, r.Privileged())
	assert.Equal(t, "op|user|elf", r.String())

	r = r.Revoke(RevokeRole(RoleOp))
	assert.False(t, r.Has(RoleOp))
	assert.True(t, r.Has(RoleElf))
	assert.False(t, r.Privileged())

	assert.True(t, RoleFounder.Privileged())
	assert.Equal(t, "none", Role(0).String())
}

func TestPeerMessageNumbers(t *testing.T) {
	p := &Peer{}

	assert.True(t, p.acceptMessageNumber(0))
	assert.False(t, p.acceptMessageNumber(0))
	assert.True(t, p.acceptMessageNumber(5))
	assert.False(t, p.acceptMessageNumber(3))
	assert.True(t, p.acceptMessageNumber(6))
}

func TestPeerCopyIsolated(t *testing.T) {
	p := &Peer{Nick: []byte("bob")}
	snap := p.Copy()
	snap.Nick[0] = 'B'
	assert.Equal(t, []byte("bob"), p.Nick)
}
