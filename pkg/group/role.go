package group

import "strings"

// Role is a set of capability flags. Founder, Op and User rank a peer; the
// remaining flags are descriptive and carry no privilege.
type Role uint64

const (
	RoleFounder Role = 1 << iota
	RoleOp
	RoleUser
	RoleHuman
	RoleElf
	RoleDwarf
)

// descriptiveRoles may be copied from a peer's own claim
const descriptiveRoles = RoleHuman | RoleElf | RoleDwarf

// Has reports whether every flag in f is set
func (r Role) Has(f Role) bool {
	return r&f == f
}

// Privileged reports whether r may ban peers and change the topic
func (r Role) Privileged() bool {
	return r&(RoleFounder|RoleOp) != 0
}

func (r Role) String() string {
	names := []struct {
		flag Role
		name string
	}{
		{RoleFounder, "founder"},
		{RoleOp, "op"},
		{RoleUser, "user"},
		{RoleHuman, "human"},
		{RoleElf, "elf"},
		{RoleDwarf, "dwarf"},
	}

	var parts []string
	for _, n := range names {
		if r&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// RoleGrant adds flags to a role. It can only be built by GrantRole.
type RoleGrant struct {
	flags Role
}

// RoleRevoke removes flags from a role. It can only be built by RevokeRole.
type RoleRevoke struct {
	flags Role
}

// GrantRole builds a grant of flags
func GrantRole(flags Role) RoleGrant {
	return RoleGrant{flags: flags}
}

// RevokeRole builds a revocation of flags
func RevokeRole(flags Role) RoleRevoke {
	return RoleRevoke{flags: flags}
}

// Grant returns r with the granted flags set
func (r Role) Grant(g RoleGrant) Role {
	return r | g.flags
}

// Revoke returns r with the revoked flags cleared
func (r Role) Revoke(v RoleRevoke) Role {
	return r &^ v.flags
}
