package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a staff role known to the POS.
type Role uint8

const (
	RoleCashier Role = iota
	RoleSupervisor
	RoleManager
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleCashier:    "cashier",
	RoleSupervisor: "supervisor",
	RoleManager:    "manager",
	RoleAdmin:      "admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole maps a backend role name onto a Role. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for role, n := range roleNames {
		if n == name {
			return role, nil
		}
	}
	return 0, NewValidationError("unknown role %q", s)
}

// RoleSet is a closed set of roles.
type RoleSet uint8

func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.Add(r)
	}
	return s
}

// ParseRoleSet parses a list of role names. Unknown names are returned as
// an error so that a typo in configuration never silently shrinks the set.
func ParseRoleSet(names []string) (RoleSet, error) {
	var s RoleSet
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		r, err := ParseRole(n)
		if err != nil {
			return 0, err
		}
		s = s.Add(r)
	}
	return s, nil
}

func (s RoleSet) Add(r Role) RoleSet {
	return s | 1<<r
}

func (s RoleSet) Contains(r Role) bool {
	return s&(1<<r) != 0
}

func (s RoleSet) Intersects(other RoleSet) bool {
	return s&other != 0
}

func (s RoleSet) IsEmpty() bool {
	return s == 0
}

// Roles lists members in declaration order.
func (s RoleSet) Roles() []Role {
	var out []Role
	for r := RoleCashier; r <= RoleAdmin; r++ {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(roleNames))
	for _, r := range s.Roles() {
		out = append(out, r.String())
	}
	sort.Strings(out)
	return out
}

func (s RoleSet) String() string {
	return strings.Join(s.Strings(), ",")
}
