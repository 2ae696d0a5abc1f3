package user

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownRole = errors.New("unknown role")

// Role is the closed set of identities a connection can carry.
type Role int

const (
	RoleEmployee Role = iota + 1
	RoleDoctor
	RoleAdmin
)

// CallableRoles are the roles that take part in calls and see each other's presence.
var CallableRoles = []Role{RoleEmployee, RoleDoctor}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "employee":
		return RoleEmployee, nil
	case "doctor":
		return RoleDoctor, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) String() string {
	switch r {
	case RoleEmployee:
		return "employee"
	case RoleDoctor:
		return "doctor"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

func (r Role) Valid() bool {
	return r >= RoleEmployee && r <= RoleAdmin
}

// IsAdmin reports whether the role may observe every call and presence change.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Counterparts returns the roles listed to r by get-available-users.
func (r Role) Counterparts() []Role {
	switch r {
	case RoleEmployee:
		return []Role{RoleDoctor}
	case RoleDoctor:
		return []Role{RoleEmployee}
	case RoleAdmin:
		return []Role{RoleEmployee, RoleDoctor}
	}
	return nil
}

// Sees reports whether other is one of r's counterparts.
func (r Role) Sees(other Role) bool {
	for _, c := range r.Counterparts() {
		if c == other {
			return true
		}
	}
	return false
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Identity is the authenticated user bound to a connection.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s(%s)", i.UserID, i.Role)
}
