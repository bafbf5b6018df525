// Package actor carries the authenticated caller into core operations.
package actor

import (
	"errors"
	"strings"
)

const (
	TypeUser   = "user"
	TypeSystem = "system"
)

const (
	RoleAdmin     = "admin"
	RoleTreasurer = "treasurer"
	RoleBoard     = "board"
	RoleMember    = "member"
)

var ErrInvalidActor = errors.New("invalid_actor")

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	Type  string   `json:"type"`
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

func User(id string, roles ...string) Actor {
	return Actor{Type: TypeUser, ID: strings.TrimSpace(id), Roles: normalizeRoles(roles)}
}

// System is used by internal jobs and tests.
func System() Actor {
	return Actor{Type: TypeSystem, ID: TypeSystem, Roles: []string{RoleAdmin}}
}

func (a Actor) Validate() error {
	switch a.Type {
	case TypeSystem:
		return nil
	case TypeUser:
		if strings.TrimSpace(a.ID) == "" {
			return ErrInvalidActor
		}
		return nil
	default:
		return ErrInvalidActor
	}
}

// Subject is the casbin subject for this actor.
func (a Actor) Subject() string {
	if a.Type == TypeSystem {
		return TypeSystem
	}
	return a.Type + ":" + a.ID
}

func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
