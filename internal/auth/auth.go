// Package auth resolves API keys to identities and gates routes by role.
package auth

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
)

const (
	// RoleReader may ask questions about, show and plot tables.
	RoleReader = "reader"
	// RoleAdmin may also provision and drop tables.
	RoleAdmin = "admin"
)

type Identity struct {
	Subject string
	Roles   []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

func (i Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses a comma separated list of key:role|role
// entries.
func NewStaticAPIKeyValidator(entries string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	entries = strings.TrimSpace(entries)
	if entries == "" {
		return validator, nil
	}

	for i, entry := range strings.Split(entries, ",") {
		key, roleList, ok := strings.Cut(strings.TrimSpace(entry), ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.Contains(roleList, ":") {
			return nil, fmt.Errorf("invalid static key entry %d: expected key:role|role", i+1)
		}
		roles := make([]string, 0, 2)
		for _, role := range strings.Split(roleList, "|") {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			if role != RoleReader && role != RoleAdmin {
				return nil, fmt.Errorf("invalid static key entry %d: unknown role %q", i+1, role)
			}
			roles = append(roles, role)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %d: at least one role is required", i+1)
		}
		if _, dup := validator.keys[key]; dup {
			return nil, fmt.Errorf("invalid static key entry %d: duplicate key", i+1)
		}
		sort.Strings(roles)
		validator.keys[key] = Identity{Subject: fmt.Sprintf("static-key-%d", i+1), Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}
