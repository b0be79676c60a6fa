package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
)

const (
	RoleQueryReader = "query_reader"
	RoleDataWriter  = "data_writer"
	RoleDBAdmin     = "db_admin"
)

// roleRank orders roles so that a higher role grants every lower one.
var roleRank = map[string]int{
	RoleQueryReader: 1,
	RoleDataWriter:  2,
	RoleDBAdmin:     3,
}

func IsKnownRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// Identity is the caller behind an API key. TenantID scopes every database
// the caller can reach.
type Identity struct {
	TenantID string
	Roles    []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// Permits reports whether the identity holds role or a role ranked above it.
func (i Identity) Permits(role string) bool {
	required, ok := roleRank[role]
	if !ok {
		return i.HasRole(role)
	}
	for _, held := range i.Roles {
		if roleRank[held] >= required {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator resolves keys from a fixed list. Only digests of the
// keys are held in memory.
type StaticAPIKeyValidator struct {
	identities map[[sha256.Size]byte]Identity
}

// NewStaticAPIKeyValidator parses entries of the form
// key:tenant:role[|role...], separated by commas.
func NewStaticAPIKeyValidator(list string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{identities: map[[sha256.Size]byte]Identity{}}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, identity, err := parseKeyEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid static key entry %q: %w", entry, err)
		}
		digest := sha256.Sum256([]byte(key))
		if _, dup := validator.identities[digest]; dup {
			return nil, fmt.Errorf("invalid static key entry %q: key listed twice", entry)
		}
		validator.identities[digest] = identity
	}
	return validator, nil
}

func parseKeyEntry(entry string) (string, Identity, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return "", Identity{}, fmt.Errorf("expected key:tenant:role|role")
	}
	key := strings.TrimSpace(parts[0])
	tenant := strings.TrimSpace(parts[1])
	if key == "" || tenant == "" {
		return "", Identity{}, fmt.Errorf("empty key or tenant")
	}
	if tenant == "." || tenant == ".." || strings.ContainsAny(tenant, `/\`) {
		return "", Identity{}, fmt.Errorf("tenant %q is not a valid directory name", tenant)
	}

	var roles []string
	for _, role := range strings.Split(parts[2], "|") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if !IsKnownRole(role) {
			return "", Identity{}, fmt.Errorf("unknown role %q", role)
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return "", Identity{}, fmt.Errorf("at least one role is required")
	}
	slices.Sort(roles)
	return key, Identity{TenantID: tenant, Roles: roles}, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	if apiKey == "" {
		return Identity{}, false
	}
	identity, ok := v.identities[sha256.Sum256([]byte(apiKey))]
	return identity, ok
}
