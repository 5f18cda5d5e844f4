package core

import "slices"

// RoleAdmin grants access to every owner's partition.
const RoleAdmin = "Admin"

// Principal is the authenticated caller as resolved from identity claims.
type Principal struct {
	ObjectID string   `json:"oid"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

func (p Principal) IsAdmin() bool {
	return slices.Contains(p.Roles, RoleAdmin)
}

// CanAccess is the single ownership predicate applied to every per-owner
// operation: the caller owns the data or holds the admin role.
func (p Principal) CanAccess(ownerID string) bool {
	if p.ObjectID == "" {
		return false
	}
	return p.ObjectID == ownerID || p.IsAdmin()
}

// Authorize returns ErrUnauthorized when p may not access ownerID's data.
func Authorize(p Principal, ownerID string) error {
	if !p.CanAccess(ownerID) {
		return ErrUnauthorized
	}
	return nil
}
