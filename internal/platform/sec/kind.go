// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package sec

import "fmt"

// # Principal Kinds

// Kind is the closed category of an authenticated Principal.
//
// Only USER and ADMIN principals exist as stored accounts. The remaining
// kinds (GUEST, MODERATOR, SUPERADMIN) exist in permission space only: they
// name default capability sets but never own a collection of their own.
type Kind string

const (
	// Stored principal kinds
	KindUser  Kind = "USER"
	KindAdmin Kind = "ADMIN"

	// Permission-space kinds (no backing collection)
	KindGuest      Kind = "GUEST"
	KindModerator  Kind = "MODERATOR"
	KindSuperadmin Kind = "SUPERADMIN"
)

// ParseKind validates a raw tag against the stored principal kinds.
//
// It rejects permission-space kinds: a token claiming SUPERADMIN is still an
// ADMIN-collection principal whose permission set says so.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindUser:
		return KindUser, nil
	case KindAdmin:
		return KindAdmin, nil
	default:
		return "", fmt.Errorf("sec: unknown principal kind %q", raw)
	}
}

// IsPrincipal reports whether the kind maps to a stored account collection.
func (k Kind) IsPrincipal() bool {
	return k == KindUser || k == KindAdmin
}

// Privileged reports whether the kind bypasses ownership checks.
func (k Kind) Privileged() bool {
	return k == KindAdmin
}
