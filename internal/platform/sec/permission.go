// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package sec

import (
	"strings"

	"github.com/ducpham/sentra/internal/platform/apperr"
)

// # Permissions

// Permission is a capability token embedded in access tokens at issuance.
//
// # Why embed instead of re-fetch?
//
// Permissions are carried inside the signed token payload and checked locally,
// trading a small staleness window (bounded by the 15m access TTL) for
// eliminating a store round-trip on every authorized call.
type Permission string

const (
	// Self-scoped: valid only when the actor is the target resource owner.
	PermSelfRead   Permission = "SELF_READ"
	PermSelfUpdate Permission = "SELF_UPDATE"
	PermSelfDelete Permission = "SELF_DELETE"

	// User management
	PermUserRead   Permission = "USER_READ"
	PermUserUpdate Permission = "USER_UPDATE"
	PermUserDelete Permission = "USER_DELETE"
	PermUserManage Permission = "USER_MANAGE"

	// Admin management
	PermAdminRead   Permission = "ADMIN_READ"
	PermAdminManage Permission = "ADMIN_MANAGE"
)

// SelfScoped reports whether the permission only authorizes actions on the
// actor's own record.
func (p Permission) SelfScoped() bool {
	return strings.HasPrefix(string(p), "SELF_")
}

// # Default Capability Sets

// DefaultPermissions returns the capability set granted to a freshly created
// principal of the given kind. The result is embedded in every issued token.
func DefaultPermissions(kind Kind) []Permission {
	switch kind {
	case KindGuest:
		return nil
	case KindUser:
		return []Permission{PermSelfRead, PermSelfUpdate, PermSelfDelete}
	case KindModerator:
		return []Permission{
			PermSelfRead, PermSelfUpdate, PermSelfDelete,
			PermUserRead, PermUserUpdate,
		}
	case KindAdmin:
		return []Permission{
			PermSelfRead, PermSelfUpdate, PermSelfDelete,
			PermUserRead, PermUserUpdate, PermUserDelete, PermUserManage,
			PermAdminRead, PermAdminManage,
		}
	case KindSuperadmin:
		return []Permission{
			PermSelfRead, PermSelfUpdate, PermSelfDelete,
			PermUserRead, PermUserUpdate, PermUserDelete, PermUserManage,
			PermAdminRead, PermAdminManage,
		}
	default:
		return nil
	}
}

// # Permission Engine

// HasAny reports whether the actor may attempt an action guarded by the
// required set. Success means ANY held permission matches ANY required one
// (logical OR), or the actor belongs to the privileged kind.
//
// Ownership for self-scoped permissions is decided later by [Authorize];
// HasAny is the cheap route-level gate.
func HasAny(kind Kind, held []Permission, required ...Permission) bool {
	if kind.Privileged() {
		return true
	}
	for _, want := range required {
		for _, have := range held {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Authorize decides a resource-action authorization for a concrete target.
//
// Rules, in order:
//   - The privileged kind bypasses ownership checks entirely.
//   - A held self-scoped permission satisfies a self-scoped requirement only
//     when actorID == targetID.
//   - Any held non-self permission in the required set grants access.
//
// Failure is always an explicit FORBIDDEN [apperr.AppError]; the engine never
// degrades to a partial result.
func Authorize(claims *Claims, targetID string, required ...Permission) error {
	if claims == nil {
		return apperr.Unauthorized("Authentication required")
	}

	if claims.Kind.Privileged() {
		return nil
	}

	for _, want := range required {
		if !holds(claims.Permissions, want) {
			continue
		}
		if want.SelfScoped() && claims.ID != targetID {
			continue
		}
		return nil
	}

	return apperr.Forbidden("Insufficient permission to access this resource")
}

func holds(held []Permission, p Permission) bool {
	for _, have := range held {
		if have == p {
			return true
		}
	}
	return false
}
