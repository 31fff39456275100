// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import (
	"context"
	"time"

	"github.com/ducpham/sentra/internal/platform/sec"
)

// Store is the persistence contract for a single principal population.
//
// # Conventions
//
//   - Find* methods return (nil, nil) when no row matches; errors mean the
//     lookup itself failed.
//   - Set operations over RefreshTokens are atomic single statements; callers
//     rely on [Store.RemoveRefreshToken]'s boolean as the single-use gate
//     during refresh rotation.
type Store interface {
	// Kind identifies which population this store persists.
	Kind() sec.Kind

	// Create inserts a fresh principal.
	Create(ctx context.Context, principal *Principal) error

	// Update applies a partial profile update and returns the new row.
	Update(ctx context.Context, id string, update ProfileUpdate) (*Principal, error)

	// Delete removes the principal entirely.
	Delete(ctx context.Context, id string) error

	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)

	// FindByIDAndRefreshToken returns the principal only when the given
	// refresh token is currently a member of its session set.
	FindByIDAndRefreshToken(ctx context.Context, id, refreshToken string) (*Principal, error)

	// AddRefreshToken appends a session token to the set (no duplicates).
	AddRefreshToken(ctx context.Context, id, refreshToken string) error

	// RemoveRefreshToken removes one session token. The boolean reports
	// whether the token was actually present, which is what makes rotation
	// single-use under concurrent replay.
	RemoveRefreshToken(ctx context.Context, id, refreshToken string) (bool, error)

	// ClearRefreshTokens revokes every session at once.
	ClearRefreshTokens(ctx context.Context, id string) error

	// UpdatePassword replaces the password hash, leaving sessions intact.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// ReplacePermissions swaps the principal's capability set wholesale.
	// Takes effect on the next token issuance.
	ReplacePermissions(ctx context.Context, id string, permissions []sec.Permission) error

	// SetResetToken stores the hash of an outstanding reset token with its
	// expiry, replacing any previous one.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// FindByIDAndResetToken returns the principal only when the token hash
	// matches an unexpired outstanding reset token.
	FindByIDAndResetToken(ctx context.Context, id, tokenHash string) (*Principal, error)

	// ResetPassword atomically replaces the password hash, clears the reset
	// token state, and revokes every session.
	ResetPassword(ctx context.Context, id, passwordHash string) error
}
