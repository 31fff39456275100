// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

/*
Package identity implements account lifecycle, session, and credential
management for Sentra's two principal populations (USER and ADMIN).

# Architecture

The package is layered the same way front to back:

  - HTTP handlers (http*.go): decode, validate, authorize, respond.
  - Service (service.go): the state machines for register/login/refresh/reset.
  - Store (store.go, store_postgres.go): per-kind persistence with atomic
    set operations over the session and permission arrays.
  - ProfileCache (cache_redis.go): read-through cache for public profiles.

A [Dispatcher] routes every operation to the service owning the principal's
kind, so the two populations stay isolated end to end.
*/
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ducpham/sentra/internal/platform/sec"
	"github.com/ducpham/sentra/pkg/uuid"
)

// Principal is a stored account row. The same shape backs both the USER and
// ADMIN tables; the owning [Store] knows which population a value belongs to.
type Principal struct {
	ID           string
	Fullname     string
	Email        string
	Username     string
	ProfileImg   string
	PasswordHash string
	Verified     bool

	// Permissions is the capability set embedded into issued tokens.
	Permissions []sec.Permission

	// RefreshTokens holds every live session's refresh token. Membership in
	// this set is what makes a refresh token valid; removal revokes it.
	RefreshTokens []string

	// ResetTokenHash is the sha256 of the currently outstanding password
	// reset token, empty when none is pending.
	ResetTokenHash      string
	ResetTokenExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicProfile is the client-facing projection of a [Principal]. Credential
// material (hashes, session tokens, reset state) never leaves the package.
type PublicProfile struct {
	ID         string   `json:"id"`
	Fullname   string   `json:"fullname"`
	Email      string   `json:"email"`
	Kind       sec.Kind `json:"kind"`
	Username   string   `json:"username"`
	ProfileImg string   `json:"profileImg,omitempty"`
	Verified   bool     `json:"verified"`
}

// Public projects the principal into its client-facing shape.
func (p *Principal) Public(kind sec.Kind) PublicProfile {
	return PublicProfile{
		ID:         p.ID,
		Fullname:   p.Fullname,
		Email:      p.Email,
		Kind:       kind,
		Username:   p.Username,
		ProfileImg: p.ProfileImg,
		Verified:   p.Verified,
	}
}

// ProfileUpdate carries the mutable profile fields. Nil means "leave as is".
type ProfileUpdate struct {
	Fullname   *string `json:"fullname"`
	Username   *string `json:"username"`
	ProfileImg *string `json:"profileImg"`
}

// Empty reports whether the update would change nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Fullname == nil && u.Username == nil && u.ProfileImg == nil
}

// # Username Derivation

// UsernameProbe answers whether a candidate username is already taken.
type UsernameProbe func(ctx context.Context, username string) (bool, error)

// DeriveUsername builds a unique username from the local part of an email
// address, appending an incrementing numeric suffix on collision.
//
// "jane.doe@example.com" becomes "jane.doe", then "jane.doe1", "jane.doe2",
// and so on. If the probe limit is exhausted (pathological collision storm)
// a time-ordered UUID suffix guarantees termination.
func DeriveUsername(ctx context.Context, email string, taken UsernameProbe) (string, error) {
	base := sanitizeUsername(localPart(email))

	for suffix := 0; suffix <= usernameProbeLimit; suffix++ {
		candidate := base
		if suffix > 0 {
			candidate = fmt.Sprintf("%s%d", base, suffix)
		}

		exists, err := taken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("identity: username probe failed: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}

	return base + "-" + uuid.Must()[:8], nil
}

func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// sanitizeUsername lowercases and strips everything outside [a-z0-9._-].
func sanitizeUsername(raw string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			builder.WriteRune(r)
		}
	}

	if builder.Len() == 0 {
		return "user"
	}
	return builder.String()
}
