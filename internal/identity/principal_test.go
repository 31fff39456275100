// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducpham/sentra/internal/identity"
	"github.com/ducpham/sentra/internal/platform/sec"
)

func takenSet(taken ...string) identity.UsernameProbe {
	set := make(map[string]bool, len(taken))
	for _, name := range taken {
		set[name] = true
	}
	return func(_ context.Context, username string) (bool, error) {
		return set[username], nil
	}
}

/*
TestDeriveUsername covers sanitization of the email local part and the
numeric suffix probe.
*/
func TestDeriveUsername(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		taken    identity.UsernameProbe
		expected string
	}{
		{"plain", "jane.doe@example.com", takenSet(), "jane.doe"},
		{"uppercase_folded", "Jane.Doe@example.com", takenSet(), "jane.doe"},
		{"symbols_stripped", "jane+doe!@example.com", takenSet(), "janedoe"},
		{"first_collision", "jane.doe@example.com", takenSet("jane.doe"), "jane.doe1"},
		{"second_collision", "jane.doe@example.com", takenSet("jane.doe", "jane.doe1"), "jane.doe2"},
		{"all_stripped_fallback", "+++@example.com", takenSet(), "user"},
		{"no_at_sign", "standalone", takenSet(), "standalone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			username, err := identity.DeriveUsername(context.Background(), tt.email, tt.taken)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, username)
		})
	}
}

/*
TestDeriveUsername_ProbeExhaustion verifies termination under a collision
storm: a random suffix takes over once numeric probing gives up.
*/
func TestDeriveUsername_ProbeExhaustion(t *testing.T) {
	everythingTaken := func(_ context.Context, _ string) (bool, error) {
		return true, nil
	}

	username, err := identity.DeriveUsername(context.Background(), "jane.doe@example.com", everythingTaken)
	require.NoError(t, err)
	assert.NotEmpty(t, username)
	assert.NotEqual(t, "jane.doe", username)
}

/*
TestPublicProjection verifies the client-facing shape omits credentials.
*/
func TestPublicProjection(t *testing.T) {
	principal := &identity.Principal{
		ID:           "id-1",
		Fullname:     "Jane Doe",
		Email:        "jane.doe@example.com",
		Username:     "jane.doe",
		PasswordHash: "$2a$10$secret",
		RefreshTokens: []string{
			"live-session-token",
		},
	}

	profile := principal.Public(sec.KindUser)

	assert.Equal(t, "id-1", profile.ID)
	assert.Equal(t, sec.KindUser, profile.Kind)
	assert.Equal(t, "jane.doe", profile.Username)
}

/*
TestProfileUpdate_Empty verifies the no-op detector.
*/
func TestProfileUpdate_Empty(t *testing.T) {
	assert.True(t, identity.ProfileUpdate{}.Empty())

	name := "x"
	assert.False(t, identity.ProfileUpdate{Fullname: &name}.Empty())
}
