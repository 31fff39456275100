// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package sec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ducpham/sentra/internal/platform/sec"
)

/*
TestPasswordHash_RoundTrip verifies hashing and verification, and that the
hash never equals the plaintext.
*/
func TestPasswordHash_RoundTrip(t *testing.T) {
	hash, err := sec.HashPassword("Str0ng!pass", bcrypt.MinCost)
	require.NoError(t, err)
	require.NotEqual(t, "Str0ng!pass", hash)

	assert.True(t, sec.CheckPasswordHash("Str0ng!pass", hash))
	assert.False(t, sec.CheckPasswordHash("wrong-password", hash))
}

/*
TestGenerateSecureToken checks entropy length and uniqueness.
*/
func TestGenerateSecureToken(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	assert.Len(t, first, 64) // hex doubles the byte length

	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

/*
TestHashToken verifies the digest is deterministic and one-way shaped.
*/
func TestHashToken(t *testing.T) {
	digest := sec.HashToken("raw-token")

	assert.Equal(t, digest, sec.HashToken("raw-token"))
	assert.NotEqual(t, digest, sec.HashToken("other-token"))
	assert.Len(t, digest, 64) // sha256 hex
}
