// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package sec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducpham/sentra/internal/platform/apperr"
	"github.com/ducpham/sentra/internal/platform/sec"
)

func newTestCodec(t *testing.T, accessTTL, refreshTTL time.Duration) *sec.TokenCodec {
	t.Helper()
	codec, err := sec.NewTokenCodec("access-secret-for-tests", "refresh-secret-for-tests", "sentra.test", accessTTL, refreshTTL)
	require.NoError(t, err)
	return codec
}

/*
TestTokenCodec_Construction verifies the secret hygiene rules: both secrets
mandatory, and never the same value.
*/
func TestTokenCodec_Construction(t *testing.T) {
	_, err := sec.NewTokenCodec("", "refresh", "iss", time.Minute, time.Hour)
	assert.Error(t, err)

	_, err = sec.NewTokenCodec("same", "same", "iss", time.Minute, time.Hour)
	assert.Error(t, err)

	_, err = sec.NewTokenCodec("access", "refresh", "iss", time.Minute, time.Hour)
	assert.NoError(t, err)
}

/*
TestTokenCodec_RoundTrip issues a pair and verifies both classes carry the
identity payload intact.
*/
func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t, 15*time.Minute, 7*24*time.Hour)
	permissions := []sec.Permission{sec.PermSelfRead, sec.PermSelfUpdate}

	pair, err := codec.Issue("user-1", sec.KindUser, permissions)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	accessClaims, err := codec.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", accessClaims.ID)
	assert.Equal(t, sec.KindUser, accessClaims.Kind)
	assert.Equal(t, permissions, accessClaims.Permissions)

	refreshClaims, err := codec.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refreshClaims.ID)
}

/*
TestTokenCodec_ClassSeparation checks that a refresh token never verifies as
an access token and vice versa (independent signing secrets).
*/
func TestTokenCodec_ClassSeparation(t *testing.T) {
	codec := newTestCodec(t, 15*time.Minute, 7*24*time.Hour)

	pair, err := codec.Issue("user-1", sec.KindUser, nil)
	require.NoError(t, err)

	_, err = codec.VerifyAccess(pair.RefreshToken)
	assert.Error(t, err)

	_, err = codec.VerifyRefresh(pair.AccessToken)
	assert.Error(t, err)
}

/*
TestTokenCodec_Expiry distinguishes the TOKEN_EXPIRED code from the generic
INVALID_TOKEN code so clients know when a silent refresh is worth trying.
*/
func TestTokenCodec_Expiry(t *testing.T) {
	expiredCodec := newTestCodec(t, -1*time.Minute, -1*time.Minute)

	pair, err := expiredCodec.Issue("user-1", sec.KindUser, nil)
	require.NoError(t, err)

	_, err = expiredCodec.VerifyAccess(pair.AccessToken)
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeTokenExpired, ae.Code)
}

/*
TestTokenCodec_Garbage checks that malformed input maps to INVALID_TOKEN.
*/
func TestTokenCodec_Garbage(t *testing.T) {
	codec := newTestCodec(t, 15*time.Minute, time.Hour)

	_, err := codec.VerifyAccess("not.a.jwt")
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeInvalidToken, ae.Code)
}

/*
TestTokenCodec_WrongSecret verifies that tokens signed elsewhere are rejected.
*/
func TestTokenCodec_WrongSecret(t *testing.T) {
	codec := newTestCodec(t, 15*time.Minute, time.Hour)

	other, err := sec.NewTokenCodec("other-access", "other-refresh", "sentra.test", 15*time.Minute, time.Hour)
	require.NoError(t, err)

	pair, err := other.Issue("user-1", sec.KindUser, nil)
	require.NoError(t, err)

	_, err = codec.VerifyAccess(pair.AccessToken)
	assert.Error(t, err)
}
