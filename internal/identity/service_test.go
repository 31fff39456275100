// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ducpham/sentra/internal/identity"
	"github.com/ducpham/sentra/internal/platform/apperr"
	"github.com/ducpham/sentra/internal/platform/sec"
)

// # Test Doubles

// memoryStore is an in-memory [identity.Store] with the same contract as the
// Postgres implementation, including (nil, nil) on absent rows and the
// boolean single-use gate on RemoveRefreshToken.
type memoryStore struct {
	kind       sec.Kind
	principals map[string]*identity.Principal
}

func newMemoryStore(kind sec.Kind) *memoryStore {
	return &memoryStore{kind: kind, principals: make(map[string]*identity.Principal)}
}

func (store *memoryStore) Kind() sec.Kind { return store.kind }

func (store *memoryStore) Create(_ context.Context, principal *identity.Principal) error {
	// The permissions and refreshtokens columns are NOT NULL; a nil slice
	// reaches the driver as SQL NULL and the INSERT fails.
	if principal.Permissions == nil || principal.RefreshTokens == nil {
		return errors.New("null value in array column violates not-null constraint")
	}
	clone := *principal
	store.principals[principal.ID] = &clone
	return nil
}

func (store *memoryStore) Update(_ context.Context, id string, update identity.ProfileUpdate) (*identity.Principal, error) {
	principal, ok := store.principals[id]
	if !ok {
		return nil, nil
	}
	if update.Fullname != nil {
		principal.Fullname = *update.Fullname
	}
	if update.Username != nil {
		principal.Username = *update.Username
	}
	if update.ProfileImg != nil {
		principal.ProfileImg = *update.ProfileImg
	}
	clone := *principal
	return &clone, nil
}

func (store *memoryStore) Delete(_ context.Context, id string) error {
	delete(store.principals, id)
	return nil
}

func (store *memoryStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, principal := range store.principals {
		if principal.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (store *memoryStore) ExistsByID(_ context.Context, id string) (bool, error) {
	_, ok := store.principals[id]
	return ok, nil
}

func (store *memoryStore) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, principal := range store.principals {
		if principal.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (store *memoryStore) FindByEmail(_ context.Context, email string) (*identity.Principal, error) {
	for _, principal := range store.principals {
		if principal.Email == email {
			clone := *principal
			return &clone, nil
		}
	}
	return nil, nil
}

func (store *memoryStore) FindByID(_ context.Context, id string) (*identity.Principal, error) {
	principal, ok := store.principals[id]
	if !ok {
		return nil, nil
	}
	clone := *principal
	return &clone, nil
}

func (store *memoryStore) FindByIDAndRefreshToken(_ context.Context, id, refreshToken string) (*identity.Principal, error) {
	principal, ok := store.principals[id]
	if !ok {
		return nil, nil
	}
	for _, token := range principal.RefreshTokens {
		if token == refreshToken {
			clone := *principal
			return &clone, nil
		}
	}
	return nil, nil
}

func (store *memoryStore) AddRefreshToken(_ context.Context, id, refreshToken string) error {
	principal, ok := store.principals[id]
	if !ok {
		return nil
	}
	for _, token := range principal.RefreshTokens {
		if token == refreshToken {
			return nil
		}
	}
	principal.RefreshTokens = append(principal.RefreshTokens, refreshToken)
	return nil
}

func (store *memoryStore) RemoveRefreshToken(_ context.Context, id, refreshToken string) (bool, error) {
	principal, ok := store.principals[id]
	if !ok {
		return false, nil
	}
	for i, token := range principal.RefreshTokens {
		if token == refreshToken {
			principal.RefreshTokens = append(principal.RefreshTokens[:i], principal.RefreshTokens[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (store *memoryStore) ClearRefreshTokens(_ context.Context, id string) error {
	if principal, ok := store.principals[id]; ok {
		principal.RefreshTokens = nil
	}
	return nil
}

func (store *memoryStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	if principal, ok := store.principals[id]; ok {
		principal.PasswordHash = passwordHash
	}
	return nil
}

func (store *memoryStore) ReplacePermissions(_ context.Context, id string, permissions []sec.Permission) error {
	if principal, ok := store.principals[id]; ok {
		principal.Permissions = permissions
	}
	return nil
}

func (store *memoryStore) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	if principal, ok := store.principals[id]; ok {
		principal.ResetTokenHash = tokenHash
		principal.ResetTokenExpiresAt = &expiresAt
	}
	return nil
}

func (store *memoryStore) FindByIDAndResetToken(_ context.Context, id, tokenHash string) (*identity.Principal, error) {
	principal, ok := store.principals[id]
	if !ok {
		return nil, nil
	}
	if principal.ResetTokenHash != tokenHash {
		return nil, nil
	}
	if principal.ResetTokenExpiresAt == nil || principal.ResetTokenExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	clone := *principal
	return &clone, nil
}

func (store *memoryStore) ResetPassword(_ context.Context, id, passwordHash string) error {
	if principal, ok := store.principals[id]; ok {
		principal.PasswordHash = passwordHash
		principal.ResetTokenHash = ""
		principal.ResetTokenExpiresAt = nil
		principal.RefreshTokens = nil
	}
	return nil
}

// recordingMail captures scheduled jobs without touching Redis.
type recordingMail struct {
	verifications []string
	resets        []string
	lastLink      string
}

func (mail *recordingMail) ScheduleVerificationEmail(_ context.Context, email, _, link string) error {
	mail.verifications = append(mail.verifications, email)
	mail.lastLink = link
	return nil
}

func (mail *recordingMail) ScheduleResetEmail(_ context.Context, email, _, link string) error {
	mail.resets = append(mail.resets, email)
	mail.lastLink = link
	return nil
}

// # Fixture

type fixture struct {
	store   *memoryStore
	mail    *recordingMail
	service *identity.Service
}

func newFixture(t *testing.T, kind sec.Kind) *fixture {
	t.Helper()

	codec, err := sec.NewTokenCodec("test-access-secret", "test-refresh-secret", "sentra.test", 15*time.Minute, time.Hour)
	require.NoError(t, err)

	store := newMemoryStore(kind)
	mail := &recordingMail{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		store:   store,
		mail:    mail,
		service: identity.NewService(store, codec, mail, nil, logger, bcrypt.MinCost),
	}
}

func (f *fixture) register(t *testing.T, email string) (*identity.Principal, sec.TokenPair) {
	t.Helper()
	principal, pair, err := f.service.Register(context.Background(), identity.RegisterInput{
		Fullname:       "Test Person",
		Email:          email,
		Password:       "Str0ng!pass",
		VerifyLinkBase: "http://localhost:8080",
	})
	require.NoError(t, err)
	return principal, pair
}

// # Registration

/*
TestRegister_Enrollment covers username derivation, default capability grant,
first session creation, and the verification mail side effect.
*/
func TestRegister_Enrollment(t *testing.T) {
	f := newFixture(t, sec.KindUser)

	principal, pair := f.register(t, "jane.doe@example.com")

	assert.Equal(t, "jane.doe", principal.Username)
	assert.ElementsMatch(t, sec.DefaultPermissions(sec.KindUser), principal.Permissions)
	assert.NotEmpty(t, pair.AccessToken)

	// The opened session is persisted.
	stored := f.store.principals[principal.ID]
	require.NotNil(t, stored)
	assert.Contains(t, stored.RefreshTokens, pair.RefreshToken)

	// Password is never stored in the clear.
	assert.NotEqual(t, "Str0ng!pass", stored.PasswordHash)

	// Verification mail was scheduled.
	assert.Equal(t, []string{"jane.doe@example.com"}, f.mail.verifications)
	assert.Contains(t, f.mail.lastLink, "verify-email")
}

/*
TestRegister_DuplicateEmail verifies the Conflict response on re-enrollment.
*/
func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	f.register(t, "jane.doe@example.com")

	_, _, err := f.service.Register(context.Background(), identity.RegisterInput{
		Fullname: "Imposter",
		Email:    "jane.doe@example.com",
		Password: "An0ther!pass",
	})
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "CONFLICT", ae.Code)
}

/*
TestRegister_UsernameCollision verifies the numeric suffix probe.
*/
func TestRegister_UsernameCollision(t *testing.T) {
	f := newFixture(t, sec.KindUser)

	first, _ := f.register(t, "jane.doe@example.com")
	second, _ := f.register(t, "jane.doe@other.com")
	third, _ := f.register(t, "jane.doe@elsewhere.org")

	assert.Equal(t, "jane.doe", first.Username)
	assert.Equal(t, "jane.doe1", second.Username)
	assert.Equal(t, "jane.doe2", third.Username)
}

// # Login

/*
TestLogin_EnumerationParity checks that an unknown email and a wrong password
produce byte-identical errors, closing the account enumeration oracle.
*/
func TestLogin_EnumerationParity(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	f.register(t, "jane.doe@example.com")

	_, _, unknownErr := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "nobody@example.com",
		Password: "Str0ng!pass",
	})
	_, _, wrongErr := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "jane.doe@example.com",
		Password: "Wr0ng!pass1",
	})

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)

	unknownApp := apperr.As(unknownErr)
	wrongApp := apperr.As(wrongErr)
	require.NotNil(t, unknownApp)
	require.NotNil(t, wrongApp)

	assert.Equal(t, unknownApp.Code, wrongApp.Code)
	assert.Equal(t, unknownApp.Message, wrongApp.Message)
	assert.Equal(t, unknownApp.HTTPStatus, wrongApp.HTTPStatus)
	assert.Equal(t, apperr.CodeInvalidCredentials, wrongApp.Code)
}

/*
TestLogin_OpensSession verifies that each login adds a distinct session.
*/
func TestLogin_OpensSession(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, firstPair := f.register(t, "jane.doe@example.com")

	_, secondPair, err := f.service.Login(context.Background(), identity.LoginInput{
		Email:    "jane.doe@example.com",
		Password: "Str0ng!pass",
	})
	require.NoError(t, err)
	assert.NotEqual(t, firstPair.RefreshToken, secondPair.RefreshToken)

	stored := f.store.principals[principal.ID]
	assert.Len(t, stored.RefreshTokens, 2)
}

// # Refresh Rotation

/*
TestRefresh_SingleUse verifies that rotation consumes the presented token:
the first refresh succeeds, a replay of the same token fails, and the token
issued by the first rotation is untouched by the replay attempt.
*/
func TestRefresh_SingleUse(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, pair := f.register(t, "jane.doe@example.com")

	_, rotated, err := f.service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	stored := f.store.principals[principal.ID]
	assert.NotContains(t, stored.RefreshTokens, pair.RefreshToken)
	assert.Contains(t, stored.RefreshTokens, rotated.RefreshToken)

	// Replay of the consumed token is rejected with INVALID_REFRESH.
	_, _, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeInvalidRefresh, ae.Code)

	// The replay pulls only the token it presented. The session opened by
	// the legitimate first rotation is still registered and still rotates.
	assert.Contains(t, f.store.principals[principal.ID].RefreshTokens, rotated.RefreshToken)

	_, next, err := f.service.Refresh(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
	assert.Contains(t, f.store.principals[principal.ID].RefreshTokens, next.RefreshToken)
}

/*
TestRefresh_GarbageToken verifies that a forged token maps to INVALID_REFRESH.
*/
func TestRefresh_GarbageToken(t *testing.T) {
	f := newFixture(t, sec.KindUser)

	_, _, err := f.service.Refresh(context.Background(), "not-a-token")
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeInvalidRefresh, ae.Code)
}

// # Logout

/*
TestLogout_Idempotent verifies that revoking an unknown session is not an
error and that a real session is removed.
*/
func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, pair := f.register(t, "jane.doe@example.com")

	require.NoError(t, f.service.Logout(context.Background(), principal.ID, pair.RefreshToken))
	assert.Empty(t, f.store.principals[principal.ID].RefreshTokens)

	// Second logout with the same token is a no-op.
	require.NoError(t, f.service.Logout(context.Background(), principal.ID, pair.RefreshToken))

	// Missing inputs are also a no-op.
	require.NoError(t, f.service.Logout(context.Background(), "", ""))
}

// # Credential Flows

/*
TestPasswordChangeKeepsSessions_ResetRevokesThem pins the asymmetry between
the two credential flows: an authenticated password change leaves existing
sessions alive, while a reset-by-token revokes every session.
*/
func TestPasswordChangeKeepsSessions_ResetRevokesThem(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, pair := f.register(t, "jane.doe@example.com")

	// Authenticated change: sessions survive.
	err := f.service.UpdatePassword(context.Background(), principal.ID, "Str0ng!pass", "N3w!password")
	require.NoError(t, err)
	assert.Contains(t, f.store.principals[principal.ID].RefreshTokens, pair.RefreshToken)

	// Reset by token: sessions revoked.
	rawToken, matched, err := f.service.InitPasswordReset(context.Background(), "jane.doe@example.com", "http://localhost:8080")
	require.NoError(t, err)
	require.NotNil(t, matched)
	require.NotEmpty(t, rawToken)

	err = f.service.ResetPasswordByToken(context.Background(), principal.ID, rawToken, "Fin4l!password")
	require.NoError(t, err)

	stored := f.store.principals[principal.ID]
	assert.Empty(t, stored.RefreshTokens)
	assert.Empty(t, stored.ResetTokenHash)

	// The new password is live.
	_, _, err = f.service.Login(context.Background(), identity.LoginInput{
		Email:    "jane.doe@example.com",
		Password: "Fin4l!password",
	})
	assert.NoError(t, err)
}

/*
TestUpdatePassword_WrongCurrent verifies the INCORRECT_CREDENTIALS 400.
*/
func TestUpdatePassword_WrongCurrent(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, _ := f.register(t, "jane.doe@example.com")

	err := f.service.UpdatePassword(context.Background(), principal.ID, "Wr0ng!pass1", "N3w!password")
	require.Error(t, err)

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeIncorrectCredentials, ae.Code)
	assert.Equal(t, 400, ae.HTTPStatus)
}

/*
TestInitPasswordReset_UnknownEmail verifies the silent miss: no error, no
principal, no mail.
*/
func TestInitPasswordReset_UnknownEmail(t *testing.T) {
	f := newFixture(t, sec.KindUser)

	rawToken, matched, err := f.service.InitPasswordReset(context.Background(), "nobody@example.com", "http://localhost:8080")
	require.NoError(t, err)
	assert.Nil(t, matched)
	assert.Empty(t, rawToken)
	assert.Empty(t, f.mail.resets)
}

/*
TestInitPasswordReset_StoresHashNotToken verifies that the raw token never
touches the store and that the reset mail is scheduled.
*/
func TestInitPasswordReset_StoresHashNotToken(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, _ := f.register(t, "jane.doe@example.com")

	rawToken, _, err := f.service.InitPasswordReset(context.Background(), "jane.doe@example.com", "http://localhost:8080")
	require.NoError(t, err)

	stored := f.store.principals[principal.ID]
	assert.NotEmpty(t, stored.ResetTokenHash)
	assert.NotEqual(t, rawToken, stored.ResetTokenHash)
	assert.Equal(t, sec.HashToken(rawToken), stored.ResetTokenHash)

	assert.Equal(t, []string{"jane.doe@example.com"}, f.mail.resets)
	assert.Contains(t, f.mail.lastLink, rawToken)
}

/*
TestResetPasswordByToken_SingleUse verifies that a consumed token is dead and
a wrong token never works.
*/
func TestResetPasswordByToken_SingleUse(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, _ := f.register(t, "jane.doe@example.com")

	rawToken, _, err := f.service.InitPasswordReset(context.Background(), "jane.doe@example.com", "http://localhost:8080")
	require.NoError(t, err)

	require.NoError(t, f.service.ResetPasswordByToken(context.Background(), principal.ID, rawToken, "N3w!password"))

	// Replay fails; the token was cleared with the reset.
	err = f.service.ResetPasswordByToken(context.Background(), principal.ID, rawToken, "An0ther!pass")
	require.Error(t, err)
	assert.Equal(t, 400, apperr.As(err).HTTPStatus)
}

/*
TestResetPasswordByToken_Expired verifies the expiry window.
*/
func TestResetPasswordByToken_Expired(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, _ := f.register(t, "jane.doe@example.com")

	rawToken, _, err := f.service.InitPasswordReset(context.Background(), "jane.doe@example.com", "http://localhost:8080")
	require.NoError(t, err)

	// Force the stored expiry into the past.
	past := time.Now().Add(-time.Minute)
	f.store.principals[principal.ID].ResetTokenExpiresAt = &past

	err = f.service.ResetPasswordByToken(context.Background(), principal.ID, rawToken, "N3w!password")
	require.Error(t, err)
	assert.Equal(t, 400, apperr.As(err).HTTPStatus)
}

// # Profile Operations

/*
TestProfile_Projection verifies that the public projection never leaks
credential material and that NotFound carries USER_NOT_FOUND.
*/
func TestProfile_Projection(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, _ := f.register(t, "jane.doe@example.com")

	profile, err := f.service.Profile(context.Background(), principal.ID)
	require.NoError(t, err)
	assert.Equal(t, principal.ID, profile.ID)
	assert.Equal(t, sec.KindUser, profile.Kind)
	assert.Equal(t, "jane.doe", profile.Username)

	_, err = f.service.Profile(context.Background(), "missing-id")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUserNotFound, apperr.As(err).Code)
}

/*
TestUpdateProfile_PartialAndConflict covers partial updates, the empty-update
rejection, and the username uniqueness check.
*/
func TestUpdateProfile_PartialAndConflict(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, _ := f.register(t, "jane.doe@example.com")
	other, _ := f.register(t, "john.roe@example.com")

	newName := "Jane D."
	profile, err := f.service.UpdateProfile(context.Background(), principal.ID, identity.ProfileUpdate{Fullname: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Jane D.", profile.Fullname)
	assert.Equal(t, "jane.doe", profile.Username) // untouched

	_, err = f.service.UpdateProfile(context.Background(), principal.ID, identity.ProfileUpdate{})
	require.Error(t, err)
	assert.Equal(t, 400, apperr.As(err).HTTPStatus)

	taken := other.Username
	_, err = f.service.UpdateProfile(context.Background(), principal.ID, identity.ProfileUpdate{Username: &taken})
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperr.As(err).Code)
}

/*
TestDelete removes the account and reports NotFound afterwards.
*/
func TestDelete(t *testing.T) {
	f := newFixture(t, sec.KindUser)
	principal, _ := f.register(t, "jane.doe@example.com")

	require.NoError(t, f.service.Delete(context.Background(), principal.ID))

	err := f.service.Delete(context.Background(), principal.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUserNotFound, apperr.As(err).Code)
}

// # Dispatcher

/*
TestDispatcher_Routing verifies kind routing, the construction-time checks,
and the existence probe.
*/
func TestDispatcher_Routing(t *testing.T) {
	userFixture := newFixture(t, sec.KindUser)
	adminFixture := newFixture(t, sec.KindAdmin)

	dispatcher, err := identity.NewDispatcher(userFixture.service, adminFixture.service)
	require.NoError(t, err)

	userService, err := dispatcher.ForKind(sec.KindUser)
	require.NoError(t, err)
	assert.Equal(t, sec.KindUser, userService.Kind())

	adminService, err := dispatcher.ForKind(sec.KindAdmin)
	require.NoError(t, err)
	assert.Equal(t, sec.KindAdmin, adminService.Kind())

	// Unknown kinds are a server-side wiring error.
	_, err = dispatcher.ForKind(sec.Kind("GUEST"))
	require.Error(t, err)
	assert.Equal(t, "CONFIGURATION_ERROR", apperr.As(err).Code)

	// The existence probe routes by kind.
	principal, _ := userFixture.register(t, "jane.doe@example.com")
	exists, err := dispatcher.ExistsByID(context.Background(), sec.KindUser, principal.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = dispatcher.ExistsByID(context.Background(), sec.KindAdmin, principal.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

/*
TestDispatcher_RejectsMiswiring verifies the constructor guards.
*/
func TestDispatcher_RejectsMiswiring(t *testing.T) {
	userFixture := newFixture(t, sec.KindUser)

	_, err := identity.NewDispatcher(nil, nil)
	assert.Error(t, err)

	// Both slots bound to the same population.
	_, err = identity.NewDispatcher(userFixture.service, userFixture.service)
	assert.Error(t, err)
}

/*
TestDispatcher_CrossKindLookup verifies the kind-agnostic email search used
by the password recovery entry point.
*/
func TestDispatcher_CrossKindLookup(t *testing.T) {
	userFixture := newFixture(t, sec.KindUser)
	adminFixture := newFixture(t, sec.KindAdmin)

	dispatcher, err := identity.NewDispatcher(userFixture.service, adminFixture.service)
	require.NoError(t, err)

	adminFixture.register(t, "root@example.com")

	service, principal, err := dispatcher.FindByEmailAcrossKinds(context.Background(), "root@example.com")
	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, sec.KindAdmin, service.Kind())

	_, missing, err := dispatcher.FindByEmailAcrossKinds(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
