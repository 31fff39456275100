// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ducpham/sentra/internal/platform/apperr"
	"github.com/ducpham/sentra/internal/platform/sec"
	"github.com/ducpham/sentra/pkg/uuid"
)

// # Contracts & Types

// TokenProvider defines the contract for issuing and verifying token pairs.
type TokenProvider interface {
	// Issue produces a signed access/refresh pair for the given identity.
	Issue(id string, kind sec.Kind, permissions []sec.Permission) (sec.TokenPair, error)

	// VerifyRefresh checks the signature and validity of a refresh token.
	VerifyRefresh(token string) (*sec.Claims, error)
}

// MailScheduler defines the contract for enqueueing outbound email jobs.
// Delivery is asynchronous; a returned error means the job could not be
// queued, not that the mail failed to send.
type MailScheduler interface {
	ScheduleVerificationEmail(ctx context.Context, email, username, link string) error
	ScheduleResetEmail(ctx context.Context, email, username, link string) error
}

// Service implements the account lifecycle use cases for one principal
// population. Two instances exist at runtime, one per [sec.Kind], each bound
// to its own [Store].
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, session
// rotation, or reset logic must be reviewed by the security team.
type Service struct {
	store      Store
	tokens     TokenProvider
	mail       MailScheduler
	cache      *ProfileCache
	logger     *slog.Logger
	bcryptCost int
}

// NewService constructs a [Service] for the population owned by store.
func NewService(
	store Store,
	tokens TokenProvider,
	mail MailScheduler,
	cache *ProfileCache,
	logger *slog.Logger,
	bcryptCost int,
) *Service {
	return &Service{
		store:      store,
		tokens:     tokens,
		mail:       mail,
		cache:      cache,
		logger:     logger,
		bcryptCost: bcryptCost,
	}
}

// Kind identifies which population this service manages.
func (service *Service) Kind() sec.Kind { return service.store.Kind() }

// # Registration Flow

// RegisterInput holds the data required to enroll a new principal.
type RegisterInput struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`

	// VerifyLinkBase is the origin used to build the email verification
	// link, derived from the inbound request by the handler.
	VerifyLinkBase string `json:"-"`
}

/*
Register validates, hashes, and persists a brand new principal.

Description: Derives a unique username from the email local part, grants the
population's default capability set, and opens the first session. The
verification email is scheduled fire-and-forget; enrollment never fails on
mail queue trouble.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *Principal: Created entity
  - sec.TokenPair: The first session's tokens
  - error: Conflict (if email exists) or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*Principal, sec.TokenPair, error) {

	// Verify email uniqueness. Return a client-safe Conflict error.
	exists, err := service.store.ExistsByEmail(context, input.Email)
	if err != nil {
		return nil, sec.TokenPair{}, fmt.Errorf("identity_register_email_probe_failed: %w", err)
	}
	if exists {
		return nil, sec.TokenPair{}, apperr.Conflict("Email is already registered")
	}

	username, err := DeriveUsername(context, input.Email, service.store.UsernameExists)
	if err != nil {
		return nil, sec.TokenPair{}, err
	}

	// Prevent storing plain-text passwords.
	passwordHash, err := sec.HashPassword(input.Password, service.bcryptCost)
	if err != nil {
		return nil, sec.TokenPair{}, fmt.Errorf("identity_register_hash_failed: %w", err)
	}

	principal := &Principal{
		ID:            uuid.Must(),
		Fullname:      input.Fullname,
		Email:         input.Email,
		Username:      username,
		PasswordHash:  passwordHash,
		Permissions:   sec.DefaultPermissions(service.Kind()),
		RefreshTokens: []string{},
	}

	if err := service.store.Create(context, principal); err != nil {
		return nil, sec.TokenPair{}, err
	}

	pair, err := service.openSession(context, principal)
	if err != nil {
		return nil, sec.TokenPair{}, err
	}

	service.scheduleVerificationMail(context, principal, input.VerifyLinkBase)

	return principal, pair, nil
}

// scheduleVerificationMail enqueues the welcome/verification email. Failures
// are logged, never surfaced; the account is already created.
func (service *Service) scheduleVerificationMail(context context.Context, principal *Principal, linkBase string) {
	if service.mail == nil || linkBase == "" {
		return
	}

	token, err := sec.GenerateSecureToken(VerificationTokenLength)
	if err != nil {
		service.logger.Error("verification_token_generation_failed", slog.Any("error", err))
		return
	}

	link := fmt.Sprintf("%s/verify-email?token=%s&id=%s", linkBase, token, principal.ID)
	if err := service.mail.ScheduleVerificationEmail(context, principal.Email, principal.Username, link); err != nil {
		service.logger.Error("verification_mail_enqueue_failed",
			slog.String("principal_id", principal.ID),
			slog.Any("error", err),
		)
	}
}

// # Login Flow

// LoginInput holds the credentials presented at login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

/*
Login verifies credentials and opens a new session.

Description: Unknown email and wrong password produce the IDENTICAL response
(401 INVALID_CREDENTIALS), so the endpoint cannot be used as an account
enumeration oracle.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *Principal: The authenticated entity
  - sec.TokenPair: The new session's tokens
  - error: INVALID_CREDENTIALS or storage errors
*/
func (service *Service) Login(context context.Context, input LoginInput) (*Principal, sec.TokenPair, error) {
	invalidCredentials := apperr.Unauthorized("Invalid email or password").
		WithCode(apperr.CodeInvalidCredentials)

	principal, err := service.store.FindByEmail(context, input.Email)
	if err != nil {
		return nil, sec.TokenPair{}, err
	}
	if principal == nil {
		return nil, sec.TokenPair{}, invalidCredentials
	}

	if !sec.CheckPasswordHash(input.Password, principal.PasswordHash) {
		return nil, sec.TokenPair{}, invalidCredentials
	}

	pair, err := service.openSession(context, principal)
	if err != nil {
		return nil, sec.TokenPair{}, err
	}

	return principal, pair, nil
}

// openSession issues a token pair and registers the refresh token in the
// principal's session set.
func (service *Service) openSession(context context.Context, principal *Principal) (sec.TokenPair, error) {
	pair, err := service.tokens.Issue(principal.ID, service.Kind(), principal.Permissions)
	if err != nil {
		return sec.TokenPair{}, err
	}

	if err := service.store.AddRefreshToken(context, principal.ID, pair.RefreshToken); err != nil {
		return sec.TokenPair{}, err
	}

	return pair, nil
}

// # Session Lifecycle

/*
Logout revokes a single session.

Description: Idempotent and best-effort. An unknown or already-revoked token
is not an error; logout must always succeed from the client's perspective.

Parameters:
  - context: context.Context
  - principalID: string
  - refreshToken: string (the session to close, may be empty)

Returns:
  - error: Only unexpected storage failures
*/
func (service *Service) Logout(context context.Context, principalID, refreshToken string) error {
	if principalID == "" || refreshToken == "" {
		return nil
	}

	if _, err := service.store.RemoveRefreshToken(context, principalID, refreshToken); err != nil {
		return err
	}
	return nil
}

/*
Refresh rotates a refresh token: the presented token is consumed and a fresh
pair is issued.

Description: Single-use enforcement hinges on [Store.RemoveRefreshToken]'s
boolean. Two concurrent requests presenting the same token both pass
signature verification, but only the one whose removal reports true receives
new tokens; the loser gets INVALID_REFRESH. A verified token that is absent
from the session set indicates replay of an already-rotated token; only the
presented token is pulled, so sessions opened by other devices (including
the one that won the original rotation) stay valid.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *Principal: The session owner
  - sec.TokenPair: The replacement tokens
  - error: INVALID_REFRESH or storage errors
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (*Principal, sec.TokenPair, error) {
	invalidRefresh := apperr.Unauthorized("Invalid or expired refresh token").
		WithCode(apperr.CodeInvalidRefresh)

	claims, err := service.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, sec.TokenPair{}, invalidRefresh
	}

	principal, err := service.store.FindByIDAndRefreshToken(context, claims.ID, refreshToken)
	if err != nil {
		return nil, sec.TokenPair{}, err
	}
	if principal == nil {
		// Valid signature but not in the session set: an already-rotated
		// token was replayed. Pull the presented token and nothing else.
		if _, err := service.store.RemoveRefreshToken(context, claims.ID, refreshToken); err != nil {
			service.logger.Error("refresh_replay_cleanup_failed",
				slog.String("principal_id", claims.ID),
				slog.Any("error", err),
			)
		}
		return nil, sec.TokenPair{}, invalidRefresh
	}

	pair, err := service.tokens.Issue(principal.ID, service.Kind(), principal.Permissions)
	if err != nil {
		return nil, sec.TokenPair{}, err
	}

	removed, err := service.store.RemoveRefreshToken(context, principal.ID, refreshToken)
	if err != nil {
		return nil, sec.TokenPair{}, err
	}
	if !removed {
		// A concurrent request consumed the token between lookup and
		// removal. That request owns the rotation; this one loses.
		return nil, sec.TokenPair{}, invalidRefresh
	}

	if err := service.store.AddRefreshToken(context, principal.ID, pair.RefreshToken); err != nil {
		return nil, sec.TokenPair{}, err
	}

	return principal, pair, nil
}

// # Profile Operations

/*
Profile returns the public projection of a principal, read through the cache.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - PublicProfile: The client-facing projection
  - error: apperr.NotFound or storage errors
*/
func (service *Service) Profile(context context.Context, id string) (PublicProfile, error) {
	if service.cache != nil {
		cached, err := service.cache.Get(context, service.Kind(), id)
		if err != nil {
			// Cache trouble degrades to a database read.
			service.logger.Warn("profile_cache_read_failed", slog.Any("error", err))
		}
		if cached != nil {
			return *cached, nil
		}
	}

	principal, err := service.store.FindByID(context, id)
	if err != nil {
		return PublicProfile{}, err
	}
	if principal == nil {
		return PublicProfile{}, apperr.NotFound("User").WithCode(apperr.CodeUserNotFound)
	}

	profile := principal.Public(service.Kind())

	if service.cache != nil {
		if err := service.cache.Set(context, profile); err != nil {
			service.logger.Warn("profile_cache_write_failed", slog.Any("error", err))
		}
	}

	return profile, nil
}

/*
UpdateProfile applies a partial profile update and evicts the cache.

Parameters:
  - context: context.Context
  - id: string
  - update: ProfileUpdate

Returns:
  - PublicProfile: The projection after the update
  - error: Validation, NotFound, Conflict, or storage errors
*/
func (service *Service) UpdateProfile(context context.Context, id string, update ProfileUpdate) (PublicProfile, error) {
	if update.Empty() {
		return PublicProfile{}, apperr.BadRequest("No updatable fields provided")
	}

	if update.Username != nil {
		taken, err := service.store.UsernameExists(context, *update.Username)
		if err != nil {
			return PublicProfile{}, err
		}
		if taken {
			return PublicProfile{}, apperr.Conflict("Username is already taken")
		}
	}

	principal, err := service.store.Update(context, id, update)
	if err != nil {
		return PublicProfile{}, err
	}
	if principal == nil {
		return PublicProfile{}, apperr.NotFound("User").WithCode(apperr.CodeUserNotFound)
	}

	service.evictProfile(context, id)

	return principal.Public(service.Kind()), nil
}

/*
Delete removes a principal and every trace of its sessions and cache entries.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: NotFound or storage errors
*/
func (service *Service) Delete(context context.Context, id string) error {
	exists, err := service.store.ExistsByID(context, id)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("User").WithCode(apperr.CodeUserNotFound)
	}

	if err := service.store.Delete(context, id); err != nil {
		return err
	}

	service.evictProfile(context, id)
	return nil
}

func (service *Service) evictProfile(context context.Context, id string) {
	if service.cache == nil {
		return
	}
	if err := service.cache.Invalidate(context, service.Kind(), id); err != nil {
		service.logger.Warn("profile_cache_evict_failed",
			slog.String("principal_id", id),
			slog.Any("error", err),
		)
	}
}

// # Credential Operations

/*
UpdatePassword changes the password of an authenticated principal.

Description: Requires proof of the current password. A wrong current password
is a 400 INCORRECT_CREDENTIALS, distinct from the login flow's 401. Existing
sessions deliberately survive the change; only the reset-by-token flow
revokes them.

Parameters:
  - context: context.Context
  - id: string
  - currentPassword: string
  - newPassword: string

Returns:
  - error: INCORRECT_CREDENTIALS, NotFound, or storage errors
*/
func (service *Service) UpdatePassword(context context.Context, id, currentPassword, newPassword string) error {
	principal, err := service.store.FindByID(context, id)
	if err != nil {
		return err
	}
	if principal == nil {
		return apperr.NotFound("User").WithCode(apperr.CodeUserNotFound)
	}

	if !sec.CheckPasswordHash(currentPassword, principal.PasswordHash) {
		return apperr.BadRequest("Current password is incorrect").
			WithCode(apperr.CodeIncorrectCredentials)
	}

	newHash, err := sec.HashPassword(newPassword, service.bcryptCost)
	if err != nil {
		return fmt.Errorf("identity_update_password_hash_failed: %w", err)
	}

	return service.store.UpdatePassword(context, id, newHash)
}

/*
InitPasswordReset starts the forgot-password flow for an email address.

Description: Generates a raw secret, stores only its sha256 with a 10 minute
expiry, and schedules the reset email. Returns the raw token and the matched
principal so the handler can build the link; the HANDLER is responsible for
answering generically whether or not the email matched.

Parameters:
  - context: context.Context
  - email: string
  - linkBase: string (origin for the reset link)

Returns:
  - string: The raw reset token (never stored)
  - *Principal: The matched entity, nil when the email is unknown
  - error: Storage errors only; an unknown email is NOT an error
*/
func (service *Service) InitPasswordReset(context context.Context, email, linkBase string) (string, *Principal, error) {
	principal, err := service.store.FindByEmail(context, email)
	if err != nil {
		return "", nil, err
	}
	if principal == nil {
		return "", nil, nil
	}

	rawToken, err := sec.GenerateSecureToken(ResetTokenLength)
	if err != nil {
		return "", nil, fmt.Errorf("identity_reset_token_generation_failed: %w", err)
	}

	expiresAt := time.Now().Add(ResetTokenTTL)
	if err := service.store.SetResetToken(context, principal.ID, sec.HashToken(rawToken), expiresAt); err != nil {
		return "", nil, err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s&id=%s", linkBase, rawToken, principal.ID)
	if service.mail != nil {
		if err := service.mail.ScheduleResetEmail(context, principal.Email, principal.Username, link); err != nil {
			// The token is already stored; a queue hiccup must not reveal
			// anything to the caller. Log and move on.
			service.logger.Error("reset_mail_enqueue_failed",
				slog.String("principal_id", principal.ID),
				slog.Any("error", err),
			)
		}
	}

	return rawToken, principal, nil
}

/*
ResetPasswordByToken completes the forgot-password flow.

Description: The presented raw token is hashed and matched against the stored
sha256 with its expiry. On success the password is replaced, the token is
consumed, and EVERY session is revoked in one atomic statement.

Parameters:
  - context: context.Context
  - id: string
  - rawToken: string
  - newPassword: string

Returns:
  - error: BadRequest (invalid/expired token) or storage errors
*/
func (service *Service) ResetPasswordByToken(context context.Context, id, rawToken, newPassword string) error {
	principal, err := service.store.FindByIDAndResetToken(context, id, sec.HashToken(rawToken))
	if err != nil {
		return err
	}
	if principal == nil {
		return apperr.BadRequest("Reset token is invalid or expired").
			WithCode(apperr.CodeInvalidToken)
	}

	newHash, err := sec.HashPassword(newPassword, service.bcryptCost)
	if err != nil {
		return fmt.Errorf("identity_reset_password_hash_failed: %w", err)
	}

	if err := service.store.ResetPassword(context, principal.ID, newHash); err != nil {
		return err
	}

	service.evictProfile(context, principal.ID)
	return nil
}
