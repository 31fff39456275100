// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ducpham/sentra/internal/platform/dberr"
	"github.com/ducpham/sentra/internal/platform/sec"
)

// # Postgres Store

// Table names, one per principal population.
const (
	userTable  = "identity.user_account"
	adminTable = "identity.admin_account"
)

// principalColumns is the full column list shared by both account tables.
const principalColumns = `
	id, fullname, email, username, profileimg, passwordhash, verified,
	permissions, refreshtokens, resettokenhash, resettokenexpiresat,
	createdat, updatedat`

// PostgresStore implements [Store] on top of a pgx connection pool.
//
// # Atomic Set Operations
//
// The refresh token set lives in a TEXT[] column mutated exclusively through
// single-statement array_append/array_remove updates. Postgres serializes
// row-level writes, so membership changes are atomic without explicit
// transactions, and RowsAffected tells a racing caller whether its removal
// actually won.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
	kind  sec.Kind
}

// NewUserStore creates the store for the USER population.
func NewUserStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, table: userTable, kind: sec.KindUser}
}

// NewAdminStore creates the store for the ADMIN population.
func NewAdminStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, table: adminTable, kind: sec.KindAdmin}
}

// Kind identifies which population this store persists.
func (store *PostgresStore) Kind() sec.Kind { return store.kind }

/*
Create persists a new principal record.

Description: Inserts the full account row, initializing timestamps and the
(empty) session and reset state.

Parameters:
  - context: context.Context
  - principal: *Principal (Entity to persist)

Returns:
  - error: Conflict on duplicate email/username, or connectivity errors
*/
func (store *PostgresStore) Create(context context.Context, principal *Principal) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, fullname, email, username, profileimg, passwordhash, verified,
			permissions, refreshtokens, resettokenhash, resettokenexpiresat,
			createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`, store.table)

	now := time.Now()
	if principal.CreatedAt.IsZero() {
		principal.CreatedAt = now
	}
	principal.UpdatedAt = now

	_, err := store.pool.Exec(context, query,
		principal.ID,
		principal.Fullname,
		principal.Email,
		principal.Username,
		principal.ProfileImg,
		principal.PasswordHash,
		principal.Verified,
		permissionsToText(principal.Permissions),
		textArray(principal.RefreshTokens),
		nullableString(principal.ResetTokenHash),
		principal.ResetTokenExpiresAt,
		principal.CreatedAt,
		principal.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "identity_store_create")
	}

	return nil
}

/*
Update applies a partial profile update and returns the refreshed row.

Description: COALESCE keeps untouched columns intact so concurrent updates of
different fields never clobber each other.

Parameters:
  - context: context.Context
  - id: string
  - update: ProfileUpdate (nil fields are left unchanged)

Returns:
  - *Principal: The row after the update, nil when no row matched
  - error: Execution errors
*/
func (store *PostgresStore) Update(context context.Context, id string, update ProfileUpdate) (*Principal, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET fullname   = COALESCE($2, fullname),
		    username   = COALESCE($3, username),
		    profileimg = COALESCE($4, profileimg),
		    updatedat  = $5
		WHERE id = $1
		RETURNING %s`, store.table, principalColumns)

	row := store.pool.QueryRow(context, query, id,
		update.Fullname, update.Username, update.ProfileImg, time.Now())

	principal, err := scanPrincipal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity_store_update_failed: %w", err)
	}

	return principal, nil
}

/*
Delete removes the principal record entirely.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) Delete(context context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", store.table)
	_, err := store.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("identity_store_delete_failed: %w", err)
	}
	return nil
}

// ExistsByEmail reports whether a principal with the given email exists.
func (store *PostgresStore) ExistsByEmail(context context.Context, email string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE email = $1)", store.table)

	var exists bool
	if err := store.pool.QueryRow(context, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("identity_store_exists_by_email_failed: %w", err)
	}
	return exists, nil
}

// ExistsByID reports whether a principal with the given ID exists.
func (store *PostgresStore) ExistsByID(context context.Context, id string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", store.table)

	var exists bool
	if err := store.pool.QueryRow(context, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("identity_store_exists_by_id_failed: %w", err)
	}
	return exists, nil
}

// UsernameExists reports whether a username is already taken in this population.
func (store *PostgresStore) UsernameExists(context context.Context, username string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE username = $1)", store.table)

	var exists bool
	if err := store.pool.QueryRow(context, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("identity_store_username_exists_failed: %w", err)
	}
	return exists, nil
}

/*
FindByEmail retrieves a principal by their unique email address.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Principal: Hydrated account entity, nil when absent
  - error: Execution errors
*/
func (store *PostgresStore) FindByEmail(context context.Context, email string) (*Principal, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE email = $1", principalColumns, store.table)
	return store.findOne(context, query, email)
}

/*
FindByID retrieves a principal by primary key.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *Principal: Hydrated account entity, nil when absent
  - error: Execution errors
*/
func (store *PostgresStore) FindByID(context context.Context, id string) (*Principal, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", principalColumns, store.table)
	return store.findOne(context, query, id)
}

/*
FindByIDAndRefreshToken retrieves a principal only when the given refresh
token is a current member of its session set.

Description: The @> containment operator checks array membership inside the
query, so token validity and row retrieval are a single consistent read.

Parameters:
  - context: context.Context
  - id: string
  - refreshToken: string

Returns:
  - *Principal: Hydrated account entity, nil when absent or token unknown
  - error: Execution errors
*/
func (store *PostgresStore) FindByIDAndRefreshToken(context context.Context, id, refreshToken string) (*Principal, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id = $1 AND refreshtokens @> ARRAY[$2]`, principalColumns, store.table)
	return store.findOne(context, query, id, refreshToken)
}

/*
AddRefreshToken appends a session token to the refresh token set.

Description: The NOT ... @> guard makes the append idempotent; replaying the
same statement never produces duplicates.

Parameters:
  - context: context.Context
  - id: string
  - refreshToken: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) AddRefreshToken(context context.Context, id, refreshToken string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET refreshtokens = array_append(refreshtokens, $2), updatedat = $3
		WHERE id = $1 AND NOT refreshtokens @> ARRAY[$2]`, store.table)

	_, err := store.pool.Exec(context, query, id, refreshToken, time.Now())
	if err != nil {
		return fmt.Errorf("identity_store_add_refresh_token_failed: %w", err)
	}
	return nil
}

/*
RemoveRefreshToken removes one session token from the set.

Description: The WHERE clause only matches when the token is still present, so
RowsAffected is the authoritative answer to "did this caller revoke it first".
Refresh rotation uses that boolean as its single-use gate.

Parameters:
  - context: context.Context
  - id: string
  - refreshToken: string

Returns:
  - bool: Whether the token was present and removed by this call
  - error: Execution errors
*/
func (store *PostgresStore) RemoveRefreshToken(context context.Context, id, refreshToken string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET refreshtokens = array_remove(refreshtokens, $2), updatedat = $3
		WHERE id = $1 AND refreshtokens @> ARRAY[$2]`, store.table)

	tag, err := store.pool.Exec(context, query, id, refreshToken, time.Now())
	if err != nil {
		return false, fmt.Errorf("identity_store_remove_refresh_token_failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

/*
ClearRefreshTokens revokes every live session at once.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) ClearRefreshTokens(context context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET refreshtokens = '{}', updatedat = $2
		WHERE id = $1`, store.table)

	_, err := store.pool.Exec(context, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("identity_store_clear_refresh_tokens_failed: %w", err)
	}
	return nil
}

/*
UpdatePassword replaces only the password hash, leaving sessions intact.

Parameters:
  - context: context.Context
  - id: string
  - passwordHash: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) UpdatePassword(context context.Context, id, passwordHash string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1`, store.table)

	_, err := store.pool.Exec(context, query, id, passwordHash, time.Now())
	if err != nil {
		return fmt.Errorf("identity_store_update_password_failed: %w", err)
	}
	return nil
}

/*
ReplacePermissions swaps the principal's capability set wholesale.

Description: Permissions are embedded in tokens at issuance, so the new set
takes effect on the principal's next login or refresh, never retroactively.

Parameters:
  - context: context.Context
  - id: string
  - permissions: []sec.Permission

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) ReplacePermissions(context context.Context, id string, permissions []sec.Permission) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET permissions = $2, updatedat = $3
		WHERE id = $1`, store.table)

	_, err := store.pool.Exec(context, query, id, permissionsToText(permissions), time.Now())
	if err != nil {
		return fmt.Errorf("identity_store_replace_permissions_failed: %w", err)
	}
	return nil
}

/*
SetResetToken stores the hash of an outstanding reset token with its expiry.

Description: Replaces any previous token, so only the most recently requested
reset link works.

Parameters:
  - context: context.Context
  - id: string
  - tokenHash: string (sha256 hex of the raw token)
  - expiresAt: time.Time

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) SetResetToken(context context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET resettokenhash = $2, resettokenexpiresat = $3, updatedat = $4
		WHERE id = $1`, store.table)

	_, err := store.pool.Exec(context, query, id, tokenHash, expiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("identity_store_set_reset_token_failed: %w", err)
	}
	return nil
}

/*
FindByIDAndResetToken retrieves a principal only when the token hash matches
an unexpired outstanding reset token.

Parameters:
  - context: context.Context
  - id: string
  - tokenHash: string

Returns:
  - *Principal: Hydrated account entity, nil when absent, mismatched, or expired
  - error: Execution errors
*/
func (store *PostgresStore) FindByIDAndResetToken(context context.Context, id, tokenHash string) (*Principal, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id = $1 AND resettokenhash = $2 AND resettokenexpiresat > NOW()`,
		principalColumns, store.table)
	return store.findOne(context, query, id, tokenHash)
}

/*
ResetPassword atomically replaces the password hash, clears the reset token
state, and revokes every session.

Description: A single UPDATE keeps the three effects inseparable; a crash can
never leave a consumed reset token alive or an old session surviving the reset.

Parameters:
  - context: context.Context
  - id: string
  - passwordHash: string

Returns:
  - error: Execution errors
*/
func (store *PostgresStore) ResetPassword(context context.Context, id, passwordHash string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET passwordhash = $2,
		    resettokenhash = NULL,
		    resettokenexpiresat = NULL,
		    refreshtokens = '{}',
		    updatedat = $3
		WHERE id = $1`, store.table)

	_, err := store.pool.Exec(context, query, id, passwordHash, time.Now())
	if err != nil {
		return fmt.Errorf("identity_store_reset_password_failed: %w", err)
	}
	return nil
}

// # Helpers

func (store *PostgresStore) findOne(context context.Context, query string, args ...interface{}) (*Principal, error) {
	row := store.pool.QueryRow(context, query, args...)

	principal, err := scanPrincipal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity_store_find_failed: %w", err)
	}

	return principal, nil
}

func scanPrincipal(row pgx.Row) (*Principal, error) {
	principal := &Principal{}
	var permissions []string
	var resetTokenHash *string

	err := row.Scan(
		&principal.ID,
		&principal.Fullname,
		&principal.Email,
		&principal.Username,
		&principal.ProfileImg,
		&principal.PasswordHash,
		&principal.Verified,
		&permissions,
		&principal.RefreshTokens,
		&resetTokenHash,
		&principal.ResetTokenExpiresAt,
		&principal.CreatedAt,
		&principal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	principal.Permissions = permissionsFromText(permissions)
	if resetTokenHash != nil {
		principal.ResetTokenHash = *resetTokenHash
	}

	return principal, nil
}

func permissionsToText(permissions []sec.Permission) []string {
	out := make([]string, len(permissions))
	for i, p := range permissions {
		out[i] = string(p)
	}
	return out
}

func permissionsFromText(raw []string) []sec.Permission {
	out := make([]sec.Permission, len(raw))
	for i, s := range raw {
		out[i] = sec.Permission(s)
	}
	return out
}

// textArray coalesces a nil slice to an empty one. pgx encodes a nil
// []string as SQL NULL, which the NOT NULL array columns reject.
func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
