// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ducpham/sentra/internal/platform/apperr"
	"github.com/ducpham/sentra/internal/platform/constants"
	"github.com/ducpham/sentra/internal/platform/ctxutil"
	"github.com/ducpham/sentra/internal/platform/respond"
	"github.com/ducpham/sentra/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify access tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the codec
// implementation, allowing us to easily inject mocks during unit testing.
type TokenVerifier interface {
	VerifyAccess(tokenStr string) (*sec.Claims, error)
}

// PrincipalChecker probes whether the identity named by a token still exists.
//
// A deleted account must not keep authenticating for the remainder of its
// access token's lifetime.
type PrincipalChecker interface {
	ExistsByID(ctx context.Context, kind sec.Kind, id string) (bool, error)
}

// Authenticate extracts and verifies the access token from the request.
//
// # Flow
//  1. Look for the access-token cookie; fall back to 'Authorization: Bearer'.
//  2. If absent, request proceeds as anonymous.
//  3. Verify the token via [TokenVerifier] — expiry and invalidity map to
//     distinct machine codes so clients know whether to attempt a refresh.
//  4. Probe the store: the principal behind the claims must still exist.
//  5. Inject [*sec.Claims] into the request context for downstream use.
func Authenticate(verifier TokenVerifier, checker PrincipalChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// ── 1. Credential Extraction ──────────────────────────────────────
			tokenStr := accessTokenFromRequest(request)
			if tokenStr == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Token Verification ─────────────────────────────────────────
			claims, err := verifier.VerifyAccess(tokenStr)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			// ── 3. Existence Probe ────────────────────────────────────────────
			exists, err := checker.ExistsByID(request.Context(), claims.Kind, claims.ID)
			if err != nil {
				respond.Error(writer, request, apperr.Internal(err))
				return
			}
			if !exists {
				respond.Error(writer, request,
					apperr.Forbidden("Forbidden").WithCode(apperr.CodeUserNotFound))
				return
			}

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithPrincipal(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := ctxutil.GetPrincipal(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequirePermission blocks requests unless the authenticated principal holds
// at least one of the required permissions (logical OR), or belongs to the
// privileged kind.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It implies
// [RequireAuth]. Ownership of self-scoped permissions is enforced later in
// handlers via [sec.Authorize] once the target ID is known.
func RequirePermission(required ...sec.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetPrincipal(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			if !sec.HasAny(claims.Kind, claims.Permissions, required...) {
				respond.Error(writer, request,
					apperr.Forbidden("Insufficient permission to access this resource"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// RequireKind blocks requests unless the principal is of the given kind.
func RequireKind(kind sec.Kind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetPrincipal(request.Context())
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}
			if claims.Kind != kind {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

// accessTokenFromRequest prefers the http-only cookie and falls back to the
// Authorization header for non-browser clients.
func accessTokenFromRequest(request *http.Request) string {
	if cookie, err := request.Cookie(constants.AccessTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := request.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
