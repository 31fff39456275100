// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ducpham/sentra/internal/platform/apperr"
	"github.com/ducpham/sentra/internal/platform/constants"
	"github.com/ducpham/sentra/internal/platform/middleware"
	requestutil "github.com/ducpham/sentra/internal/platform/request"
	"github.com/ducpham/sentra/internal/platform/respond"
	"github.com/ducpham/sentra/internal/platform/sec"
	"github.com/ducpham/sentra/internal/platform/validate"
)

// # Definitions & Constructors

// JSON field names used in validation errors.
const (
	FieldFullname    = "fullname"
	FieldUsername    = "username"
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldOldPassword = "oldPassword"
	FieldNewPassword = "newPassword"
	FieldToken       = "token"
	FieldID          = "id"
)

// HandlerConfig carries the transport-level knobs the handler needs.
type HandlerConfig struct {
	// Production switches cookies to SameSite=None; Secure for cross-site
	// frontend deployments.
	Production bool

	// PublicBaseURL is the fallback origin for links in outbound email when
	// the request carries no forwarding headers.
	PublicBaseURL string

	// ExposeResetLink echoes the password reset link in the API response.
	// Development convenience only; must stay off in production.
	ExposeResetLink bool
}

// Handler implements the identity HTTP endpoints for both populations.
//
// # Scope
//
// This handler manages the account lifecycle entry points (registration,
// login, session rotation, password recovery) and the profile surface. It is
// strictly a transport layer; every decision of substance lives in [Service].
type Handler struct {
	dispatcher *Dispatcher
	tokens     TokenProvider
	config     HandlerConfig
}

// NewHandler constructs a new [Handler] with its dependencies.
func NewHandler(dispatcher *Dispatcher, tokens TokenProvider, config HandlerConfig) *Handler {
	return &Handler{dispatcher: dispatcher, tokens: tokens, config: config}
}

// AuthRoutes returns the authentication router for one population.
//
// # Endpoints
//   - POST /signup : Creates a new account (ADMIN signup requires an ADMIN session).
//   - POST /login  : Authenticates and injects session cookies.
//   - POST /logout : Revokes the presented session and clears cookies.
func (handler *Handler) AuthRoutes(kind sec.Kind) chi.Router {
	router := chi.NewRouter()

	if kind == sec.KindAdmin {
		// Admins are enrolled by other admins, never self-service.
		router.With(middleware.RequireAuth, middleware.RequireKind(sec.KindAdmin)).
			Post("/signup", handler.signup(kind))
	} else {
		router.Post("/signup", handler.signup(kind))
	}

	router.Post("/login", handler.login(kind))
	router.Post("/logout", handler.logout(kind))

	return router
}

// # Request Payloads

type signupRequest struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// # Session Endpoints

/*
Signup handles the creation of a new account.

POST /auth/signup (USER), POST /admin/auth/signup (ADMIN)

Description: Validates input, enrolls the principal with a derived username
and the population's default permissions, and opens the first session by
injecting both token cookies.

Request:
  - Body: signupRequest (Fullname, Email, Password)

Response:
  - 201: PublicProfile: Created profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Email already registered
*/
func (handler *Handler) signup(kind sec.Kind) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var input signupRequest

		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}

		validator := &validate.Validator{}
		validator.Required(FieldFullname, input.Fullname).
			MaxLen(FieldFullname, input.Fullname, 100).
			Required(FieldEmail, input.Email).
			Email(FieldEmail, input.Email).
			Required(FieldPassword, input.Password).
			Password(FieldPassword, input.Password)

		if err := validator.Err(); err != nil {
			respond.Error(writer, request, err)
			return
		}

		service, err := handler.dispatcher.ForKind(kind)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		principal, pair, err := service.Register(request.Context(), RegisterInput{
			Fullname:       input.Fullname,
			Email:          input.Email,
			Password:       input.Password,
			VerifyLinkBase: handler.linkBase(request),
		})
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		handler.setSessionCookies(writer, pair)
		respond.Created(writer, "Account created successfully", principal.Public(kind))
	}
}

/*
Login authenticates a principal and opens a session.

POST /auth/login (USER), POST /admin/auth/login (ADMIN)

Description: Verifies credentials and injects both token cookies. A request
that already carries a refresh cookie is rejected; the client must log out
first.

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: PublicProfile: Authenticated profile
  - 401: INVALID_CREDENTIALS: Unknown email or wrong password (identical)
  - 409: ErrConflict: A session cookie is already present
*/
func (handler *Handler) login(kind sec.Kind) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if cookie, err := request.Cookie(constants.RefreshTokenCookieName); err == nil && cookie.Value != "" {
			respond.Error(writer, request, apperr.Conflict("Already logged in"))
			return
		}

		var input loginRequest

		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}

		validator := &validate.Validator{}
		validator.Required(FieldEmail, input.Email).
			Email(FieldEmail, input.Email).
			Required(FieldPassword, input.Password)

		if err := validator.Err(); err != nil {
			respond.Error(writer, request, err)
			return
		}

		service, err := handler.dispatcher.ForKind(kind)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		principal, pair, err := service.Login(request.Context(), LoginInput{
			Email:    input.Email,
			Password: input.Password,
		})
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		handler.setSessionCookies(writer, pair)
		respond.OK(writer, "Logged in successfully", principal.Public(kind))
	}
}

/*
Logout terminates the presented session.

POST /auth/logout (USER), POST /admin/auth/logout (ADMIN)

Description: Best-effort revocation of the refresh cookie's session followed
by unconditional cookie clearing. Always answers 200, even for anonymous
callers; logout must never fail from the client's perspective.

Response:
  - 200: Success: Session terminated
*/
func (handler *Handler) logout(kind sec.Kind) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		cookie, err := request.Cookie(constants.RefreshTokenCookieName)

		if err == nil && cookie.Value != "" {
			if claims, verifyErr := handler.tokens.VerifyRefresh(cookie.Value); verifyErr == nil {
				if service, svcErr := handler.dispatcher.ForKind(claims.Kind); svcErr == nil {
					_ = service.Logout(request.Context(), claims.ID, cookie.Value)
				}
			}
		}

		handler.clearSessionCookies(writer)
		respond.OK(writer, "Logged out successfully", nil)
	}
}

/*
Refresh rotates the session from the refresh cookie.

POST /refresh

Description: Kind-agnostic. The verified refresh claims carry the principal's
kind, which routes the rotation to the owning service. The presented token is
consumed; replacement cookies are injected.

Response:
  - 200: Success: New session cookies injected
  - 401: INVALID_REFRESH: Missing, invalid, expired, or already-used token
*/
func (handler *Handler) Refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies").
			WithCode(apperr.CodeInvalidRefresh))
		return
	}

	claims, err := handler.tokens.VerifyRefresh(cookie.Value)
	if err != nil {
		handler.clearSessionCookies(writer)
		respond.Error(writer, request, apperr.Unauthorized("Invalid or expired refresh token").
			WithCode(apperr.CodeInvalidRefresh))
		return
	}

	service, err := handler.dispatcher.ForKind(claims.Kind)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	_, pair, err := service.Refresh(request.Context(), cookie.Value)
	if err != nil {
		handler.clearSessionCookies(writer)
		respond.Error(writer, request, err)
		return
	}

	handler.setSessionCookies(writer, pair)
	respond.OK(writer, "Session refreshed successfully", nil)
}

// # Cookie Policy

// setSessionCookies injects both token cookies.
//
// Production uses SameSite=None with Secure so the cookies survive the
// cross-site hop from the frontend origin; everywhere else Strict keeps
// local development honest without TLS.
func (handler *Handler) setSessionCookies(writer http.ResponseWriter, pair sec.TokenPair) {
	sameSite := http.SameSiteStrictMode
	if handler.config.Production {
		sameSite = http.SameSiteNoneMode
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.AccessTokenCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(constants.AccessTokenTTL / time.Second),
		Secure:   handler.config.Production,
		HttpOnly: true,
		SameSite: sameSite,
	})

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(constants.RefreshTokenTTL / time.Second),
		Secure:   handler.config.Production,
		HttpOnly: true,
		SameSite: sameSite,
	})
}

// clearSessionCookies expires both token cookies on the client.
func (handler *Handler) clearSessionCookies(writer http.ResponseWriter) {
	sameSite := http.SameSiteStrictMode
	if handler.config.Production {
		sameSite = http.SameSiteNoneMode
	}

	for _, name := range []string{constants.AccessTokenCookieName, constants.RefreshTokenCookieName} {
		http.SetCookie(writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   handler.config.Production,
			HttpOnly: true,
			SameSite: sameSite,
		})
	}
}

// linkBase resolves the origin for links embedded in outbound email.
//
// Behind a proxy the forwarded proto and host name the real public origin;
// the configured base URL is the fallback for direct traffic.
func (handler *Handler) linkBase(request *http.Request) string {
	proto := request.Header.Get(constants.HeaderXForwardedProto)
	if proto != "" && request.Host != "" {
		return proto + "://" + request.Host
	}
	return handler.config.PublicBaseURL
}
