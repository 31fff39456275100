// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ducpham/sentra/internal/platform/ctxutil"
	requestutil "github.com/ducpham/sentra/internal/platform/request"
	"github.com/ducpham/sentra/internal/platform/respond"
	"github.com/ducpham/sentra/internal/platform/validate"
)

// PasswordRoutes returns the public password recovery router.
//
// # Endpoints
//   - POST /forgot : Starts the reset flow for an email address.
//   - POST /reset  : Completes the flow with a token from the email.
//
// Both endpoints are anonymous by design; the caller is the person locked
// out of their account.
func (handler *Handler) PasswordRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/forgot", handler.forgotPassword)
	router.Post("/reset", handler.resetPassword)

	return router
}

// # Request Payloads

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	ID          string `json:"id"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// # Recovery Endpoints

/*
ForgotPassword starts the reset flow for an email address.

POST /password/forgot

Description: Searches both populations for the email. Whether or not a match
exists, the response is the SAME generic 200, so the endpoint cannot confirm
account existence. On a match a single-use token (10 minute expiry, sha256
stored) is issued and the reset email is scheduled; queue trouble is logged,
never surfaced.

Request:
  - Body: forgotPasswordRequest (Email)

Response:
  - 200: Success: Generic acknowledgement (plus resetLink in development
    when the expose flag is on)
  - 400: ErrInvalidJSON: Missing or malformed email
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	const acknowledgement = "If the email is registered, a reset link has been sent"

	service, principal, err := handler.dispatcher.FindByEmailAcrossKinds(request.Context(), input.Email)
	if err != nil {
		// Storage trouble also hides behind the generic acknowledgement; a
		// 500 here would leak that the lookup reached a real account path.
		ctxutil.GetLogger(request.Context()).Error("forgot_password_lookup_failed", "error", err)
		respond.OK(writer, acknowledgement, nil)
		return
	}
	if principal == nil {
		respond.OK(writer, acknowledgement, nil)
		return
	}

	rawToken, _, err := service.InitPasswordReset(request.Context(), input.Email, handler.linkBase(request))
	if err != nil {
		ctxutil.GetLogger(request.Context()).Error("forgot_password_init_failed", "error", err)
		respond.OK(writer, acknowledgement, nil)
		return
	}

	if handler.config.ExposeResetLink {
		link := handler.linkBase(request) + "/reset-password?token=" + rawToken + "&id=" + principal.ID
		respond.OK(writer, acknowledgement, map[string]string{"resetLink": link})
		return
	}

	respond.OK(writer, acknowledgement, nil)
}

/*
ResetPassword completes the recovery flow.

POST /password/reset

Description: Kind-agnostic; the token was issued against a concrete principal
and both populations are consulted through the dispatcher. On success the
password is replaced, the token is consumed, and every session is revoked.

Request:
  - Body: resetPasswordRequest (ID, Token, NewPassword)

Response:
  - 200: Success: Password reset, all sessions revoked
  - 400: INVALID_TOKEN: Unknown, mismatched, expired, or already-used token
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldID, input.ID).
		UUID(FieldID, input.ID).
		Required(FieldToken, input.Token).
		Required(FieldNewPassword, input.NewPassword).
		Password(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// The token binds to exactly one principal; try USER first, then ADMIN.
	var lastErr error
	for _, service := range []*Service{handler.dispatcher.userService, handler.dispatcher.adminService} {
		if err := service.ResetPasswordByToken(request.Context(), input.ID, input.Token, input.NewPassword); err != nil {
			lastErr = err
			continue
		}

		handler.clearSessionCookies(writer)
		respond.OK(writer, "Password has been reset successfully", nil)
		return
	}

	respond.Error(writer, request, lastErr)
}
