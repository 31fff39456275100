// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ducpham/sentra/internal/platform/middleware"
	requestutil "github.com/ducpham/sentra/internal/platform/request"
	"github.com/ducpham/sentra/internal/platform/respond"
	"github.com/ducpham/sentra/internal/platform/sec"
	"github.com/ducpham/sentra/internal/platform/validate"
)

// ProfileRoutes returns the profile router for one population.
//
// # Endpoints
//   - GET    /{id}             : Public profile (cache read-through).
//   - PATCH  /{id}             : Partial profile update.
//   - DELETE /{id}             : Account deletion.
//   - PATCH  /reset-password   : Self password change (proof of old password).
//   - PUT    /{id}/permissions : Capability replacement (ADMIN surface only).
//
// Every route is double-gated: RequirePermission filters at the router by
// held capabilities, then the handler's [sec.Authorize] call settles
// ownership for self-scoped permissions against the concrete target ID.
func (handler *Handler) ProfileRoutes(kind sec.Kind) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)

	readPerms, updatePerms, deletePerms := profilePermissions(kind)

	router.With(middleware.RequirePermission(readPerms...)).
		Get("/{id}", handler.profile(kind, readPerms))
	router.With(middleware.RequirePermission(updatePerms...)).
		Patch("/{id}", handler.updateProfile(kind, updatePerms))
	router.With(middleware.RequirePermission(deletePerms...)).
		Delete("/{id}", handler.deleteProfile(kind, deletePerms))
	router.With(middleware.RequirePermission(sec.PermSelfUpdate)).
		Patch("/reset-password", handler.changePassword(kind))

	if kind == sec.KindAdmin {
		router.With(middleware.RequirePermission(sec.PermAdminManage)).
			Put("/{id}/permissions", handler.replacePermissions)
	}

	return router
}

// profilePermissions maps a population to the capability sets guarding its
// read, update, and delete surfaces.
func profilePermissions(kind sec.Kind) (read, update, remove []sec.Permission) {
	if kind == sec.KindAdmin {
		read = []sec.Permission{sec.PermSelfRead, sec.PermAdminRead}
		update = []sec.Permission{sec.PermSelfUpdate, sec.PermAdminManage}
		remove = []sec.Permission{sec.PermAdminManage}
		return
	}

	read = []sec.Permission{sec.PermSelfRead, sec.PermUserRead}
	update = []sec.Permission{sec.PermSelfUpdate, sec.PermUserUpdate}
	remove = []sec.Permission{sec.PermSelfDelete, sec.PermUserDelete}
	return
}

// # Profile Endpoints

/*
Profile returns the public projection of a principal.

GET /user/{id}, GET /admin/{id}

Response:
  - 200: PublicProfile
  - 403: ErrForbidden: Actor lacks a matching permission for this target
  - 404: USER_NOT_FOUND
*/
func (handler *Handler) profile(kind sec.Kind, required []sec.Permission) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		targetID := requestutil.Param(request, "id")

		if err := handler.authorize(request, targetID, required); err != nil {
			respond.Error(writer, request, err)
			return
		}

		service, err := handler.dispatcher.ForKind(kind)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		profile, err := service.Profile(request.Context(), targetID)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		respond.OK(writer, "Profile retrieved successfully", profile)
	}
}

/*
UpdateProfile applies a partial profile update.

PATCH /user/{id}, PATCH /admin/{id}

Request:
  - Body: ProfileUpdate (fullname, username, profileImg; all optional)

Response:
  - 200: PublicProfile: Profile after the update
  - 400: ErrInvalidJSON: Bad input or empty update
  - 403: ErrForbidden
  - 409: ErrConflict: Username already taken
*/
func (handler *Handler) updateProfile(kind sec.Kind, required []sec.Permission) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		targetID := requestutil.Param(request, "id")

		if err := handler.authorize(request, targetID, required); err != nil {
			respond.Error(writer, request, err)
			return
		}

		var update ProfileUpdate
		if err := requestutil.DecodeJSON(request, &update); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}

		validator := &validate.Validator{}
		if update.Fullname != nil {
			validator.Required(FieldFullname, *update.Fullname).
				MaxLen(FieldFullname, *update.Fullname, 100)
		}
		if update.Username != nil {
			validator.Required(FieldUsername, *update.Username).
				MinLen(FieldUsername, *update.Username, 3).
				MaxLen(FieldUsername, *update.Username, 50)
		}
		if err := validator.Err(); err != nil {
			respond.Error(writer, request, err)
			return
		}

		service, err := handler.dispatcher.ForKind(kind)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		profile, err := service.UpdateProfile(request.Context(), targetID, update)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		respond.OK(writer, "Profile updated successfully", profile)
	}
}

/*
DeleteProfile removes an account.

DELETE /user/{id}, DELETE /admin/{id}

Description: Deletion also clears every session and cache entry. The cookies
are cleared when the actor deletes their own account.

Response:
  - 200: Success: Account deleted
  - 403: ErrForbidden
  - 404: USER_NOT_FOUND
*/
func (handler *Handler) deleteProfile(kind sec.Kind, required []sec.Permission) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		targetID := requestutil.Param(request, "id")

		if err := handler.authorize(request, targetID, required); err != nil {
			respond.Error(writer, request, err)
			return
		}

		service, err := handler.dispatcher.ForKind(kind)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		if err := service.Delete(request.Context(), targetID); err != nil {
			respond.Error(writer, request, err)
			return
		}

		if claims := requestutil.Claims(request); claims != nil && claims.ID == targetID {
			handler.clearSessionCookies(writer)
		}

		respond.OK(writer, "Account deleted successfully", nil)
	}
}

// # Credential Endpoints

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

/*
ChangePassword updates the password of the authenticated principal.

PATCH /user/reset-password, PATCH /admin/reset-password

Description: Self-scoped; the target is always the caller. Requires proof of
the current password. Existing sessions stay alive; only the reset-by-token
flow revokes them.

Request:
  - Body: changePasswordRequest (OldPassword, NewPassword)

Response:
  - 200: Success: Password updated
  - 400: INCORRECT_CREDENTIALS: Old password wrong, or weak new password
*/
func (handler *Handler) changePassword(kind sec.Kind) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		claims, err := requestutil.RequiredClaims(request)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		var input changePasswordRequest
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, validate.ErrInvalidJSON)
			return
		}

		validator := &validate.Validator{}
		validator.Required(FieldOldPassword, input.OldPassword).
			Required(FieldNewPassword, input.NewPassword).
			Password(FieldNewPassword, input.NewPassword)

		if err := validator.Err(); err != nil {
			respond.Error(writer, request, err)
			return
		}

		service, err := handler.dispatcher.ForKind(kind)
		if err != nil {
			respond.Error(writer, request, err)
			return
		}

		if err := service.UpdatePassword(request.Context(), claims.ID, input.OldPassword, input.NewPassword); err != nil {
			respond.Error(writer, request, err)
			return
		}

		respond.OK(writer, "Password updated successfully", nil)
	}
}

type replacePermissionsRequest struct {
	Permissions []sec.Permission `json:"permissions"`
}

/*
ReplacePermissions swaps an admin's capability set wholesale.

PUT /admin/{id}/permissions

Description: ADMIN_MANAGE surface. The new set takes effect on the target's
next token issuance; outstanding access tokens keep their embedded set until
they expire.

Request:
  - Body: replacePermissionsRequest (Permissions)

Response:
  - 200: Success: Permissions replaced
  - 400: ErrInvalidJSON: Empty or malformed set
  - 403: ErrForbidden
*/
func (handler *Handler) replacePermissions(writer http.ResponseWriter, request *http.Request) {
	targetID := requestutil.Param(request, "id")

	var input replacePermissionsRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Custom("permissions", len(input.Permissions) == 0, "must not be empty")
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	service, err := handler.dispatcher.ForKind(sec.KindAdmin)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := service.store.ReplacePermissions(request.Context(), targetID, input.Permissions); err != nil {
		respond.Error(writer, request, err)
		return
	}

	service.evictProfile(request.Context(), targetID)
	respond.OK(writer, "Permissions updated successfully", nil)
}

// authorize settles ownership for the concrete target after the router's
// capability gate has already passed.
func (handler *Handler) authorize(request *http.Request, targetID string, required []sec.Permission) error {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		return err
	}
	return sec.Authorize(claims, targetID, required...)
}
