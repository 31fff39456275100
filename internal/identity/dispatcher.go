// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ducpham/sentra/internal/platform/apperr"
	"github.com/ducpham/sentra/internal/platform/sec"
)

// # Dispatcher

// Dispatcher routes identity operations to the service owning a principal's
// kind. It keeps the USER and ADMIN populations isolated while letting
// kind-agnostic call sites (token refresh, password reset, the auth
// middleware's existence probe) work against either.
type Dispatcher struct {
	userService  *Service
	adminService *Service
}

// NewDispatcher wires the two per-kind services. Both are mandatory; a
// half-wired dispatcher is a construction-time error, not a runtime 500.
func NewDispatcher(userService, adminService *Service) (*Dispatcher, error) {
	if userService == nil || adminService == nil {
		return nil, fmt.Errorf("identity: dispatcher requires both user and admin services")
	}
	if userService.Kind() != sec.KindUser {
		return nil, fmt.Errorf("identity: user service is bound to kind %q", userService.Kind())
	}
	if adminService.Kind() != sec.KindAdmin {
		return nil, fmt.Errorf("identity: admin service is bound to kind %q", adminService.Kind())
	}

	return &Dispatcher{userService: userService, adminService: adminService}, nil
}

// ForKind returns the service owning the given kind.
//
// The switch is exhaustive over stored kinds; anything else is a programmer
// wiring mistake surfaced as a CONFIGURATION_ERROR, never a client 4xx.
func (dispatcher *Dispatcher) ForKind(kind sec.Kind) (*Service, error) {
	switch kind {
	case sec.KindUser:
		return dispatcher.userService, nil
	case sec.KindAdmin:
		return dispatcher.adminService, nil
	default:
		return nil, apperr.Configuration(fmt.Errorf("identity: no service registered for kind %q", kind))
	}
}

// ExistsByID answers the auth middleware's principal existence probe.
func (dispatcher *Dispatcher) ExistsByID(ctx context.Context, kind sec.Kind, id string) (bool, error) {
	service, err := dispatcher.ForKind(kind)
	if err != nil {
		return false, err
	}
	return service.store.ExistsByID(ctx, id)
}

// FindByEmailAcrossKinds searches both populations for an email address,
// USER first. The password reset entry point is kind-agnostic by design.
func (dispatcher *Dispatcher) FindByEmailAcrossKinds(ctx context.Context, email string) (*Service, *Principal, error) {
	for _, service := range []*Service{dispatcher.userService, dispatcher.adminService} {
		principal, err := service.store.FindByEmail(ctx, email)
		if err != nil {
			return nil, nil, err
		}
		if principal != nil {
			return service, principal, nil
		}
	}
	return nil, nil, nil
}

// # Bootstrap

/*
EnsureSuperadmin seeds the privileged bootstrap account at startup.

Description: Idempotent. When the configured email already exists in the
ADMIN population nothing happens; otherwise an ADMIN principal carrying the
full SUPERADMIN capability set is created. Skipped entirely when either
credential is unconfigured.

Parameters:
  - ctx: context.Context
  - dispatcher: *Dispatcher
  - email, password: Configured bootstrap credentials
  - logger: Structured logger for seed events

Returns:
  - error: Storage errors
*/
func EnsureSuperadmin(ctx context.Context, dispatcher *Dispatcher, email, password string, logger *slog.Logger) error {
	if email == "" || password == "" {
		logger.Info("superadmin_seed_skipped_unconfigured")
		return nil
	}

	adminService := dispatcher.adminService

	exists, err := adminService.store.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("identity_superadmin_probe_failed: %w", err)
	}
	if exists {
		return nil
	}

	principal, _, err := adminService.Register(ctx, RegisterInput{
		Fullname: "Superadmin",
		Email:    email,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("identity_superadmin_seed_failed: %w", err)
	}

	// Registration grants ADMIN defaults; widen to the full capability set.
	update := sec.DefaultPermissions(sec.KindSuperadmin)
	if err := adminService.store.ReplacePermissions(ctx, principal.ID, update); err != nil {
		return fmt.Errorf("identity_superadmin_grant_failed: %w", err)
	}

	// The bootstrap session opened by Register is not handed to anyone.
	if err := adminService.store.ClearRefreshTokens(ctx, principal.ID); err != nil {
		logger.Warn("superadmin_seed_session_cleanup_failed", slog.Any("error", err))
	}

	logger.Info("superadmin_seeded", slog.String("principal_id", principal.ID))
	return nil
}
