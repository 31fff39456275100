// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package identity

import "time"

const (
	// ResetTokenTTL bounds the window during which a password reset link works.
	ResetTokenTTL = 10 * time.Minute

	// ResetTokenLength is the entropy (in bytes) of a raw reset token.
	ResetTokenLength = 32

	// VerificationTokenLength is the entropy (in bytes) of an email
	// verification token.
	VerificationTokenLength = 32

	// usernameProbeLimit caps the numeric-suffix search before falling back
	// to a random suffix.
	usernameProbeLimit = 100
)
