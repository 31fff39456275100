// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

package mailq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
TestBuildMessage_Templates verifies both mail classes render with the
recipient, the link, and a sensible subject.
*/
func TestBuildMessage_Templates(t *testing.T) {
	verify, err := BuildMessage(Job{
		Type:     JobVerifyEmail,
		Email:    "jane.doe@example.com",
		Username: "jane.doe",
		Link:     "http://localhost:8080/verify-email?token=abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", verify.To)
	assert.Contains(t, verify.Subject, "Verify")
	assert.Contains(t, verify.Body, "jane.doe")
	assert.Contains(t, verify.Body, "verify-email?token=abc")

	reset, err := BuildMessage(Job{
		Type:     JobForgotPassword,
		Email:    "jane.doe@example.com",
		Username: "jane.doe",
		Link:     "http://localhost:8080/reset-password?token=def",
	})
	require.NoError(t, err)
	assert.Contains(t, reset.Subject, "Reset")
	assert.Contains(t, reset.Body, "10 minutes")
	assert.Contains(t, reset.Body, "reset-password?token=def")
}

/*
TestBuildMessage_UnknownType verifies that an unrecognized job type is a
hard error rather than a silently empty mail.
*/
func TestBuildMessage_UnknownType(t *testing.T) {
	_, err := BuildMessage(Job{Type: "newsletter"})
	assert.Error(t, err)
}
