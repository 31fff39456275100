// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

// Package uuid generates time-ordered identifiers.
//
// UUIDv7 embeds a millisecond timestamp in the high bits, which keeps
// B-tree indexes append-mostly and makes identifiers roughly sortable
// by creation time.
package uuid

import "github.com/google/uuid"

// New returns a new UUIDv7 string, or an error if entropy is unavailable.
func New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Must returns a new UUIDv7 string and panics on failure. Intended for
// contexts where entropy exhaustion is fatal anyway (startup, tests).
func Must() string {
	return uuid.Must(uuid.NewV7()).String()
}
