// Copyright (c) 2026 Sentra. All rights reserved.
// Author: duc.phamminh.vn@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing, the
// Permission Engine) from the domain logic. It acts as an Infrastructure
// service injected into the Application layer via small interfaces.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ducpham/sentra/internal/platform/apperr"
	"github.com/ducpham/sentra/pkg/uuid"
)

// Claims represents the payload embedded inside both token classes.
//
// # Why custom claims?
//
// By embedding the principal ID, Kind, and Permissions directly inside the
// JWT, middleware can reconstruct the active identity context WITHOUT
// querying the database on every single API request.
type Claims struct {
	jwt.RegisteredClaims

	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// TokenPair is the result of a single issuance: one short-lived access token
// and one long-lived refresh token, signed with independent secrets.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenCodec signs and verifies access and refresh tokens using HS256.
//
// # Secret Separation
//
// Access and refresh tokens are signed with distinct secrets as deliberate
// defense-in-depth: compromise of one secret does not forge the other token
// class.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenCodec creates a TokenCodec with the two signing secrets and the
// per-class expirations.
func NewTokenCodec(accessSecret, refreshSecret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("sec: token secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("sec: access and refresh secrets must differ")
	}

	return &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// Issue produces a signed access/refresh pair for the given identity.
//
// Both payloads carry {id, kind, permissions, exp}; only the expiry and the
// signing secret differ between the two classes.
func (codec *TokenCodec) Issue(id string, kind Kind, permissions []Permission) (TokenPair, error) {
	currentTime := time.Now()

	accessToken, err := codec.sign(id, kind, permissions, currentTime.Add(codec.accessTTL), codec.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sec: failed to sign access token: %w", err)
	}

	refreshToken, err := codec.sign(id, kind, permissions, currentTime.Add(codec.refreshTTL), codec.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sec: failed to sign refresh token: %w", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess checks the signature and validity of an access token.
//
// Expiry is distinguished from invalidity (TOKEN_EXPIRED vs INVALID_TOKEN)
// so clients know whether a silent refresh is worth attempting.
func (codec *TokenCodec) VerifyAccess(tokenString string) (*Claims, error) {
	return codec.verify(tokenString, codec.accessSecret)
}

// VerifyRefresh checks the signature and validity of a refresh token.
func (codec *TokenCodec) VerifyRefresh(tokenString string) (*Claims, error) {
	return codec.verify(tokenString, codec.refreshSecret)
}

func (codec *TokenCodec) sign(id string, kind Kind, permissions []Permission, expiresAt time.Time, secret []byte) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			Issuer:    codec.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			// Timestamps have second precision; the jti keeps two tokens
			// issued within the same second distinct, which set-based
			// session storage depends on.
			ID: uuid.Must(),
		},
		ID:          id,
		Kind:        kind,
		Permissions: permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (codec *TokenCodec) verify(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthorized("Token expired").WithCode(apperr.CodeTokenExpired)
		}
		return nil, apperr.Unauthorized("Invalid token").WithCode(apperr.CodeInvalidToken)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperr.Unauthorized("Invalid token").WithCode(apperr.CodeInvalidToken)
	}

	if _, err := ParseKind(string(claims.Kind)); err != nil {
		return nil, apperr.Unauthorized("Invalid token").WithCode(apperr.CodeInvalidToken)
	}

	return claims, nil
}
