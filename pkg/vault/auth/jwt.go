/*
Package auth provides identity-token helpers for Vault JWT authentication.

This file provides JWT claim utilities used to decide when an access token
must be refreshed.
*/
package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLifetime is assumed when a token does not carry an exp claim.
const DefaultTokenLifetime = 1 * time.Hour

// ParseClaims extracts claims from a JWT without verifying its signature.
// Vault performs the actual verification on login.
func ParseClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse JWT claims: %w", err)
	}
	return claims, nil
}

// TokenExpiry returns when token expires. It uses the exp claim, falls back
// to iat plus DefaultTokenLifetime, and finally to now plus
// DefaultTokenLifetime when neither claim is usable.
func TokenExpiry(token string, now time.Time) time.Time {
	fallback := now.Add(DefaultTokenLifetime)
	if token == "" {
		return fallback
	}

	claims, err := ParseClaims(token)
	if err != nil {
		return fallback
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		return exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		return iat.Add(DefaultTokenLifetime)
	}
	return fallback
}

// ValidateJWTClaims performs basic validation of JWT claims.
// This is a pre-flight check before sending to Vault.
func ValidateJWTClaims(token string, expectedIssuer string, expectedAudience string) error {
	claims, err := ParseClaims(token)
	if err != nil {
		return err
	}

	if expectedIssuer != "" {
		if iss, err := claims.GetIssuer(); err == nil && iss != "" && iss != expectedIssuer {
			return fmt.Errorf("JWT issuer mismatch: got %q, expected %q", iss, expectedIssuer)
		}
	}

	if expectedAudience != "" {
		aud, err := claims.GetAudience()
		if err != nil {
			return fmt.Errorf("failed to read JWT audience: %w", err)
		}
		audMatch := false
		for _, a := range aud {
			if a == expectedAudience {
				audMatch = true
				break
			}
		}
		if !audMatch {
			return fmt.Errorf("JWT audience mismatch: expected %q", expectedAudience)
		}
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && time.Now().After(exp.Time) {
		return fmt.Errorf("JWT has expired")
	}

	return nil
}

// ReadTokenFile reads a token from a file path and trims surrounding
// whitespace. An empty file is an error.
func ReadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token from file %s: %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}
