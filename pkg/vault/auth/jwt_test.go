/*
Package auth provides identity-token helpers for Vault JWT authentication.

This file contains unit tests for JWT token utilities.
*/
package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// createTestJWT creates an HS256 JWT for testing with the given claims.
// The signature is never checked by the code under test.
func createTestJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func TestParseClaims(t *testing.T) {
	token := createTestJWT(t, jwt.MapClaims{
		"sub":                "alice",
		"preferred_username": "alice",
	})

	claims, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims["preferred_username"] != "alice" {
		t.Errorf("preferred_username = %v, want alice", claims["preferred_username"])
	}

	if _, err := ParseClaims("not-a-jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	exp := now.Add(5 * time.Minute)
	iat := now.Add(-10 * time.Minute)

	tests := []struct {
		name     string
		token    func(t *testing.T) string
		expected time.Time
	}{
		{
			name: "exp claim",
			token: func(t *testing.T) string {
				return createTestJWT(t, jwt.MapClaims{"exp": exp.Unix(), "iat": iat.Unix()})
			},
			expected: exp,
		},
		{
			name: "iat fallback",
			token: func(t *testing.T) string {
				return createTestJWT(t, jwt.MapClaims{"iat": iat.Unix()})
			},
			expected: iat.Add(time.Hour),
		},
		{
			name: "no time claims",
			token: func(t *testing.T) string {
				return createTestJWT(t, jwt.MapClaims{"sub": "alice"})
			},
			expected: now.Add(time.Hour),
		},
		{
			name:     "undecodable token",
			token:    func(t *testing.T) string { return "opaque-access-token" },
			expected: now.Add(time.Hour),
		},
		{
			name:     "empty token",
			token:    func(t *testing.T) string { return "" },
			expected: now.Add(time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenExpiry(tt.token(t), now)
			if !got.Equal(tt.expected) {
				t.Errorf("TokenExpiry() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTokenExpiryIgnoresPastExpiry(t *testing.T) {
	// An already expired token still reports its exp so the caller refreshes.
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	token := createTestJWT(t, jwt.MapClaims{"exp": past.Unix()})

	if got := TokenExpiry(token, time.Now()); !got.Equal(past) {
		t.Errorf("TokenExpiry() = %v, want %v", got, past)
	}
}

func TestValidateJWTClaims(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name             string
		claims           jwt.MapClaims
		expectedIssuer   string
		expectedAudience string
		expectError      bool
		errorContains    string
	}{
		{
			name:             "valid token",
			claims:           jwt.MapClaims{"iss": "https://keycloak/realms/buunstack", "aud": "jupyterhub", "exp": future},
			expectedIssuer:   "https://keycloak/realms/buunstack",
			expectedAudience: "jupyterhub",
		},
		{
			name:             "audience array",
			claims:           jwt.MapClaims{"aud": []string{"account", "jupyterhub"}, "exp": future},
			expectedAudience: "jupyterhub",
		},
		{
			name:           "issuer mismatch",
			claims:         jwt.MapClaims{"iss": "https://other"},
			expectedIssuer: "https://keycloak/realms/buunstack",
			expectError:    true,
			errorContains:  "issuer mismatch",
		},
		{
			name:             "audience mismatch",
			claims:           jwt.MapClaims{"aud": "account"},
			expectedAudience: "jupyterhub",
			expectError:      true,
			errorContains:    "audience mismatch",
		},
		{
			name:          "expired",
			claims:        jwt.MapClaims{"exp": past},
			expectError:   true,
			errorContains: "expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJWTClaims(createTestJWT(t, tt.claims), tt.expectedIssuer, tt.expectedAudience)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errorContains)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestReadTokenFile(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		expected    string
		expectError bool
	}{
		{
			name:     "plain token",
			content:  "hvs.CAESIJ",
			expected: "hvs.CAESIJ",
		},
		{
			name:     "token with trailing newline",
			content:  "hvs.CAESIJ\n",
			expected: "hvs.CAESIJ",
		},
		{
			name:        "empty file",
			content:     "  \n",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenPath := filepath.Join(t.TempDir(), "vault-token")
			if err := os.WriteFile(tokenPath, []byte(tt.content), 0600); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			token, err := ReadTokenFile(tokenPath)
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token != tt.expected {
				t.Errorf("got token %q, expected %q", token, tt.expected)
			}
		})
	}
}

func TestReadTokenFile_NotFound(t *testing.T) {
	if _, err := ReadTokenFile("/nonexistent/path/to/token"); err == nil {
		t.Error("expected error for nonexistent file, got none")
	}
}
