/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package token

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/shared/events"
)

// Default values for credential lifecycle management.
const (
	// DefaultRefreshBuffer is how long before expiry an access token is
	// considered stale.
	DefaultRefreshBuffer = 300 * time.Second

	// DefaultRenewalThreshold is the remaining TTL under which a provisioned
	// token is renewed.
	DefaultRenewalThreshold = 600 * time.Second

	// DefaultBackgroundInterval is the period of the background refresher.
	DefaultBackgroundInterval = 30 * time.Minute

	// DefaultStopTimeout bounds how long Stop waits for the refresher loop.
	DefaultStopTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds every identity provider call.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultClientID is the OAuth2 client the session tokens were issued to.
	DefaultClientID = "jupyterhub"

	// DefaultProvisionedTTL is the TTL the spawner gives notebook tokens.
	DefaultProvisionedTTL = 24 * time.Hour

	// DefaultProvisionedMaxTTL is the lifetime ceiling of notebook tokens.
	DefaultProvisionedMaxTTL = 168 * time.Hour

	// DefaultTokenFilePath is where an injected Vault token is mounted.
	DefaultTokenFilePath = "/vault/secrets/vault-token"
)

// Mode selects how a session obtains its Vault token.
type Mode string

const (
	// ModeRefresh exchanges an identity-provider JWT for a Vault token and
	// refreshes the JWT with its refresh token.
	ModeRefresh Mode = "refresh"

	// ModeProvisioned uses a Vault token minted by the spawner.
	ModeProvisioned Mode = "provisioned"
)

// ParseMode converts a configuration string to a Mode. Empty means
// ModeRefresh.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRefresh:
		return ModeRefresh, nil
	case ModeProvisioned:
		return ModeProvisioned, nil
	default:
		return "", fmt.Errorf("unknown token mode %q: must be %q or %q", s, ModeRefresh, ModeProvisioned)
	}
}

// Credential is the identity-provider token set held by a session.
// A Credential is replaced as a whole on refresh, never patched.
type Credential struct {
	// AccessToken is the JWT presented to Vault.
	AccessToken string

	// Expiry is when AccessToken expires. Zero means unknown.
	Expiry time.Time

	// RefreshToken is used to obtain a new AccessToken. Empty if absent.
	RefreshToken string
}

// HasRefreshToken reports whether the credential can be refreshed.
func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// RefreshConfig configures a RefreshManager.
type RefreshConfig struct {
	// AccessToken and RefreshToken seed the initial Credential.
	AccessToken  string
	RefreshToken string

	// AutoRefresh enables refreshing. When false the access token is used
	// until Vault rejects it.
	AutoRefresh bool

	// RefreshBuffer is how long before expiry a token counts as stale.
	RefreshBuffer time.Duration

	// TokenURL is the identity provider token endpoint. When empty it is
	// derived from Issuer (discovery) or KeycloakHost and KeycloakRealm.
	TokenURL string

	// KeycloakHost and KeycloakRealm locate a Keycloak realm.
	KeycloakHost  string
	KeycloakRealm string

	// Issuer is the OIDC issuer used for endpoint discovery. Defaults to the
	// Keycloak realm URL.
	Issuer string

	// DiscoverEndpoint resolves the token endpoint from the issuer's
	// openid-configuration document instead of the Keycloak path layout.
	DiscoverEndpoint bool

	// ClientID is sent with the refresh grant.
	ClientID string

	// VaultRole and VaultMount select the Vault JWT auth role and mount.
	VaultRole  string
	VaultMount string

	// ExportEnvironment writes refreshed tokens back to the process
	// environment so child processes see them.
	ExportEnvironment bool

	// HTTPClient is used for identity provider calls.
	HTTPClient *http.Client

	// RequestTimeout bounds each identity provider call.
	RequestTimeout time.Duration

	// Identity labels events and logs.
	Identity events.SessionInfo
}

// WithDefaults returns a copy of the config with default values applied.
func (c *RefreshConfig) WithDefaults() *RefreshConfig {
	result := *c
	if result.RefreshBuffer == 0 {
		result.RefreshBuffer = DefaultRefreshBuffer
	}
	if result.ClientID == "" {
		result.ClientID = DefaultClientID
	}
	if result.VaultRole == "" {
		result.VaultRole = vault.DefaultJWTRole
	}
	if result.VaultMount == "" {
		result.VaultMount = vault.DefaultJWTMount
	}
	if result.RequestTimeout == 0 {
		result.RequestTimeout = DefaultRequestTimeout
	}
	if result.HTTPClient == nil {
		result.HTTPClient = &http.Client{Timeout: result.RequestTimeout}
	}
	if result.Issuer == "" && result.KeycloakHost != "" && result.KeycloakRealm != "" {
		result.Issuer = fmt.Sprintf("%s/realms/%s", hostURL(result.KeycloakHost), result.KeycloakRealm)
	}
	result.Identity.Mode = string(ModeRefresh)
	return &result
}

// IdentityProviderConfigured reports whether a token endpoint can be
// determined.
func (c *RefreshConfig) IdentityProviderConfigured() bool {
	if c.TokenURL != "" {
		return true
	}
	if c.DiscoverEndpoint && c.Issuer != "" {
		return true
	}
	return c.KeycloakHost != "" && c.KeycloakRealm != ""
}

// KeycloakTokenURL returns the token endpoint of the configured Keycloak realm.
func (c *RefreshConfig) KeycloakTokenURL() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", hostURL(c.KeycloakHost), c.KeycloakRealm)
}

// hostURL accepts either a bare host name or a full URL.
func hostURL(host string) string {
	host = strings.TrimSuffix(host, "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

// ProvisionedConfig configures a ProvisionedManager.
type ProvisionedConfig struct {
	// Source supplies the Vault token.
	Source TokenSource

	// TTL and MaxTTL are the periods the token was minted with. They are only
	// used to diagnose failures.
	TTL    time.Duration
	MaxTTL time.Duration

	// RenewalThreshold is the remaining TTL under which the token is renewed.
	RenewalThreshold time.Duration

	// RenewIncrement is requested on renew-self. Zero lets Vault use the
	// token's own period.
	RenewIncrement time.Duration

	// Identity labels events and logs.
	Identity events.SessionInfo
}

// WithDefaults returns a copy of the config with default values applied.
func (c *ProvisionedConfig) WithDefaults() *ProvisionedConfig {
	result := *c
	if result.TTL == 0 {
		result.TTL = DefaultProvisionedTTL
	}
	if result.MaxTTL == 0 {
		result.MaxTTL = DefaultProvisionedMaxTTL
	}
	if result.RenewalThreshold == 0 {
		result.RenewalThreshold = DefaultRenewalThreshold
	}
	result.Identity.Mode = string(ModeProvisioned)
	return &result
}

// TokenStatus is a point-in-time view of a Manager's credential.
type TokenStatus struct {
	Mode Mode

	// Valid is the Manager's current Valid() answer.
	Valid bool

	// Expiry is when the current token expires. Zero means unknown.
	Expiry time.Time

	// SecondsRemaining is the time left until Expiry, floored at zero.
	SecondsRemaining float64

	HasAccessToken     bool
	HasRefreshToken    bool
	IdentityConfigured bool

	// RefreshCount and LastRefreshAt track successful refresh grants.
	RefreshCount  int
	LastRefreshAt time.Time

	// RenewalCount and LastRenewalAt track successful renew-self calls.
	RenewalCount  int
	LastRenewalAt time.Time
}

// RefresherState is a point-in-time view of a BackgroundRefresher.
type RefresherState struct {
	Running       bool
	Interval      time.Duration
	RefreshCount  int
	LastRefreshAt time.Time
	LastError     string
}

// BackgroundConfig configures a BackgroundRefresher.
type BackgroundConfig struct {
	// Interval is the wait between refresh attempts.
	Interval time.Duration

	// StopTimeout bounds how long Stop waits for the loop to exit.
	StopTimeout time.Duration

	// Identity labels events and logs.
	Identity events.SessionInfo
}

// WithDefaults returns a copy of the config with default values applied.
func (c *BackgroundConfig) WithDefaults() *BackgroundConfig {
	result := *c
	if result.Interval == 0 {
		result.Interval = DefaultBackgroundInterval
	}
	if result.StopTimeout == 0 {
		result.StopTimeout = DefaultStopTimeout
	}
	return &result
}

func secondsUntil(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	remaining := t.Sub(now).Seconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}
