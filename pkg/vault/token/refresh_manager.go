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
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-logr/logr"
	"golang.org/x/oauth2"

	"github.com/buun-ch/buun-stack/pkg/logger"
	"github.com/buun-ch/buun-stack/pkg/metrics"
	"github.com/buun-ch/buun-stack/pkg/vault/auth"
	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// Environment variables refreshed tokens are exported to.
const (
	EnvAccessToken  = "JUPYTERHUB_OIDC_ACCESS_TOKEN"
	EnvRefreshToken = "JUPYTERHUB_OIDC_REFRESH_TOKEN"
)

// RefreshManager manages an identity-provider credential that is exchanged
// for a Vault token through JWT login.
//
// # Refresh
//
// Refresh performs an OAuth2 refresh-token grant (form parameters
// grant_type, refresh_token and client_id) against the token endpoint. The
// new access token's expiry is read from its exp claim. A provider that does
// not rotate refresh tokens keeps the previous one.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Concurrent Refresh calls each
// contact the provider; callers that need a single refresh serialize above.
type RefreshManager struct {
	cfg   *RefreshConfig
	vault VaultAuthenticator
	log   logr.Logger
	now   func() time.Time

	mu            sync.RWMutex
	cred          Credential
	tokenURL      string
	refreshCount  int
	lastRefreshAt time.Time
}

// NewRefreshManager creates a RefreshManager seeded from cfg.
func NewRefreshManager(cfg RefreshConfig, authenticator VaultAuthenticator, log logr.Logger) *RefreshManager {
	c := cfg.WithDefaults()
	m := &RefreshManager{
		cfg:      c,
		vault:    authenticator,
		log:      log.WithName("refresh-manager"),
		now:      time.Now,
		tokenURL: c.TokenURL,
	}
	m.cred = Credential{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
	}
	if c.AccessToken != "" {
		m.cred.Expiry = auth.TokenExpiry(c.AccessToken, m.now())
	}
	return m
}

// Mode implements Manager.
func (m *RefreshManager) Mode() Mode {
	return ModeRefresh
}

// Credential implements Manager.
func (m *RefreshManager) Credential() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}

// Valid reports whether the access token can be used without refreshing.
// With auto-refresh disabled, or when the expiry is unknown, the token is
// trusted until Vault rejects it.
func (m *RefreshManager) Valid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validLocked()
}

func (m *RefreshManager) validLocked() bool {
	if !m.cfg.AutoRefresh {
		return true
	}
	if m.cred.AccessToken == "" {
		return false
	}
	if m.cred.Expiry.IsZero() {
		return true
	}
	return m.cred.Expiry.Sub(m.now()) > m.cfg.RefreshBuffer
}

// Refresh exchanges the refresh token for a new credential.
func (m *RefreshManager) Refresh(ctx context.Context) (Credential, error) {
	if !m.cfg.AutoRefresh {
		return Credential{}, infraerrors.NewConfigurationError("auto-refresh", "token refresh is disabled")
	}

	current := m.Credential()
	if !current.HasRefreshToken() {
		return Credential{}, infraerrors.NewConfigurationError(EnvRefreshToken, "no refresh token available")
	}
	if !m.cfg.IdentityProviderConfigured() {
		return Credential{}, infraerrors.NewConfigurationError("identity provider",
			"token URL, issuer or Keycloak host and realm must be configured")
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.cfg.HTTPClient)

	log := m.log.WithValues(logger.KeyOperation, logger.OpRefresh)
	log.V(1).Info("refreshing access token")

	tokenURL, err := m.resolveTokenURL(ctx)
	if err != nil {
		log.Error(err, "failed to resolve token endpoint")
		return Credential{}, infraerrors.NewAuthError(logger.OpRefresh, "token endpoint discovery failed", err)
	}

	conf := &oauth2.Config{
		ClientID: m.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		log.Error(err, "refresh grant failed")
		return Credential{}, infraerrors.NewAuthError(logger.OpRefresh, refreshFailureMessage(err), err)
	}

	now := m.now()
	next := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       auth.TokenExpiry(tok.AccessToken, now),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}

	m.mu.Lock()
	m.cred = next
	m.refreshCount++
	m.lastRefreshAt = now
	m.mu.Unlock()

	if m.cfg.ExportEnvironment {
		m.exportEnvironment(next)
	}
	metrics.SetTokenExpiry(next.Expiry)

	log.Info("access token refreshed", logger.KeyExpiresAt, next.Expiry)
	return next, nil
}

// resolveTokenURL returns the configured endpoint, or discovers it from the
// issuer once and caches it.
func (m *RefreshManager) resolveTokenURL(ctx context.Context) (string, error) {
	m.mu.RLock()
	url := m.tokenURL
	m.mu.RUnlock()
	if url != "" {
		return url, nil
	}

	if !m.cfg.DiscoverEndpoint {
		return m.cfg.KeycloakTokenURL(), nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, m.cfg.HTTPClient), m.cfg.Issuer)
	if err != nil {
		return "", err
	}
	url = provider.Endpoint().TokenURL
	if url == "" {
		return "", fmt.Errorf("issuer %s does not advertise a token endpoint", m.cfg.Issuer)
	}

	m.mu.Lock()
	m.tokenURL = url
	m.mu.Unlock()
	m.log.V(1).Info("discovered token endpoint", "tokenURL", url)
	return url, nil
}

func refreshFailureMessage(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			return fmt.Sprintf("identity provider rejected the refresh token (%s)", re.ErrorCode)
		}
		if re.Response != nil {
			return fmt.Sprintf("identity provider returned HTTP %d", re.Response.StatusCode)
		}
	}
	return "identity provider request failed"
}

func (m *RefreshManager) exportEnvironment(cred Credential) {
	if err := os.Setenv(EnvAccessToken, cred.AccessToken); err != nil {
		m.log.Error(err, "failed to export access token", "variable", EnvAccessToken)
	}
	if cred.RefreshToken != "" {
		if err := os.Setenv(EnvRefreshToken, cred.RefreshToken); err != nil {
			m.log.Error(err, "failed to export refresh token", "variable", EnvRefreshToken)
		}
	}
}

// Authenticate logs in to Vault with the current access token.
func (m *RefreshManager) Authenticate(ctx context.Context) error {
	cred := m.Credential()
	if cred.AccessToken == "" {
		return infraerrors.NewConfigurationError(EnvAccessToken, "no access token available")
	}

	log := m.log.WithValues(logger.KeyOperation, logger.OpAuthenticate, logger.KeyVaultRole, m.cfg.VaultRole)

	result, err := m.vault.AuthenticateJWT(ctx, m.cfg.VaultRole, m.cfg.VaultMount, cred.AccessToken)
	if err != nil {
		metrics.IncrementAuth(string(ModeRefresh), false)
		log.Error(err, "vault JWT login failed")
		return infraerrors.NewAuthError(logger.OpAuthenticate, "vault rejected the access token", err)
	}
	metrics.IncrementAuth(string(ModeRefresh), true)

	log.V(1).Info("authenticated to vault", "leaseDuration", result.LeaseDuration, "policies", result.Policies)
	return nil
}

// Status implements Manager.
func (m *RefreshManager) Status() TokenStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return TokenStatus{
		Mode:               ModeRefresh,
		Valid:              m.validLocked(),
		Expiry:             m.cred.Expiry,
		SecondsRemaining:   secondsUntil(m.cred.Expiry, m.now()),
		HasAccessToken:     m.cred.AccessToken != "",
		HasRefreshToken:    m.cred.HasRefreshToken(),
		IdentityConfigured: m.cfg.IdentityProviderConfigured(),
		RefreshCount:       m.refreshCount,
		LastRefreshAt:      m.lastRefreshAt,
	}
}

var _ Manager = (*RefreshManager)(nil)
