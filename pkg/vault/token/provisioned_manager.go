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
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/buun-ch/buun-stack/pkg/logger"
	"github.com/buun-ch/buun-stack/pkg/metrics"
	"github.com/buun-ch/buun-stack/shared/events"
	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// ProvisionedManager manages a Vault token minted for the session by the
// spawner. The token cannot be refreshed. Authenticate renews it in place
// once its remaining TTL drops below the renewal threshold, until Vault
// refuses it at its maximum lifetime.
//
// # Diagnosis
//
// When Vault rejects the token, Authenticate returns a terminal AuthError.
// If the token's creation time plus the configured maximum lifetime lies in
// the past, the error is marked Exhausted. The creation time comes from the
// last successful lookup, or the time the manager was created when the token
// was never seen alive.
type ProvisionedManager struct {
	cfg       *ProvisionedConfig
	vault     VaultAuthenticator
	publisher EventPublisher
	log       logr.Logger
	now       func() time.Time
	startedAt time.Time

	mu            sync.RWMutex
	token         string
	createdAt     time.Time
	expiry        time.Time
	renewalCount  int
	lastRenewalAt time.Time
}

// NewProvisionedManager creates a ProvisionedManager. A nil Source reads
// DefaultTokenFilePath.
func NewProvisionedManager(cfg ProvisionedConfig, authenticator VaultAuthenticator, publisher EventPublisher, log logr.Logger) *ProvisionedManager {
	c := cfg.WithDefaults()
	l := log.WithName("provisioned-manager")
	if c.Source == nil {
		c.Source = NewFileTokenSource("", l)
	}
	return &ProvisionedManager{
		cfg:       c,
		vault:     authenticator,
		publisher: publisher,
		log:       l,
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// Mode implements Manager.
func (m *ProvisionedManager) Mode() Mode {
	return ModeProvisioned
}

// Valid is always true: a provisioned token is checked by Authenticate.
func (m *ProvisionedManager) Valid() bool {
	return true
}

// Refresh is not supported for provisioned tokens.
func (m *ProvisionedManager) Refresh(_ context.Context) (Credential, error) {
	return Credential{}, infraerrors.NewConfigurationError("refresh",
		"provisioned vault tokens cannot be refreshed; they are renewed during authentication")
}

// Credential returns the provisioned token as the access token.
func (m *ProvisionedManager) Credential() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Credential{AccessToken: m.token, Expiry: m.expiry}
}

// Authenticate installs the provisioned token, verifies it with
// lookup-self and renews it when its TTL runs low.
func (m *ProvisionedManager) Authenticate(ctx context.Context) error {
	log := m.log.WithValues(logger.KeyOperation, logger.OpAuthenticate)

	tok, err := m.cfg.Source.Token(ctx)
	if err != nil {
		metrics.IncrementAuth(string(ModeProvisioned), false)
		log.Error(err, "no provisioned vault token", "source", m.cfg.Source.Describe())
		return m.unauthenticated(err, false)
	}
	m.setToken(tok)

	if err := m.vault.AuthenticateToken(tok); err != nil {
		metrics.IncrementAuth(string(ModeProvisioned), false)
		return m.unauthenticated(err, false)
	}

	info, err := m.vault.LookupSelf(ctx)
	if err != nil {
		metrics.IncrementAuth(string(ModeProvisioned), false)
		if infraerrors.IsPermissionDeniedError(err) {
			authErr := m.unauthenticated(err, m.exhausted())
			log.Error(err, "vault rejected the provisioned token", "exhausted", authErr.Exhausted)
			return authErr
		}
		log.Error(err, "vault token lookup failed")
		return infraerrors.NewAuthError(logger.OpAuthenticate, "vault token lookup failed", err)
	}
	metrics.IncrementAuth(string(ModeProvisioned), true)

	now := m.now()
	m.mu.Lock()
	if !info.CreationTime.IsZero() {
		m.createdAt = info.CreationTime
	}
	if info.TTL > 0 {
		m.expiry = now.Add(info.TTL)
	} else {
		m.expiry = time.Time{}
	}
	expiry := m.expiry
	m.mu.Unlock()
	metrics.SetTokenExpiry(expiry)

	log.V(1).Info("provisioned token is valid", "ttl", info.TTL, "renewable", info.Renewable)

	// A zero TTL means the token never expires.
	if info.TTL > 0 && info.TTL < m.cfg.RenewalThreshold && info.Renewable {
		m.renew(ctx, log)
	}
	return nil
}

// renew extends the token. Failure is logged only: the token keeps working
// until its current TTL runs out.
func (m *ProvisionedManager) renew(ctx context.Context, log logr.Logger) {
	log = log.WithValues(logger.KeyOperation, logger.OpRenew)

	result, err := m.vault.RenewSelf(ctx, m.cfg.RenewIncrement)
	if err != nil {
		metrics.IncrementRenewal(false)
		log.Error(err, "failed to renew vault token")
		return
	}
	metrics.IncrementRenewal(true)

	now := m.now()
	m.mu.Lock()
	m.renewalCount++
	m.lastRenewalAt = now
	if result.LeaseDuration > 0 {
		m.expiry = now.Add(result.LeaseDuration)
	}
	expiry := m.expiry
	m.mu.Unlock()
	metrics.SetTokenExpiry(expiry)

	publish(ctx, m.publisher, m.log, events.NewTokenRenewed(m.cfg.Identity, result.LeaseDuration))
	log.Info("vault token renewed", "leaseDuration", result.LeaseDuration, logger.KeyExpiresAt, expiry)
}

// setToken records the token in use. A different token restarts the
// lifetime tracking.
func (m *ProvisionedManager) setToken(tok string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok != m.token {
		m.token = tok
		m.createdAt = time.Time{}
		m.expiry = time.Time{}
	}
}

func (m *ProvisionedManager) exhausted() bool {
	m.mu.RLock()
	created := m.createdAt
	m.mu.RUnlock()
	if created.IsZero() {
		created = m.startedAt
	}
	return m.now().After(created.Add(m.cfg.MaxTTL))
}

// unauthenticated builds the terminal error returned when no usable token
// is installed.
func (m *ProvisionedManager) unauthenticated(cause error, exhausted bool) *infraerrors.AuthError {
	var msg string
	if exhausted {
		msg = fmt.Sprintf("vault token has reached its maximum lifetime of %s (TTL %s, renewed while in use); "+
			"restart your notebook server to obtain a new token", m.cfg.MaxTTL, m.cfg.TTL)
	} else {
		msg = fmt.Sprintf("vault token is missing, revoked or invalid (issued with TTL %s and maximum lifetime %s); "+
			"restart your notebook server to obtain a new token", m.cfg.TTL, m.cfg.MaxTTL)
	}
	authErr := infraerrors.NewTerminalAuthError(logger.OpAuthenticate, msg, cause)
	authErr.Exhausted = exhausted
	return authErr
}

// Status implements Manager.
func (m *ProvisionedManager) Status() TokenStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return TokenStatus{
		Mode:             ModeProvisioned,
		Valid:            true,
		Expiry:           m.expiry,
		SecondsRemaining: secondsUntil(m.expiry, m.now()),
		HasAccessToken:   m.token != "",
		RenewalCount:     m.renewalCount,
		LastRenewalAt:    m.lastRenewalAt,
	}
}

var _ Manager = (*ProvisionedManager)(nil)
