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
	"time"

	"github.com/go-logr/logr"

	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/shared/events"
)

// Manager owns one session credential and knows how to keep it usable.
//
// # Behavior
//
// Valid reports whether the credential can be used as-is. When it cannot,
// the caller invokes Refresh, then Authenticate to install the result as the
// Vault handle's token. Managers do not serialize callers; the session that
// owns a Manager holds a lock around Refresh and Authenticate.
//
// # Errors
//
// Refresh and Authenticate return *errors.AuthError when the identity
// provider or Vault rejects the credential, and *errors.ConfigurationError
// when the operation cannot be attempted in the current configuration.
type Manager interface {
	// Mode identifies the credential kind.
	Mode() Mode

	// Valid reports whether the credential is usable without refreshing.
	Valid() bool

	// Refresh obtains a new credential from the identity provider. On
	// failure the previous credential is left in place.
	Refresh(ctx context.Context) (Credential, error)

	// Authenticate installs a Vault token derived from the credential on the
	// Vault handle.
	Authenticate(ctx context.Context) error

	// Credential returns the current credential.
	Credential() Credential

	// Status returns a snapshot for diagnostics.
	Status() TokenStatus
}

// VaultAuthenticator is the interface for Vault authentication operations.
// This allows for mocking in tests and decouples from the concrete Vault client.
type VaultAuthenticator interface {
	// AuthenticateJWT logs in with an identity-provider JWT and installs the
	// resulting token.
	AuthenticateJWT(ctx context.Context, role, mountPath, jwt string) (*vault.AuthResult, error)

	// AuthenticateToken installs an existing Vault token.
	AuthenticateToken(token string) error

	// LookupSelf describes the installed token.
	LookupSelf(ctx context.Context) (*vault.TokenInfo, error)

	// RenewSelf renews the installed token.
	RenewSelf(ctx context.Context, increment time.Duration) (*vault.AuthResult, error)
}

// EventPublisher publishes lifecycle events. *events.EventBus satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// RefreshTarget is driven by a BackgroundRefresher.
type RefreshTarget interface {
	// RefreshAndAuthenticate refreshes the credential and re-authenticates
	// the Vault handle.
	RefreshAndAuthenticate(ctx context.Context) error
}

// publish sends event if a publisher is configured. Handler errors are
// logged and never fail the lifecycle operation.
func publish(ctx context.Context, p EventPublisher, log logr.Logger, event events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Error(err, "event handler failed", "eventType", event.Type())
	}
}

var (
	_ VaultAuthenticator = (*vault.Client)(nil)
	_ EventPublisher     = (*events.EventBus)(nil)
)
