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

package secretstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/buun-ch/buun-stack/pkg/logger"
	"github.com/buun-ch/buun-stack/pkg/metrics"
	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/pkg/vault/token"
)

// singleflight keys. A forced re-authentication never joins an ordinary
// one, so a caller that saw permission denied always gets a fresh login.
const (
	flightEnsure  = "ensure"
	flightForce   = "force"
	flightRefresh = "refresh"
)

// Session owns the Vault handle and the credential manager. All changes to
// either happen under mu; concurrent callers that need the same change
// share one attempt through the singleflight group.
type Session struct {
	client  *vault.Client
	manager token.Manager
	log     logr.Logger

	mu            sync.Mutex
	flights       singleflight.Group
	authenticated atomic.Bool
}

// NewSession creates an unauthenticated Session.
func NewSession(client *vault.Client, manager token.Manager, log logr.Logger) *Session {
	return &Session{
		client:  client,
		manager: manager,
		log:     log.WithName("session"),
	}
}

// Client returns the Vault handle.
func (s *Session) Client() *vault.Client {
	return s.client
}

// Manager returns the credential manager.
func (s *Session) Manager() token.Manager {
	return s.manager
}

// Authenticated reports whether the last authentication succeeded.
func (s *Session) Authenticated() bool {
	return s.authenticated.Load()
}

// current reports whether the handle can be used without authenticating.
// A provisioned token is probed on every call so it is renewed while the
// session is in use.
func (s *Session) current() bool {
	return s.authenticated.Load() &&
		s.manager.Valid() &&
		s.manager.Mode() != token.ModeProvisioned
}

// EnsureAuthenticated makes sure the Vault handle is authenticated with a
// usable credential, refreshing the credential first when it is stale.
// force re-authenticates even when the handle looks current.
func (s *Session) EnsureAuthenticated(ctx context.Context, force bool) error {
	if !force && s.current() {
		return nil
	}

	key := flightEnsure
	if force {
		key = flightForce
	}
	// The attempt is shared, so one caller's cancellation must not fail
	// the others. Each network call is bounded by its own timeout.
	shared := context.WithoutCancel(ctx)
	_, err, _ := s.flights.Do(key, func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if !force && s.current() {
			return nil, nil
		}
		return nil, s.authenticateLocked(shared, metrics.SourceForeground, !s.manager.Valid())
	})
	return err
}

// RefreshAndAuthenticate unconditionally refreshes the credential and
// re-authenticates. It is the background refresher's entry point.
func (s *Session) RefreshAndAuthenticate(ctx context.Context) error {
	_, err, _ := s.flights.Do(flightRefresh, func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return nil, s.authenticateLocked(ctx, "", true)
	})
	return err
}

// Credential returns the manager's current credential. It satisfies the
// background refresher's expiry lookup.
func (s *Session) Credential() token.Credential {
	return s.manager.Credential()
}

// authenticateLocked refreshes when asked, then authenticates. source labels
// the refresh metric; empty leaves recording to the caller. Any failure
// leaves the handle marked unauthenticated.
func (s *Session) authenticateLocked(ctx context.Context, source string, refresh bool) error {
	if refresh {
		_, err := s.manager.Refresh(ctx)
		if source != "" {
			metrics.IncrementRefresh(source, err == nil)
		}
		if err != nil {
			s.markUnauthenticated()
			return err
		}
	}

	if err := s.manager.Authenticate(ctx); err != nil {
		s.markUnauthenticated()
		return err
	}

	s.authenticated.Store(true)
	s.log.V(1).Info("vault session authenticated", logger.KeyMode, s.manager.Mode())
	return nil
}

func (s *Session) markUnauthenticated() {
	s.authenticated.Store(false)
	s.client.SetAuthenticated(false)
}

var _ token.RefreshTarget = (*Session)(nil)
