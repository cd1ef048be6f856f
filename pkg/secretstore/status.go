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
	"github.com/buun-ch/buun-stack/pkg/vault/token"
)

// Status is a diagnostic snapshot of a Store.
type Status struct {
	Username      string
	VaultAddress  string
	BasePath      string
	Mode          token.Mode
	Authenticated bool

	// AutoRefresh reports whether stale credentials are refreshed.
	AutoRefresh bool

	Token     token.TokenStatus
	Refresher token.RefresherState
}

// Status returns the current state of the session and its background
// refresher. It does not contact Vault or the identity provider.
func (s *Store) Status() Status {
	st := Status{
		Username:      s.cfg.Username,
		VaultAddress:  s.cfg.VaultAddr,
		BasePath:      s.cfg.BasePath(),
		Mode:          s.session.Manager().Mode(),
		Authenticated: s.session.Authenticated(),
		AutoRefresh:   s.cfg.AutoRefresh,
		Token:         s.session.Manager().Status(),
	}

	s.mu.Lock()
	r := s.refresher
	s.mu.Unlock()
	if r != nil {
		st.Refresher = r.State()
	} else {
		st.Refresher.Interval = s.cfg.BackgroundInterval
	}
	return st
}
