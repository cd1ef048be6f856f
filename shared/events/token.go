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

package events

import "time"

// Token event type constants.
const (
	TokenRefreshedType     = "token.refreshed"
	TokenRefreshFailedType = "token.refresh_failed"
	TokenRenewedType       = "token.renewed"
)

// TokenRefreshed is published when the background refresher obtains a new
// access token and re-authenticates to Vault.
type TokenRefreshed struct {
	BaseEvent
	Session SessionInfo
	// NewExpiration is when the refreshed credential expires (zero if unknown)
	NewExpiration time.Time
	// RefreshCount is the number of successful background refreshes so far
	RefreshCount int
}

// Type returns the event type identifier.
func (e TokenRefreshed) Type() string {
	return TokenRefreshedType
}

// NewTokenRefreshed creates a TokenRefreshed event.
func NewTokenRefreshed(session SessionInfo, newExpiration time.Time, refreshCount int) TokenRefreshed {
	return TokenRefreshed{
		BaseEvent:     NewBaseEvent(TokenRefreshedType),
		Session:       session,
		NewExpiration: newExpiration,
		RefreshCount:  refreshCount,
	}
}

// TokenRefreshFailed is published when a background refresh cycle fails.
// The refresher keeps running; the next cycle tries again.
type TokenRefreshFailed struct {
	BaseEvent
	Session SessionInfo
	// Error describes what went wrong
	Error string
	// Terminal indicates the credential cannot recover without a new session
	Terminal bool
}

// Type returns the event type identifier.
func (e TokenRefreshFailed) Type() string {
	return TokenRefreshFailedType
}

// NewTokenRefreshFailed creates a TokenRefreshFailed event.
func NewTokenRefreshFailed(session SessionInfo, errMsg string, terminal bool) TokenRefreshFailed {
	return TokenRefreshFailed{
		BaseEvent: NewBaseEvent(TokenRefreshFailedType),
		Session:   session,
		Error:     errMsg,
		Terminal:  terminal,
	}
}

// TokenRenewed is published when a provisioned Vault token is renewed
// through renew-self.
type TokenRenewed struct {
	BaseEvent
	Session SessionInfo
	// LeaseDuration is the TTL granted by the renewal
	LeaseDuration time.Duration
}

// Type returns the event type identifier.
func (e TokenRenewed) Type() string {
	return TokenRenewedType
}

// NewTokenRenewed creates a TokenRenewed event.
func NewTokenRenewed(session SessionInfo, leaseDuration time.Duration) TokenRenewed {
	return TokenRenewed{
		BaseEvent:     NewBaseEvent(TokenRenewedType),
		Session:       session,
		LeaseDuration: leaseDuration,
	}
}
