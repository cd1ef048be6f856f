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

// Package token provides credential lifecycle management for Vault sessions.
//
// # Overview
//
// A notebook session reaches Vault with one of two kinds of credential, and
// each is handled by its own Manager behind the same interface:
//
//   - RefreshManager: the session holds an identity-provider access token
//     and refresh token. The access token is exchanged for a Vault token via
//     JWT login and renewed with an OAuth2 refresh-token grant before it
//     expires.
//   - ProvisionedManager: the spawner minted a renewable Vault token for the
//     session. It cannot be refreshed; it is renewed in place while its TTL
//     runs low, until it reaches its maximum lifetime.
//
// # Key Interfaces
//
//   - Manager: validity, refresh and authentication for one credential
//   - VaultAuthenticator: the Vault calls a Manager needs
//   - TokenSource: where a provisioned token is read from
//
// # Usage
//
//	mgr := token.NewRefreshManager(cfg, vaultClient, log)
//	if !mgr.Valid() {
//	    if _, err := mgr.Refresh(ctx); err != nil {
//	        return err
//	    }
//	}
//	if err := mgr.Authenticate(ctx); err != nil {
//	    return err
//	}
//
// # Background refresh
//
// BackgroundRefresher periodically drives any RefreshTarget (normally the
// secret store session) so that long idle sessions keep a fresh token:
//
//	r := token.NewBackgroundRefresher(session, token.BackgroundConfig{}, bus, log)
//	if err := r.Start(); err != nil {
//	    return err
//	}
//	defer r.Stop()
package token
