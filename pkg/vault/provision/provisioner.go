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

package provision

import (
	"context"

	"github.com/buun-ch/buun-stack/pkg/vault"
)

// Provisioner mints per-user notebook tokens.
//
// # Thread Safety
//
// Provision may be called concurrently for different users. Each call
// installs the administrative token on the client it is given.
type Provisioner interface {
	// Provision writes the user's policy and creates their token.
	Provision(ctx context.Context, vaultClient VaultProvisionClient, username string, config *Config) (*Result, error)
}

// VaultProvisionClient is the Vault client interface needed for
// provisioning. This allows for mocking in tests.
type VaultProvisionClient interface {
	// AuthenticateToken installs the administrative token.
	AuthenticateToken(token string) error

	// LookupSelf verifies the administrative token.
	LookupSelf(ctx context.Context) (*vault.TokenInfo, error)

	// WritePolicy creates or updates an ACL policy.
	WritePolicy(ctx context.Context, name, hcl string) error

	// CreateOrphanToken creates a token without a parent.
	CreateOrphanToken(ctx context.Context, req vault.OrphanTokenRequest) (*vault.AuthResult, error)
}

var _ VaultProvisionClient = (*vault.Client)(nil)
