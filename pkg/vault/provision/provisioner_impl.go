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
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/buun-ch/buun-stack/pkg/logger"
	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/pkg/vault/token"
	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// provisionerImpl implements Provisioner.
type provisionerImpl struct {
	adminToken token.TokenSource
	log        logr.Logger
}

// NewProvisioner creates a new Provisioner. A nil adminToken reads the
// injected token at token.DefaultTokenFilePath.
func NewProvisioner(adminToken token.TokenSource, log logr.Logger) Provisioner {
	l := log.WithName("provisioner")
	if adminToken == nil {
		adminToken = token.NewFileTokenSource("", l)
	}
	return &provisionerImpl{
		adminToken: adminToken,
		log:        l,
	}
}

// Provision performs the full provisioning sequence.
func (p *provisionerImpl) Provision(
	ctx context.Context,
	vaultClient VaultProvisionClient,
	username string,
	config *Config,
) (*Result, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	// Apply defaults
	config = config.WithDefaults()
	log := logger.WithUser(p.log, username)
	log.Info("provisioning notebook vault token", "source", p.adminToken.Describe())

	result := &Result{PolicyName: config.PolicyName(username)}

	policy, err := config.RenderPolicy(username)
	if err != nil {
		return nil, infraerrors.NewValidationError("rules", result.PolicyName, err.Error())
	}

	// Step 1: Authenticate with the administrative token
	adminToken, err := p.adminToken.Token(ctx)
	if err != nil {
		return nil, infraerrors.NewConfigurationError("admin token", err.Error())
	}
	if err := vaultClient.AuthenticateToken(adminToken); err != nil {
		return nil, fmt.Errorf("failed to install admin token: %w", err)
	}
	if _, err := vaultClient.LookupSelf(ctx); err != nil {
		return nil, infraerrors.NewAuthError(logger.OpAuthenticate, "admin token is not authenticated", err)
	}

	// Step 2: Write the user policy. It usually exists already, so a
	// failure only downgrades the result.
	if err := vaultClient.WritePolicy(ctx, result.PolicyName, policy); err != nil {
		log.Error(err, "policy write failed, continuing with existing policy", "policy", result.PolicyName)
	} else {
		result.PolicyWritten = true
		log.Info("wrote user policy", "policy", result.PolicyName)
	}

	// Step 3: Create the notebook token
	auth, err := vaultClient.CreateOrphanToken(ctx, vault.OrphanTokenRequest{
		Policies:       []string{result.PolicyName},
		TTL:            config.TTL,
		ExplicitMaxTTL: config.MaxTTL,
		DisplayName:    config.DisplayPrefix + username,
		Renewable:      true,
		Metadata:       map[string]string{"username": username},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notebook token for %s: %w", username, err)
	}
	result.Token = auth.ClientToken
	result.LeaseDuration = auth.LeaseDuration

	log.Info("created notebook vault token",
		"leaseDuration", result.LeaseDuration,
		"maxTTL", config.MaxTTL,
		"policyWritten", result.PolicyWritten,
	)

	return result, nil
}

func validateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return infraerrors.NewValidationError("username", username, "username cannot be empty")
	}
	if strings.ContainsAny(username, "/*{}") || strings.Contains(username, "..") {
		return infraerrors.NewValidationError("username", username, "username contains characters not allowed in a policy path")
	}
	return nil
}
