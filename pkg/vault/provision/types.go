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
	"strings"
	"time"

	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/pkg/vault/token"
)

// Default values for provisioning.
const (
	// DefaultPolicyPrefix prefixes the per-user policy name.
	DefaultPolicyPrefix = "jupyter-user-"

	// DefaultDisplayPrefix prefixes the token display name.
	DefaultDisplayPrefix = "notebook-"

	// EnvNotebookToken is the variable the notebook reads its token from.
	EnvNotebookToken = "NOTEBOOK_VAULT_TOKEN"

	// templateUsername is the placeholder in plain-text policy templates.
	templateUsername = "{username}"
)

// Config contains all configuration for provisioning a user.
type Config struct {
	// Rules are rendered into the user's policy. Ignored when
	// PolicyTemplate is set. Defaults to vault.DefaultUserPolicyRules.
	Rules []vault.PolicyRule

	// PolicyTemplate is an HCL document in which {username} or
	// {{username}} is replaced with the user name.
	PolicyTemplate string

	// PolicyPrefix prefixes the policy name (default: "jupyter-user-").
	PolicyPrefix string

	// DisplayPrefix prefixes the token display name (default: "notebook-").
	DisplayPrefix string

	// TTL is the token's renewal period.
	TTL time.Duration

	// MaxTTL is the token's lifetime ceiling.
	MaxTTL time.Duration
}

// Result contains the results of a successful provisioning.
type Result struct {
	// Token is the new notebook Vault token.
	Token string

	// LeaseDuration is the TTL Vault granted.
	LeaseDuration time.Duration

	// PolicyName is the policy bound to the token.
	PolicyName string

	// PolicyWritten indicates the policy write succeeded.
	PolicyWritten bool
}

// WithDefaults returns a copy of Config with default values applied.
func (c *Config) WithDefaults() *Config {
	cfg := *c
	if cfg.PolicyPrefix == "" {
		cfg.PolicyPrefix = DefaultPolicyPrefix
	}
	if cfg.DisplayPrefix == "" {
		cfg.DisplayPrefix = DefaultDisplayPrefix
	}
	if cfg.TTL == 0 {
		cfg.TTL = token.DefaultProvisionedTTL
	}
	if cfg.MaxTTL == 0 {
		cfg.MaxTTL = token.DefaultProvisionedMaxTTL
	}
	if cfg.PolicyTemplate == "" && len(cfg.Rules) == 0 {
		cfg.Rules = vault.DefaultUserPolicyRules()
	}
	return &cfg
}

// PolicyName returns the policy name for username.
func (c *Config) PolicyName(username string) string {
	return c.PolicyPrefix + username
}

// RenderPolicy returns the policy document for username.
func (c *Config) RenderPolicy(username string) (string, error) {
	if c.PolicyTemplate != "" {
		doc := vault.SubstituteVariables(c.PolicyTemplate, username)
		return strings.ReplaceAll(doc, templateUsername, username), nil
	}
	if err := vault.ValidateRules(c.Rules); err != nil {
		return "", err
	}
	return vault.GeneratePolicyHCL(c.Rules, username), nil
}
