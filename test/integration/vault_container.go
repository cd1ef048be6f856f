/*
Package integration runs the secret store against a real Vault started with
testcontainers-go.

This file implements the VaultTestContainer wrapper around testcontainers-go's
Vault module, providing the setup the notebook session needs: a KV v2 engine,
JWT auth trusting a test signing key, and per-user roles.
*/
package integration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/exec"
	"github.com/testcontainers/testcontainers-go/modules/vault"
)

// VaultTestContainer wraps a testcontainers Vault instance with session setup helpers
type VaultTestContainer struct {
	*vault.VaultContainer
	rootToken string
	address   string
}

// VaultContainerOption configures a VaultTestContainer
type VaultContainerOption func(*vaultContainerOptions)

type vaultContainerOptions struct {
	imageTag       string
	rootToken      string
	initCommands   []string
	startupTimeout time.Duration
	logLevel       string
}

func defaultOptions() *vaultContainerOptions {
	return &vaultContainerOptions{
		imageTag:       "1.17.2",
		rootToken:      "root-token",
		startupTimeout: 30 * time.Second,
		logLevel:       "info",
	}
}

// WithImageTag sets the Vault image tag
func WithImageTag(tag string) VaultContainerOption {
	return func(o *vaultContainerOptions) {
		o.imageTag = tag
	}
}

// WithRootToken sets a custom root token
func WithRootToken(token string) VaultContainerOption {
	return func(o *vaultContainerOptions) {
		o.rootToken = token
	}
}

// WithLogLevel sets Vault log level (trace, debug, info, warn, err)
func WithLogLevel(level string) VaultContainerOption {
	return func(o *vaultContainerOptions) {
		o.logLevel = level
	}
}

// WithStartupTimeout sets custom startup timeout
func WithStartupTimeout(timeout time.Duration) VaultContainerOption {
	return func(o *vaultContainerOptions) {
		o.startupTimeout = timeout
	}
}

// WithInitCommand adds a command to run during initialization
func WithInitCommand(cmd string) VaultContainerOption {
	return func(o *vaultContainerOptions) {
		o.initCommands = append(o.initCommands, cmd)
	}
}

// NewVaultTestContainer creates and starts a new Vault test container. Dev
// mode already mounts KV v2 at "secret/"; JWT auth is enabled at "jwt/".
func NewVaultTestContainer(ctx context.Context, opts ...VaultContainerOption) (*VaultTestContainer, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	// Use || true for idempotent auth enable (may already be enabled)
	containerOpts := []testcontainers.ContainerCustomizer{
		vault.WithToken(options.rootToken),
		vault.WithInitCommand("auth enable jwt || true"),
	}
	for _, cmd := range options.initCommands {
		containerOpts = append(containerOpts, vault.WithInitCommand(cmd))
	}
	if options.logLevel != "" {
		containerOpts = append(containerOpts, testcontainers.WithEnv(map[string]string{
			"VAULT_LOG_LEVEL": options.logLevel,
		}))
	}

	startCtx, cancel := context.WithTimeout(ctx, options.startupTimeout)
	defer cancel()

	container, err := vault.Run(startCtx, "hashicorp/vault:"+options.imageTag, containerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start vault container: %w", err)
	}

	address, err := container.HttpHostAddress(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("failed to get vault address: %w", err)
	}

	return &VaultTestContainer{
		VaultContainer: container,
		rootToken:      options.rootToken,
		address:        address,
	}, nil
}

// Address returns the HTTP address of the Vault container
func (v *VaultTestContainer) Address() string {
	return v.address
}

// RootToken returns the root token
func (v *VaultTestContainer) RootToken() string {
	return v.rootToken
}

// Exec executes a vault CLI command inside the container
func (v *VaultTestContainer) Exec(ctx context.Context, cmd []string) (int, string, error) {
	fullCmd := append([]string{"vault"}, cmd...)

	exitCode, reader, err := v.VaultContainer.Exec(ctx, fullCmd, exec.Multiplexed())
	if err != nil {
		return exitCode, "", fmt.Errorf("exec failed: %w", err)
	}

	var output string
	if reader != nil {
		data, err := io.ReadAll(reader)
		if err != nil {
			return exitCode, "", fmt.Errorf("failed to read exec output: %w", err)
		}
		output = string(data)
	}

	return exitCode, output, nil
}

// run executes a vault CLI command and fails on a non-zero exit code.
func (v *VaultTestContainer) run(ctx context.Context, what string, cmd ...string) error {
	exitCode, output, err := v.Exec(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%s failed with exit code %d: %s", what, exitCode, output)
	}
	return nil
}

// ConfigureJWTAuth trusts JWTs signed by the given PEM-encoded public key
// and issued by issuer.
func (v *VaultTestContainer) ConfigureJWTAuth(ctx context.Context, publicKeyPEM, issuer string) error {
	return v.run(ctx, "configure jwt auth",
		"write", "auth/jwt/config",
		"jwt_validation_pubkeys="+publicKeyPEM,
		"bound_issuer="+issuer,
	)
}

// CreateJWTRole creates a JWT auth role bound to audience that grants
// policies to the token holder.
func (v *VaultTestContainer) CreateJWTRole(ctx context.Context, role, audience string, policies []string) error {
	return v.run(ctx, "create jwt role",
		"write", "auth/jwt/role/"+role,
		"role_type=jwt",
		"bound_audiences="+audience,
		"user_claim=preferred_username",
		"policies="+strings.Join(policies, ","),
		"ttl=1h",
	)
}

// DeletePolicy deletes a policy from Vault
func (v *VaultTestContainer) DeletePolicy(ctx context.Context, name string) error {
	return v.run(ctx, "delete policy", "policy", "delete", name)
}

// Health checks if Vault is healthy
func (v *VaultTestContainer) Health(ctx context.Context) (bool, error) {
	exitCode, _, err := v.Exec(ctx, []string{"status"})
	if err != nil {
		return false, err
	}
	// exit code 0 means healthy, initialized, and unsealed
	return exitCode == 0, nil
}

// Terminate stops and removes the container
func (v *VaultTestContainer) Terminate(ctx context.Context) error {
	if v.VaultContainer != nil {
		return v.VaultContainer.Terminate(ctx)
	}
	return nil
}
