package vault

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault/api"
)

// Default mount points used by the secret store.
const (
	DefaultKVMount  = "secret"
	DefaultJWTMount = "jwt"
	DefaultJWTRole  = "jupyter-token"
)

// Client wraps the Vault API client with additional metadata
type Client struct {
	*api.Client
	authenticated atomic.Bool
}

// ClientConfig holds configuration for creating a Vault client
type ClientConfig struct {
	Address   string
	TLSConfig *TLSConfig
	Timeout   time.Duration
	// MaxRetries is passed to the API client for 5xx and transport retries.
	// Zero disables retries.
	MaxRetries int
}

// TLSConfig holds TLS configuration for Vault client
type TLSConfig struct {
	CACert     string
	SkipVerify bool
}

// AuthResult is the part of a Vault auth response the secret store uses.
type AuthResult struct {
	ClientToken   string
	LeaseDuration time.Duration
	Renewable     bool
	Policies      []string
}

// TokenInfo is the subset of auth/token/lookup-self the secret store uses.
type TokenInfo struct {
	TTL            time.Duration
	Renewable      bool
	CreationTime   time.Time
	ExplicitMaxTTL time.Duration
	DisplayName    string
	Policies       []string
}

// NewClient creates a new Vault client with the given configuration
func NewClient(cfg ClientConfig) (*Client, error) {
	config := api.DefaultConfig()
	if config.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", config.Error)
	}
	config.Address = cfg.Address
	config.MaxRetries = cfg.MaxRetries

	if cfg.Timeout > 0 {
		config.Timeout = cfg.Timeout
	}

	if cfg.TLSConfig != nil {
		if cfg.TLSConfig.CACert != "" {
			if err := config.ConfigureTLS(&api.TLSConfig{
				CACert:   cfg.TLSConfig.CACert,
				Insecure: cfg.TLSConfig.SkipVerify,
			}); err != nil {
				return nil, fmt.Errorf("failed to configure TLS: %w", err)
			}
		} else if cfg.TLSConfig.SkipVerify {
			config.HttpClient.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // operator opt-in
			}
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	// The API client picks up VAULT_TOKEN from the environment; only tokens
	// installed by an authenticate call are used.
	client.ClearToken()

	return &Client{
		Client: client,
	}, nil
}

// IsAuthenticated returns whether the client has been authenticated
func (c *Client) IsAuthenticated() bool {
	return c.authenticated.Load()
}

// SetAuthenticated marks the client as authenticated
func (c *Client) SetAuthenticated(auth bool) {
	c.authenticated.Store(auth)
}

// IsHealthy checks if Vault is healthy and the client can connect
func (c *Client) IsHealthy(ctx context.Context) (bool, error) {
	health, err := c.Sys().HealthWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("vault health check failed: %w", err)
	}

	// Vault is healthy if initialized and unsealed
	return health.Initialized && !health.Sealed, nil
}

// AuthenticateToken authenticates using a static token
func (c *Client) AuthenticateToken(token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	c.SetToken(token)
	c.authenticated.Store(true)
	return nil
}

// AuthenticateJWT logs in through the JWT auth method and installs the
// resulting client token.
func (c *Client) AuthenticateJWT(ctx context.Context, role, mountPath, jwt string) (*AuthResult, error) {
	if jwt == "" {
		return nil, fmt.Errorf("jwt cannot be empty")
	}
	if mountPath == "" {
		mountPath = DefaultJWTMount
	}
	if role == "" {
		role = DefaultJWTRole
	}

	path := fmt.Sprintf("auth/%s/login", mountPath)
	secret, err := c.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"role": role,
		"jwt":  jwt,
	})
	if err != nil {
		c.authenticated.Store(false)
		return nil, classify("jwt login", path, err)
	}

	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		c.authenticated.Store(false)
		return nil, fmt.Errorf("jwt auth returned no token")
	}

	c.SetToken(secret.Auth.ClientToken)
	c.authenticated.Store(true)
	return authResult(secret.Auth), nil
}

// LookupSelf returns metadata about the token currently installed.
func (c *Client) LookupSelf(ctx context.Context) (*TokenInfo, error) {
	secret, err := c.Auth().Token().LookupSelfWithContext(ctx)
	if err != nil {
		return nil, classify("token lookup", "auth/token/lookup-self", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("token lookup returned no data")
	}

	info := &TokenInfo{}
	if info.TTL, err = secret.TokenTTL(); err != nil {
		return nil, fmt.Errorf("failed to parse token ttl: %w", err)
	}
	if info.Renewable, err = secret.TokenIsRenewable(); err != nil {
		return nil, fmt.Errorf("failed to parse token renewable flag: %w", err)
	}
	if info.Policies, err = secret.TokenPolicies(); err != nil {
		return nil, fmt.Errorf("failed to parse token policies: %w", err)
	}
	if created, ok := numberField(secret.Data, "creation_time"); ok {
		info.CreationTime = time.Unix(created, 0)
	}
	if maxTTL, ok := numberField(secret.Data, "explicit_max_ttl"); ok {
		info.ExplicitMaxTTL = time.Duration(maxTTL) * time.Second
	}
	if name, ok := secret.Data["display_name"].(string); ok {
		info.DisplayName = name
	}

	return info, nil
}

// RenewSelf renews the token currently installed. An increment of zero
// asks for the token's default TTL.
func (c *Client) RenewSelf(ctx context.Context, increment time.Duration) (*AuthResult, error) {
	secret, err := c.Auth().Token().RenewSelfWithContext(ctx, int(increment.Seconds()))
	if err != nil {
		return nil, classify("token renew", "auth/token/renew-self", err)
	}
	if secret == nil || secret.Auth == nil {
		return nil, fmt.Errorf("token renew returned no auth")
	}
	return authResult(secret.Auth), nil
}

// WritePolicy writes a policy to Vault
func (c *Client) WritePolicy(ctx context.Context, name, hcl string) error {
	if err := c.Sys().PutPolicyWithContext(ctx, name, hcl); err != nil {
		return classify("write policy", "sys/policies/acl/"+name, err)
	}
	return nil
}

// ReadPolicy reads a policy from Vault
func (c *Client) ReadPolicy(ctx context.Context, name string) (string, error) {
	policy, err := c.Sys().GetPolicyWithContext(ctx, name)
	if err != nil {
		return "", classify("read policy", "sys/policies/acl/"+name, err)
	}
	return policy, nil
}

// OrphanTokenRequest describes a token created through auth/token/create-orphan.
type OrphanTokenRequest struct {
	Policies       []string
	TTL            time.Duration
	ExplicitMaxTTL time.Duration
	DisplayName    string
	Renewable      bool
	Metadata       map[string]string
}

// CreateOrphanToken creates a token without a parent so it outlives the
// token that created it.
func (c *Client) CreateOrphanToken(ctx context.Context, req OrphanTokenRequest) (*AuthResult, error) {
	renewable := req.Renewable
	secret, err := c.Auth().Token().CreateOrphanWithContext(ctx, &api.TokenCreateRequest{
		Policies:       req.Policies,
		TTL:            req.TTL.String(),
		ExplicitMaxTTL: req.ExplicitMaxTTL.String(),
		DisplayName:    req.DisplayName,
		Renewable:      &renewable,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return nil, classify("create orphan token", "auth/token/create-orphan", err)
	}
	if secret == nil || secret.Auth == nil {
		return nil, fmt.Errorf("create orphan token returned no auth")
	}
	return authResult(secret.Auth), nil
}

func authResult(auth *api.SecretAuth) *AuthResult {
	return &AuthResult{
		ClientToken:   auth.ClientToken,
		LeaseDuration: time.Duration(auth.LeaseDuration) * time.Second,
		Renewable:     auth.Renewable,
		Policies:      auth.Policies,
	}
}

// numberField reads an integer field that the API decodes as json.Number.
func numberField(data map[string]interface{}, key string) (int64, bool) {
	switch v := data[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
