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

// Package config reads the secret store's host configuration from the
// process environment.
package config

import (
	"fmt"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-viper/mapstructure/v2"

	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/pkg/vault/token"
	"github.com/buun-ch/buun-stack/shared/events"
	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// Config is the host configuration of a secret store session. Field tags
// name the environment variables they are read from.
type Config struct {
	Username string `mapstructure:"JUPYTERHUB_USER"`

	VaultAddr       string `mapstructure:"VAULT_ADDR"`
	VaultSkipVerify bool   `mapstructure:"VAULT_SKIP_VERIFY"`
	VaultCACert     string `mapstructure:"VAULT_CACERT"`
	VaultMaxRetries int    `mapstructure:"VAULT_MAX_RETRIES"`
	KVMount         string `mapstructure:"SECRETSTORE_KV_MOUNT"`

	Mode               string        `mapstructure:"SECRETSTORE_MODE"`
	AutoRefresh        bool          `mapstructure:"SECRETSTORE_AUTO_REFRESH"`
	RefreshBuffer      time.Duration `mapstructure:"SECRETSTORE_REFRESH_BUFFER"`
	BackgroundInterval time.Duration `mapstructure:"SECRETSTORE_BACKGROUND_INTERVAL"`
	RequestTimeout     time.Duration `mapstructure:"SECRETSTORE_REQUEST_TIMEOUT"`
	ExportTokens       bool          `mapstructure:"SECRETSTORE_EXPORT_TOKENS"`

	LogLevel       string `mapstructure:"SECRETSTORE_LOG_LEVEL"`
	LegacyLogLevel string `mapstructure:"BUUNSTACK_LOG_LEVEL"`

	// LogLevelSet reports whether either log level variable was present.
	LogLevelSet bool `mapstructure:"-"`

	Refresh     RefreshSettings     `mapstructure:",squash"`
	Provisioned ProvisionedSettings `mapstructure:",squash"`
}

// RefreshSettings configure the self-refresh mode.
type RefreshSettings struct {
	AccessToken      string `mapstructure:"JUPYTERHUB_OIDC_ACCESS_TOKEN"`
	RefreshToken     string `mapstructure:"JUPYTERHUB_OIDC_REFRESH_TOKEN"`
	KeycloakHost     string `mapstructure:"KEYCLOAK_HOST"`
	KeycloakRealm    string `mapstructure:"KEYCLOAK_REALM"`
	ClientID         string `mapstructure:"KEYCLOAK_CLIENT_ID"`
	TokenURL         string `mapstructure:"KEYCLOAK_TOKEN_URL"`
	Issuer           string `mapstructure:"SECRETSTORE_OIDC_ISSUER"`
	DiscoverEndpoint bool   `mapstructure:"SECRETSTORE_OIDC_DISCOVERY"`
	VaultJWTRole     string `mapstructure:"VAULT_JWT_ROLE"`
	VaultJWTMount    string `mapstructure:"VAULT_JWT_MOUNT"`
}

// ProvisionedSettings configure the externally-provisioned mode.
type ProvisionedSettings struct {
	Token     string        `mapstructure:"NOTEBOOK_VAULT_TOKEN"`
	TokenFile string        `mapstructure:"NOTEBOOK_VAULT_TOKEN_FILE"`
	TTL       time.Duration `mapstructure:"NOTEBOOK_VAULT_TOKEN_TTL"`
	MaxTTL    time.Duration `mapstructure:"NOTEBOOK_VAULT_TOKEN_MAX_TTL"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		VaultMaxRetries:    2,
		KVMount:            vault.DefaultKVMount,
		Mode:               string(token.ModeRefresh),
		AutoRefresh:        true,
		RefreshBuffer:      token.DefaultRefreshBuffer,
		BackgroundInterval: token.DefaultBackgroundInterval,
		RequestTimeout:     token.DefaultRequestTimeout,
		ExportTokens:       true,
		Refresh: RefreshSettings{
			ClientID:      token.DefaultClientID,
			VaultJWTRole:  vault.DefaultJWTRole,
			VaultJWTMount: vault.DefaultJWTMount,
		},
		Provisioned: ProvisionedSettings{
			TTL:    token.DefaultProvisionedTTL,
			MaxTTL: token.DefaultProvisionedMaxTTL,
		},
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return FromMap(env)
}

// FromMap builds a configuration from key/value pairs named like the
// environment variables. Unset and empty values keep their defaults.
func FromMap(values map[string]string) (*Config, error) {
	input := make(map[string]interface{}, len(values))
	for k, v := range values {
		if strings.TrimSpace(v) != "" {
			input[k] = strings.TrimSpace(v)
		}
	}

	cfg := Defaults()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsHook(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return nil, infraerrors.NewConfigurationError("environment", err.Error())
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = cfg.LegacyLogLevel
	}
	cfg.LogLevelSet = cfg.LogLevel != ""
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// secondsHook accepts a bare integer as a number of seconds for duration
// fields.
func secondsHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		n, err := strconv.ParseInt(data.(string), 10, 64)
		if err != nil {
			return data, nil
		}
		return time.Duration(n) * time.Second, nil
	}
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	if c.Username == "" {
		return infraerrors.NewConfigurationError("JUPYTERHUB_USER", "username is required")
	}
	if strings.Contains(c.Username, "/") || strings.Contains(c.Username, "..") {
		return infraerrors.NewConfigurationError("JUPYTERHUB_USER", "username must be a single path segment")
	}
	if c.VaultAddr == "" {
		return infraerrors.NewConfigurationError("VAULT_ADDR", "vault address is required")
	}
	mode, err := token.ParseMode(c.Mode)
	if err != nil {
		return infraerrors.NewConfigurationError("SECRETSTORE_MODE", err.Error())
	}
	if c.VaultMaxRetries < 0 {
		return infraerrors.NewConfigurationError("VAULT_MAX_RETRIES", "must be >= 0")
	}
	for setting, d := range map[string]time.Duration{
		"SECRETSTORE_REFRESH_BUFFER":      c.RefreshBuffer,
		"SECRETSTORE_BACKGROUND_INTERVAL": c.BackgroundInterval,
		"SECRETSTORE_REQUEST_TIMEOUT":     c.RequestTimeout,
	} {
		if d <= 0 {
			return infraerrors.NewConfigurationError(setting, "must be a positive duration")
		}
	}

	switch mode {
	case token.ModeRefresh:
		if c.Refresh.AccessToken == "" && c.Refresh.RefreshToken == "" {
			return infraerrors.NewConfigurationError("JUPYTERHUB_OIDC_ACCESS_TOKEN",
				"an access token or refresh token is required in refresh mode")
		}
	case token.ModeProvisioned:
		if c.Provisioned.TTL <= 0 || c.Provisioned.MaxTTL < c.Provisioned.TTL {
			return infraerrors.NewConfigurationError("NOTEBOOK_VAULT_TOKEN_MAX_TTL",
				"max TTL must be positive and not shorter than the TTL")
		}
	}
	return nil
}

// TokenMode returns the validated mode.
func (c *Config) TokenMode() token.Mode {
	mode, _ := token.ParseMode(c.Mode)
	return mode
}

// BasePath is the user's namespace under the KV mount.
func (c *Config) BasePath() string {
	return "jupyter/users/" + c.Username
}

// Identity labels events emitted for this session.
func (c *Config) Identity() events.SessionInfo {
	return events.SessionInfo{
		Username:     c.Username,
		Mode:         string(c.TokenMode()),
		VaultAddress: c.VaultAddr,
	}
}

// VaultClientConfig returns the Vault client settings.
func (c *Config) VaultClientConfig() vault.ClientConfig {
	cfg := vault.ClientConfig{
		Address:    c.VaultAddr,
		Timeout:    c.RequestTimeout,
		MaxRetries: c.VaultMaxRetries,
	}
	if c.VaultSkipVerify || c.VaultCACert != "" {
		cfg.TLSConfig = &vault.TLSConfig{CACert: c.VaultCACert, SkipVerify: c.VaultSkipVerify}
	}
	return cfg
}

// RefreshConfig returns the self-refresh manager settings. A nil
// httpClient gets one bounded by RequestTimeout.
func (c *Config) RefreshConfig(httpClient *http.Client) token.RefreshConfig {
	return token.RefreshConfig{
		AccessToken:       c.Refresh.AccessToken,
		RefreshToken:      c.Refresh.RefreshToken,
		AutoRefresh:       c.AutoRefresh,
		RefreshBuffer:     c.RefreshBuffer,
		TokenURL:          c.Refresh.TokenURL,
		KeycloakHost:      c.Refresh.KeycloakHost,
		KeycloakRealm:     c.Refresh.KeycloakRealm,
		Issuer:            c.Refresh.Issuer,
		DiscoverEndpoint:  c.Refresh.DiscoverEndpoint,
		ClientID:          c.Refresh.ClientID,
		VaultRole:         c.Refresh.VaultJWTRole,
		VaultMount:        c.Refresh.VaultJWTMount,
		ExportEnvironment: c.ExportTokens,
		HTTPClient:        httpClient,
		RequestTimeout:    c.RequestTimeout,
		Identity:          c.Identity(),
	}
}

// ProvisionedConfig returns the provisioned manager settings. The token
// comes from source when given, else NOTEBOOK_VAULT_TOKEN, else the token
// file.
func (c *Config) ProvisionedConfig(source token.TokenSource, log logr.Logger) token.ProvisionedConfig {
	if source == nil {
		if c.Provisioned.Token != "" {
			source = token.NewStaticTokenSource(c.Provisioned.Token, "NOTEBOOK_VAULT_TOKEN")
		} else {
			source = token.NewFileTokenSource(c.Provisioned.TokenFile, log)
		}
	}
	return token.ProvisionedConfig{
		Source:   source,
		TTL:      c.Provisioned.TTL,
		MaxTTL:   c.Provisioned.MaxTTL,
		Identity: c.Identity(),
	}
}

// BackgroundConfig returns the background refresher settings.
func (c *Config) BackgroundConfig() token.BackgroundConfig {
	return token.BackgroundConfig{
		Interval: c.BackgroundInterval,
		Identity: c.Identity(),
	}
}
