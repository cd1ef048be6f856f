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
package token

import (
	"context"
	"strings"
)

// TokenSource defines the strategy interface for obtaining a provisioned
// Vault token. Implementations include StaticTokenSource (a value handed
// over by the spawner, usually through the environment) and FileTokenSource
// (a token injected into the container filesystem).
//
// The ProvisionedManager works with any TokenSource without knowing where
// the token comes from.
//
// # Thread Safety
//
// Implementations must be thread-safe and support concurrent Token calls.
type TokenSource interface {
	// Token returns the Vault token. An empty token is an error.
	Token(ctx context.Context) (string, error)

	// Describe names the source for diagnostics without revealing the token.
	Describe() string
}

// StaticTokenSource returns a fixed token.
type StaticTokenSource struct {
	token string
	name  string
}

// NewStaticTokenSource creates a StaticTokenSource. name describes where the
// value came from, e.g. an environment variable.
func NewStaticTokenSource(token, name string) *StaticTokenSource {
	return &StaticTokenSource{token: strings.TrimSpace(token), name: name}
}

// Token implements TokenSource.
func (s *StaticTokenSource) Token(_ context.Context) (string, error) {
	if s.token == "" {
		return "", errEmptyToken(s.Describe())
	}
	return s.token, nil
}

// Describe implements TokenSource.
func (s *StaticTokenSource) Describe() string {
	if s.name == "" {
		return "static token"
	}
	return s.name
}

var _ TokenSource = (*StaticTokenSource)(nil)
