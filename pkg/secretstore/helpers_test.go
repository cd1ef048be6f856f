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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/buun-ch/buun-stack/pkg/config"
	"github.com/buun-ch/buun-stack/pkg/vault/vaulttest"
)

// tokenEndpoint is a fake identity provider token endpoint.
type tokenEndpoint struct {
	*httptest.Server

	mu       sync.Mutex
	requests int
	status   int
	delay    time.Duration
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	t.Helper()
	e := &tokenEndpoint{status: http.StatusOK}
	e.Server = httptest.NewServer(http.HandlerFunc(e.handle))
	t.Cleanup(e.Close)
	return e
}

func (e *tokenEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	e.requests++
	n := e.requests
	status := e.status
	delay := e.delay
	e.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  signedToken(time.Now().Add(time.Hour)),
		"refresh_token": fmt.Sprintf("refresh-%d", n),
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (e *tokenEndpoint) setStatus(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
}

func (e *tokenEndpoint) setDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

func (e *tokenEndpoint) requestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests
}

func signedToken(exp time.Time) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	}).SignedString([]byte("test"))
	if err != nil {
		panic(err)
	}
	return s
}

type fixture struct {
	vault *vaulttest.Server
	idp   *tokenEndpoint
	store *Store
}

// newFixture builds a refresh-mode Store for alice whose access token
// expires at expiry. overrides replace or add configuration values.
func newFixture(t *testing.T, expiry time.Time, overrides map[string]string, opts ...Option) *fixture {
	t.Helper()

	server := vaulttest.NewServer()
	t.Cleanup(server.Close)
	idp := newTokenEndpoint(t)

	env := map[string]string{
		"JUPYTERHUB_USER":               "alice",
		"VAULT_ADDR":                    server.URL,
		"VAULT_MAX_RETRIES":             "0",
		"JUPYTERHUB_OIDC_ACCESS_TOKEN":  signedToken(expiry),
		"JUPYTERHUB_OIDC_REFRESH_TOKEN": "refresh-0",
		"KEYCLOAK_TOKEN_URL":            idp.URL + "/token",
		"SECRETSTORE_EXPORT_TOKENS":     "false",
		"SECRETSTORE_REQUEST_TIMEOUT":   "5s",
	}
	for k, v := range overrides {
		env[k] = v
	}

	cfg, err := config.FromMap(env)
	if err != nil {
		t.Fatalf("config.FromMap() error = %v", err)
	}
	store, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return &fixture{vault: server, idp: idp, store: store}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
