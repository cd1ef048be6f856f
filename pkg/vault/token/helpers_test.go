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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/pkg/vault/vaulttest"
)

// fakeIdP is an OAuth2 token endpoint with optional OIDC discovery.
type fakeIdP struct {
	*httptest.Server

	mu            sync.Mutex
	requests      int
	lastForm      map[string]string
	status        int
	rotate        bool
	lifetime      time.Duration
	delay         time.Duration
	issued        int
	discoveryHits int
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{status: http.StatusOK, rotate: true, lifetime: time.Hour}
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/buunstack/protocol/openid-connect/token", idp.handleToken)
	mux.HandleFunc("/token", idp.handleToken)
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		idp.mu.Lock()
		idp.discoveryHits++
		idp.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 idp.URL,
			"authorization_endpoint": idp.URL + "/auth",
			"token_endpoint":         idp.URL + "/token",
			"jwks_uri":               idp.URL + "/certs",
		})
	})
	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Close)
	return idp
}

func (f *fakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	f.mu.Lock()
	f.requests++
	delay := f.delay
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastForm = map[string]string{
		"grant_type":    r.PostForm.Get("grant_type"),
		"refresh_token": r.PostForm.Get("refresh_token"),
		"client_id":     r.PostForm.Get("client_id"),
	}

	w.Header().Set("Content-Type", "application/json")
	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Token is not active",
		})
		return
	}

	f.issued++
	body := map[string]interface{}{
		"access_token": signedToken(time.Now().Add(f.lifetime)),
		"token_type":   "Bearer",
		"expires_in":   int(f.lifetime.Seconds()),
	}
	if f.rotate {
		body["refresh_token"] = fmt.Sprintf("refresh-%d", f.issued)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeIdP) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeIdP) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeIdP) form() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm
}

// signedToken returns an HS256 JWT expiring at exp. Vault and the manager
// never verify the signature.
func signedToken(exp time.Time) string {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	}).SignedString([]byte("test"))
	if err != nil {
		panic(err)
	}
	return s
}

func newVaultFixture(t *testing.T) (*vaulttest.Server, *vault.Client) {
	t.Helper()
	server := vaulttest.NewServer()
	t.Cleanup(server.Close)

	client, err := vault.NewClient(vault.ClientConfig{Address: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return server, client
}

func (f *fakeIdP) setRotate(rotate bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotate = rotate
}

func (f *fakeIdP) discoveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.discoveryHits
}

func (f *fakeIdP) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}
