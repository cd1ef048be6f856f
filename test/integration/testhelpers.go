package integration

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Shared test state, set up in BeforeSuite.
var (
	vaultContainer *VaultTestContainer
	suiteCtx       context.Context
	suiteCancel    context.CancelFunc
	idp            *IdentityProvider
)

// Audience is the client the test identity provider issues tokens to.
const Audience = "jupyterhub"

// IntegrationEnabled reports whether integration tests were requested.
func IntegrationEnabled() bool {
	return os.Getenv("SECRETSTORE_INTEGRATION") == "1"
}

// IsDockerAvailable checks if Docker daemon is running and accessible.
// Returns true if Docker is available, false otherwise.
func IsDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// IdentityProvider issues RS256 access tokens Vault's JWT auth can verify,
// and serves an OAuth2 refresh-token endpoint at /token.
type IdentityProvider struct {
	*httptest.Server
	key *rsa.PrivateKey

	mu       sync.Mutex
	requests int
}

// NewIdentityProvider starts an IdentityProvider with a fresh signing key.
func NewIdentityProvider() (*IdentityProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	p := &IdentityProvider{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.handleToken)
	p.Server = httptest.NewServer(mux)
	return p, nil
}

// Issuer is the iss claim of every token.
func (p *IdentityProvider) Issuer() string {
	return p.URL
}

// PublicKeyPEM returns the verification key for Vault's JWT auth config.
func (p *IdentityProvider) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&p.key.PublicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// AccessToken signs an access token for username expiring at exp.
func (p *IdentityProvider) AccessToken(username string, exp time.Time) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                p.Issuer(),
		"aud":                Audience,
		"sub":                "user-" + username,
		"preferred_username": username,
		"iat":                time.Now().Unix(),
		"exp":                exp.Unix(),
	}).SignedString(p.key)
}

// Requests returns how many refresh grants were served.
func (p *IdentityProvider) Requests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

func (p *IdentityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.requests++
	n := p.requests
	p.mu.Unlock()

	// Refresh tokens are "<username>:<n>".
	username, _, _ := strings.Cut(r.PostForm.Get("refresh_token"), ":")

	access, err := p.AccessToken(username, time.Now().Add(time.Hour))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token":  access,
		"refresh_token": fmt.Sprintf("%s:%d", username, n),
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}
