// Package vaulttest provides an in-memory Vault HTTP server for tests. It
// implements the subset of the API the secret store uses: JWT login, token
// lookup/renew/create-orphan, ACL policies and a KV version 2 engine.
package vaulttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"
)

// KVMount is the mount the fake KV v2 engine answers on.
const KVMount = "secret"

// Token is a token known to the fake server.
type Token struct {
	ID             string
	TTL            time.Duration
	Renewable      bool
	CreatedAt      time.Time
	ExplicitMaxTTL time.Duration
	Policies       []string
	DisplayName    string
	Orphan         bool
}

// Server is a fake Vault. The zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	secrets      map[string]map[string]interface{}
	tokens       map[string]*Token
	policies     map[string]string
	jwtValidator func(jwt string) bool
	denyNext     int
	failNext     int
	nextID       int

	logins    int
	lookups   int
	renewals  int
	kvCalls   int
	lastLogin loginRequest
}

type loginRequest struct {
	Mount string
	Role  string
	JWT   string
}

// NewServer starts a fake Vault. It is closed by t.Cleanup in callers.
func NewServer() *Server {
	s := &Server{
		secrets:  make(map[string]map[string]interface{}),
		tokens:   make(map[string]*Token),
		policies: make(map[string]string),
		jwtValidator: func(jwt string) bool {
			return jwt != ""
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddToken registers a token the server accepts.
func (s *Server) AddToken(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now()
	}
	t := tok
	s.tokens[tok.ID] = &t
}

// Revoke makes every later request with the token fail with 403.
func (s *Server) Revoke(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
}

// RevokeAll invalidates every token issued or registered so far.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]*Token)
}

// SetJWTValidator decides which JWTs the login endpoint accepts.
func (s *Server) SetJWTValidator(fn func(jwt string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jwtValidator = fn
}

// DenyNext makes the next n KV requests fail with 403 regardless of token.
func (s *Server) DenyNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denyNext = n
}

// FailNext makes the next n KV requests fail with 503.
func (s *Server) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Logins returns the number of successful JWT logins.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// LastLogin returns the mount, role and JWT of the most recent login request.
func (s *Server) LastLogin() (mount, role, jwt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLogin.Mount, s.lastLogin.Role, s.lastLogin.JWT
}

// Lookups returns the number of lookup-self calls.
func (s *Server) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// Renewals returns the number of successful renew-self calls.
func (s *Server) Renewals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renewals
}

// KVCalls returns the number of requests that reached the KV engine.
func (s *Server) KVCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kvCalls
}

// Policy returns a stored ACL policy.
func (s *Server) Policy(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[name]
	return p, ok
}

// LookupToken returns a copy of a known token.
func (s *Server) LookupToken(id string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return Token{}, false
	}
	return *t, true
}

// Secret returns the stored data of a record, path relative to the mount.
func (s *Server) Secret(path string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.secrets[strings.Trim(path, "/")]
	return d, ok
}

// SetSecret stores raw record data, bypassing authentication.
func (s *Server) SetSecret(path string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[strings.Trim(path, "/")] = data
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/")

	switch {
	case path == "sys/health":
		writeJSON(w, http.StatusOK, map[string]interface{}{"initialized": true, "sealed": false, "version": "1.15.0"})
	case strings.HasPrefix(path, "auth/") && strings.HasSuffix(path, "/login"):
		s.handleLogin(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "auth/"), "/login"))
	case path == "auth/token/lookup-self":
		s.handleLookupSelf(w, r)
	case path == "auth/token/renew-self":
		s.handleRenewSelf(w, r)
	case path == "auth/token/create-orphan":
		s.handleCreateOrphan(w, r)
	case strings.HasPrefix(path, "sys/policies/acl/"):
		s.handlePolicy(w, r, strings.TrimPrefix(path, "sys/policies/acl/"))
	case strings.HasPrefix(path, KVMount+"/data/"):
		s.handleData(w, r, strings.TrimPrefix(path, KVMount+"/data/"))
	case strings.HasPrefix(path, KVMount+"/metadata/") || path == KVMount+"/metadata":
		s.handleMetadata(w, r, strings.TrimPrefix(strings.TrimPrefix(path, KVMount+"/metadata"), "/"))
	default:
		writeErrors(w, http.StatusNotFound, "no handler for route "+path)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, mount string) {
	var body struct {
		Role string `json:"role"`
		JWT  string `json:"jwt"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLogin = loginRequest{Mount: mount, Role: body.Role, JWT: body.JWT}

	if !s.jwtValidator(body.JWT) {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	s.logins++
	tok := s.issueLocked(Token{TTL: time.Hour, Renewable: true, Policies: []string{"default"}})
	writeJSON(w, http.StatusOK, map[string]interface{}{"auth": authBody(tok)})
}

func (s *Server) handleLookupSelf(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++

	tok, ok := s.tokens[r.Header.Get("X-Vault-Token")]
	if !ok {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"id":               tok.ID,
			"ttl":              int64(tok.TTL.Seconds()),
			"renewable":        tok.Renewable,
			"creation_time":    tok.CreatedAt.Unix(),
			"explicit_max_ttl": int64(tok.ExplicitMaxTTL.Seconds()),
			"policies":         tok.Policies,
			"display_name":     tok.DisplayName,
			"orphan":           tok.Orphan,
		},
	})
}

func (s *Server) handleRenewSelf(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[r.Header.Get("X-Vault-Token")]
	if !ok {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}
	if !tok.Renewable {
		writeErrors(w, http.StatusBadRequest, "lease is not renewable")
		return
	}
	s.renewals++
	tok.TTL = 24 * time.Hour
	if tok.ExplicitMaxTTL > 0 && tok.TTL > tok.ExplicitMaxTTL {
		tok.TTL = tok.ExplicitMaxTTL
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"auth": authBody(tok)})
}

func (s *Server) handleCreateOrphan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Policies       []string `json:"policies"`
		TTL            string   `json:"ttl"`
		ExplicitMaxTTL string   `json:"explicit_max_ttl"`
		DisplayName    string   `json:"display_name"`
		Renewable      *bool    `json:"renewable"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[r.Header.Get("X-Vault-Token")]; !ok {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	ttl, err := time.ParseDuration(body.TTL)
	if err != nil {
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("invalid ttl %q", body.TTL))
		return
	}
	maxTTL, _ := time.ParseDuration(body.ExplicitMaxTTL)

	tok := s.issueLocked(Token{
		TTL:            ttl,
		Renewable:      body.Renewable == nil || *body.Renewable,
		ExplicitMaxTTL: maxTTL,
		Policies:       body.Policies,
		DisplayName:    "token-" + body.DisplayName,
		Orphan:         true,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"auth": authBody(tok)})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[r.Header.Get("X-Vault-Token")]; !ok {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, ok := s.policies[name]
		if !ok {
			writeErrors(w, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"name": name, "policy": p}})
	default:
		var body struct {
			Policy string `json:"policy"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.policies[name] = body.Policy
		w.WriteHeader(http.StatusNoContent)
	}
}

// kvGateLocked applies injected failures and token checks. It reports
// whether the request may proceed.
func (s *Server) kvGateLocked(w http.ResponseWriter, r *http.Request) bool {
	s.kvCalls++
	if s.failNext > 0 {
		s.failNext--
		writeErrors(w, http.StatusServiceUnavailable, "Vault is sealed")
		return false
	}
	if s.denyNext > 0 {
		s.denyNext--
		writeErrors(w, http.StatusForbidden, "permission denied")
		return false
	}
	if _, ok := s.tokens[r.Header.Get("X-Vault-Token")]; !ok {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request, path string) {
	path = strings.Trim(path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.kvGateLocked(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, ok := s.secrets[path]
		if !ok {
			writeErrors(w, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"data":     data,
				"metadata": map[string]interface{}{"version": 1},
			},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		s.secrets[path] = body.Data
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"version": 1}})
	default:
		writeErrors(w, http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request, path string) {
	path = strings.Trim(path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.kvGateLocked(w, r) {
		return
	}

	switch {
	case r.Method == http.MethodDelete:
		delete(s.secrets, path)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == "LIST" || r.URL.Query().Get("list") == "true":
		keys := s.childrenLocked(path)
		if len(keys) == 0 {
			writeErrors(w, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"keys": keys}})
	default:
		if _, ok := s.secrets[path]; !ok {
			writeErrors(w, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"current_version": 1}})
	}
}

func (s *Server) childrenLocked(prefix string) []string {
	seen := make(map[string]bool)
	for p := range s.secrets {
		rest := p
		if prefix != "" {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			rest = strings.TrimPrefix(p, prefix+"/")
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) issueLocked(tok Token) *Token {
	s.nextID++
	tok.ID = fmt.Sprintf("hvs.test-%d", s.nextID)
	tok.CreatedAt = time.Now()
	t := tok
	s.tokens[t.ID] = &t
	return &t
}

func authBody(tok *Token) map[string]interface{} {
	return map[string]interface{}{
		"client_token":   tok.ID,
		"policies":       tok.Policies,
		"lease_duration": int64(tok.TTL.Seconds()),
		"renewable":      tok.Renewable,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrors(w http.ResponseWriter, status int, errs ...string) {
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, status, map[string]interface{}{"errors": errs})
}
