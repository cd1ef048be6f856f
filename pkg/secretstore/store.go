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
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/buun-ch/buun-stack/pkg/config"
	"github.com/buun-ch/buun-stack/pkg/logger"
	"github.com/buun-ch/buun-stack/pkg/metrics"
	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/pkg/vault/token"
	"github.com/buun-ch/buun-stack/shared/events"
	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// Store reads and writes secret records under the user's base path.
//
// # Records
//
// A record is a set of string fields written and read as a whole. Record
// paths are relative to the base path and may contain "/" but not "..".
// A record left without fields is deleted rather than stored empty.
//
// # Retries
//
// Every operation authenticates first. If that refresh or login fails, the
// call returns the *errors.AuthError without attempting the operation. When
// Vault denies the operation the Store forces one re-authentication and
// retries the operation once; a second denial is returned as a terminal
// *errors.AuthError.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Store struct {
	cfg      *config.Config
	session  *Session
	kv       *vault.KV
	bus      *events.EventBus
	identity events.SessionInfo
	log      logr.Logger

	mu        sync.Mutex
	refresher *token.BackgroundRefresher
}

// New builds a Store from cfg without registering it as the process-wide
// instance. A nil cfg is loaded from the environment. New does not contact
// Vault; the first operation authenticates.
func New(cfg *config.Config, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !o.logSet && cfg.LogLevelSet {
		o.log = logger.New(cfg.LogLevel)
	}

	client, err := vault.NewClient(cfg.VaultClientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	log := o.log.WithName("secretstore").WithValues(logger.KeyUser, cfg.Username)

	var manager token.Manager
	switch cfg.TokenMode() {
	case token.ModeProvisioned:
		manager = token.NewProvisionedManager(cfg.ProvisionedConfig(o.tokenSource, log), client, publisher(o.bus), log)
	default:
		manager = token.NewRefreshManager(cfg.RefreshConfig(o.httpClient), client, log)
	}

	s := &Store{
		cfg:      cfg,
		session:  NewSession(client, manager, log),
		kv:       client.KV(cfg.KVMount),
		bus:      o.bus,
		identity: cfg.Identity(),
		log:      log,
	}
	log.V(1).Info("secret store created", logger.KeyMode, manager.Mode(), "basePath", cfg.BasePath())
	return s, nil
}

// publisher keeps a nil bus a nil interface.
func publisher(bus *events.EventBus) token.EventPublisher {
	if bus == nil {
		return nil
	}
	return bus
}

// Session returns the Store's Vault session.
func (s *Store) Session() *Session {
	return s.session
}

// BasePath returns the user's namespace under the KV mount.
func (s *Store) BasePath() string {
	return s.cfg.BasePath()
}

// Put writes fields as the whole content of the record at path.
func (s *Store) Put(ctx context.Context, path string, fields map[string]string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return infraerrors.NewValidationError("fields", "{}", "at least one field must be provided")
	}
	for name := range fields {
		if strings.TrimSpace(name) == "" {
			return infraerrors.NewValidationError("fields", name, "field names must not be empty")
		}
	}

	record := make(map[string]string, len(fields))
	for k, v := range fields {
		record[k] = v
	}

	err = s.do(ctx, logger.OpPut, path, func(ctx context.Context) error {
		return s.kv.Write(ctx, s.recordPath(path), record)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.NewSecretWritten(s.identity, path, sortedKeys(record)))
	return nil
}

// Get returns every field of the record at path.
func (s *Store) Get(ctx context.Context, path string) (map[string]string, error) {
	path, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	var fields map[string]string
	err = s.do(ctx, logger.OpGet, path, func(ctx context.Context) error {
		var rerr error
		fields, rerr = s.read(ctx, path)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// GetField returns one field of the record at path.
func (s *Store) GetField(ctx context.Context, path, field string) (string, error) {
	fields, err := s.Get(ctx, path)
	if err != nil {
		return "", err
	}
	value, ok := fields[field]
	if !ok {
		return "", infraerrors.NewFieldNotFoundError(path, field)
	}
	return value, nil
}

// Delete removes the record at path with all of its versions.
func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}

	err = s.do(ctx, logger.OpDelete, path, func(ctx context.Context) error {
		if _, rerr := s.read(ctx, path); rerr != nil {
			return rerr
		}
		return s.kv.Delete(ctx, s.recordPath(path))
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.NewSecretDeleted(s.identity, path))
	return nil
}

// DeleteField removes one field of the record at path. Removing the last
// field deletes the record.
func (s *Store) DeleteField(ctx context.Context, path, field string) error {
	path, err := cleanPath(path)
	if err != nil {
		return err
	}

	var remaining map[string]string
	err = s.do(ctx, logger.OpDeleteField, path, func(ctx context.Context) error {
		fields, rerr := s.read(ctx, path)
		if rerr != nil {
			return rerr
		}
		if _, ok := fields[field]; !ok {
			return infraerrors.NewFieldNotFoundError(path, field)
		}
		delete(fields, field)
		remaining = fields

		if len(fields) == 0 {
			return s.kv.Delete(ctx, s.recordPath(path))
		}
		return s.kv.Write(ctx, s.recordPath(path), fields)
	})
	if err != nil {
		return err
	}

	if len(remaining) == 0 {
		s.publish(ctx, events.NewSecretDeleted(s.identity, path))
	} else {
		s.publish(ctx, events.NewSecretWritten(s.identity, path, sortedKeys(remaining)))
	}
	return nil
}

// List returns the sorted names of the records directly under the base
// path. Names ending in "/" are folders of nested records.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.do(ctx, logger.OpList, "", func(ctx context.Context) error {
		var lerr error
		names, lerr = s.kv.List(ctx, s.cfg.BasePath())
		return lerr
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// ListFields returns the sorted field names of the record at path.
func (s *Store) ListFields(ctx context.Context, path string) ([]string, error) {
	fields, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return sortedKeys(fields), nil
}

// StartBackgroundRefresh starts refreshing the session credential
// periodically. It is a no-op while the refresher runs.
func (s *Store) StartBackgroundRefresh() error {
	if s.session.Manager().Mode() == token.ModeProvisioned {
		return infraerrors.NewConfigurationError("SECRETSTORE_MODE",
			"background refresh is not available for provisioned tokens")
	}
	if !s.cfg.AutoRefresh {
		return infraerrors.NewConfigurationError("SECRETSTORE_AUTO_REFRESH",
			"background refresh requires auto-refresh")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refresher == nil {
		s.refresher = token.NewBackgroundRefresher(s.session, s.cfg.BackgroundConfig(), publisher(s.bus), s.log)
	}
	return s.refresher.Start()
}

// StopBackgroundRefresh stops the background refresher and waits for it to
// exit. It is a no-op when the refresher is not running.
func (s *Store) StopBackgroundRefresh() error {
	if s.session.Manager().Mode() == token.ModeProvisioned {
		return infraerrors.NewConfigurationError("SECRETSTORE_MODE",
			"background refresh is not available for provisioned tokens")
	}
	return s.stopRefresher()
}

// Close releases background resources. The Store must not be used after
// Close.
func (s *Store) Close() error {
	return s.stopRefresher()
}

func (s *Store) stopRefresher() error {
	s.mu.Lock()
	r := s.refresher
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Stop()
}

// do runs fn authenticated, retrying once after a forced re-authentication
// when Vault denies it.
func (s *Store) do(ctx context.Context, op, secret string, fn func(ctx context.Context) error) error {
	olog := logger.NewOperationLogger(s.log, op, secret)
	if secret != "" {
		olog = olog.WithVaultPath(s.kv.DataPath(s.recordPath(secret)))
	}

	err := s.session.EnsureAuthenticated(ctx, false)
	if err == nil {
		err = fn(ctx)
		if infraerrors.IsPermissionDeniedError(err) {
			olog.WithRetryCount(1).LogReauthenticate(err)
			metrics.IncrementOperationRetry(op)
			err = s.retry(ctx, op, fn)
		}
	}

	if err != nil {
		metrics.IncrementOperation(op, false)
		if expected(err) {
			olog.V(1).InfoWithDuration("secret operation failed", logger.KeyError, err.Error())
		} else {
			olog.LogFailure(err)
		}
		return err
	}

	metrics.IncrementOperation(op, true)
	olog.V(1).LogSuccess()
	return nil
}

func (s *Store) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := s.session.EnsureAuthenticated(ctx, true); err != nil {
		return err
	}
	err := fn(ctx)
	if infraerrors.IsPermissionDeniedError(err) {
		return infraerrors.NewTerminalAuthError(op, "permission denied after re-authentication", err)
	}
	return err
}

// expected reports errors that describe the caller's input rather than a
// fault, and are logged at debug level.
func expected(err error) bool {
	return infraerrors.IsNotFoundError(err) ||
		infraerrors.IsFieldNotFoundError(err) ||
		infraerrors.IsValidationError(err)
}

func (s *Store) read(ctx context.Context, path string) (map[string]string, error) {
	fields, found, err := s.kv.Read(ctx, s.recordPath(path))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, infraerrors.NewNotFoundError("secret", path, s.cfg.BasePath())
	}
	return fields, nil
}

func (s *Store) recordPath(path string) string {
	return s.cfg.BasePath() + "/" + path
}

func (s *Store) publish(ctx context.Context, event events.Event) {
	if err := s.bus.Publish(ctx, event); err != nil {
		s.log.Error(err, "event handler failed", "eventType", event.Type())
	}
}

// cleanPath trims surrounding slashes and rejects paths that are empty or
// escape the base path.
func cleanPath(path string) (string, error) {
	cleaned := strings.Trim(strings.TrimSpace(path), "/")
	if cleaned == "" {
		return "", infraerrors.NewValidationError("path", path, "secret path must not be empty")
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." || segment == "." || segment == "" {
			return "", infraerrors.NewValidationError("path", path, "secret path must not contain empty, '.' or '..' segments")
		}
	}
	return cleaned, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
