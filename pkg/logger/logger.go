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

// Package logger provides structured logging utilities for the secret store.
// It defines standard log fields and helper functions for consistent logging across
// the token lifecycle, the Vault session and the secret operations.
package logger

import (
	"context"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Standard log field keys for consistent structured logging.
// Using consistent keys makes log aggregation and querying much easier.
const (
	// KeyUser identifies the user owning the secret namespace
	KeyUser = "user"

	// KeySecret identifies the namespace-relative secret key
	KeySecret = "secret"

	// KeyField identifies a single field inside a secret
	KeyField = "field"

	// KeyVaultPath identifies the Vault path being accessed
	KeyVaultPath = "vaultPath"

	// KeyVaultRole identifies the Vault JWT role name
	KeyVaultRole = "vaultRole"

	// KeyMode identifies the token lifecycle mode
	KeyMode = "mode"

	// KeyOperation identifies the operation being performed (put, get, delete, list)
	KeyOperation = "operation"

	// KeyDuration records the time taken for an operation
	KeyDuration = "duration"

	// KeyExpiresAt records when the current credential expires
	KeyExpiresAt = "expiresAt"

	// KeyError includes error details
	KeyError = "error"

	// KeyRetryCount tracks retry attempts
	KeyRetryCount = "retryCount"
)

// Operation types for logging
const (
	OpPut          = "put"
	OpGet          = "get"
	OpDelete       = "delete"
	OpDeleteField  = "delete-field"
	OpList         = "list"
	OpListFields   = "list-fields"
	OpRefresh      = "refresh"
	OpAuthenticate = "authenticate"
	OpRenew        = "renew"
)

// Log levels accepted by New.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// New builds a zap-backed logr.Logger at the given level.
// Unknown levels fall back to info.
func New(level string) logr.Logger {
	return zap.New(
		zap.UseDevMode(false),
		zap.Level(parseLevel(level)),
	)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn, "warning":
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// OperationLogger wraps a logr.Logger with context for a single secret operation.
type OperationLogger struct {
	logr.Logger
	startTime time.Time
}

// NewOperationLogger creates a logger with standard operation context.
// This should be called at the beginning of each secret store operation.
func NewOperationLogger(base logr.Logger, op, secret string) *OperationLogger {
	l := base.WithValues(KeyOperation, op)
	if secret != "" {
		l = l.WithValues(KeySecret, secret)
	}

	return &OperationLogger{
		Logger:    l,
		startTime: time.Now(),
	}
}

// WithVaultPath returns a new logger with Vault path context added.
func (r *OperationLogger) WithVaultPath(path string) *OperationLogger {
	return &OperationLogger{
		Logger:    r.Logger.WithValues(KeyVaultPath, path),
		startTime: r.startTime,
	}
}

// WithRetryCount returns a new logger with retry count added.
func (r *OperationLogger) WithRetryCount(count int) *OperationLogger {
	return &OperationLogger{
		Logger:    r.Logger.WithValues(KeyRetryCount, count),
		startTime: r.startTime,
	}
}

// Duration returns the elapsed time since the logger was created.
func (r *OperationLogger) Duration() time.Duration {
	return time.Since(r.startTime)
}

// InfoWithDuration logs an info message with the elapsed duration.
func (r *OperationLogger) InfoWithDuration(msg string, keysAndValues ...interface{}) {
	r.Info(msg, append(keysAndValues, KeyDuration, r.Duration().String())...)
}

// ErrorWithDuration logs an error with the elapsed duration.
func (r *OperationLogger) ErrorWithDuration(err error, msg string, keysAndValues ...interface{}) {
	r.Error(err, msg, append(keysAndValues, KeyDuration, r.Duration().String())...)
}

// V returns a logger at the specified verbosity level.
func (r *OperationLogger) V(level int) *OperationLogger {
	return &OperationLogger{
		Logger:    r.Logger.V(level),
		startTime: r.startTime,
	}
}

// WithValues returns a new logger with additional key-value pairs.
func (r *OperationLogger) WithValues(keysAndValues ...interface{}) *OperationLogger {
	return &OperationLogger{
		Logger:    r.Logger.WithValues(keysAndValues...),
		startTime: r.startTime,
	}
}

// LogSuccess logs successful completion of the operation.
func (r *OperationLogger) LogSuccess() {
	r.InfoWithDuration("secret operation completed")
}

// LogFailure logs a failed operation.
func (r *OperationLogger) LogFailure(err error) {
	r.ErrorWithDuration(err, "secret operation failed")
}

// LogReauthenticate logs the single re-authentication before a retry.
func (r *OperationLogger) LogReauthenticate(err error) {
	r.Info("permission denied, re-authenticating", KeyError, err.Error())
}

// FromContext extracts a logger from context.
// Falls back to a background logger if none is found.
func FromContext(ctx context.Context, keysAndValues ...interface{}) logr.Logger {
	return log.FromContext(ctx, keysAndValues...)
}

// IntoContext stores a logger in the context.
func IntoContext(ctx context.Context, l logr.Logger) context.Context {
	return log.IntoContext(ctx, l)
}

// WithOperation adds operation context to an existing logger.
func WithOperation(l logr.Logger, op string) logr.Logger {
	return l.WithValues(KeyOperation, op)
}

// WithVaultPath adds Vault path context to an existing logger.
func WithVaultPath(l logr.Logger, path string) logr.Logger {
	return l.WithValues(KeyVaultPath, path)
}

// WithUser adds the session user to an existing logger.
func WithUser(l logr.Logger, user string) logr.Logger {
	return l.WithValues(KeyUser, user)
}

// WithDuration adds duration context to an existing logger.
func WithDuration(l logr.Logger, d time.Duration) logr.Logger {
	return l.WithValues(KeyDuration, d.String())
}
