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

// Package errors provides domain-specific error types for the secret store.
// These errors help distinguish between different failure modes and enable
// appropriate handling strategies (retry once, surface, user action required).
package errors

import (
	"errors"
	"fmt"
)

// ValidationError indicates invalid input from the caller.
// This is a permanent error - retrying won't help without caller correction.
type ValidationError struct {
	Field   string // The field that failed validation
	Value   string // The invalid value (may be redacted for sensitive data)
	Message string // Why validation failed
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// TransientError indicates a temporary failure talking to Vault or the
// identity provider. Common causes: network issues, Vault sealed or unavailable.
type TransientError struct {
	Operation string // What operation was attempted
	Cause     error  // The underlying error
	Retryable bool   // Whether retry is recommended
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("transient error during %s", e.Operation)
}

// Unwrap returns the underlying cause for errors.As/Is support.
func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransientError creates a TransientError.
func NewTransientError(operation string, cause error) *TransientError {
	return &TransientError{
		Operation: operation,
		Cause:     cause,
		Retryable: true,
	}
}

// IsTransientError returns true if the error is a TransientError.
func IsTransientError(err error) bool {
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}

// NotFoundError indicates no secret record exists at a path.
// Absence is reported to the caller, it is not a failure of the system.
type NotFoundError struct {
	ResourceType string // e.g., "secret"
	ResourceName string // Namespace-relative key of the missing resource
	Namespace    string // Base path of the user's namespace (may be empty)
}

func (e *NotFoundError) Error() string {
	if e.Namespace != "" {
		return fmt.Sprintf("%s %s/%s not found", e.ResourceType, e.Namespace, e.ResourceName)
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resourceType, name, namespace string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: name,
		Namespace:    namespace,
	}
}

// IsNotFoundError returns true if the error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// FieldNotFoundError indicates the record exists but lacks the requested field.
type FieldNotFoundError struct {
	Secret string // Namespace-relative key of the record
	Field  string // The missing field name
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found in secret %q", e.Field, e.Secret)
}

// NewFieldNotFoundError creates a FieldNotFoundError.
func NewFieldNotFoundError(secret, field string) *FieldNotFoundError {
	return &FieldNotFoundError{
		Secret: secret,
		Field:  field,
	}
}

// IsFieldNotFoundError returns true if the error is a FieldNotFoundError.
func IsFieldNotFoundError(err error) bool {
	var fieldErr *FieldNotFoundError
	return errors.As(err, &fieldErr)
}

// PermissionDeniedError is returned by the Vault access layer when the
// backend rejects a request as unauthorized (HTTP 403). It is the signal the
// secret store uses to re-authenticate and retry once.
type PermissionDeniedError struct {
	Operation string // What operation was attempted
	Path      string // The Vault path that was rejected
	Cause     error  // The underlying error
}

func (e *PermissionDeniedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permission denied during %s on %s: %v", e.Operation, e.Path, e.Cause)
	}
	return fmt.Sprintf("permission denied during %s on %s", e.Operation, e.Path)
}

// Unwrap returns the underlying cause for errors.As/Is support.
func (e *PermissionDeniedError) Unwrap() error {
	return e.Cause
}

// NewPermissionDeniedError creates a PermissionDeniedError.
func NewPermissionDeniedError(operation, path string, cause error) *PermissionDeniedError {
	return &PermissionDeniedError{
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}

// IsPermissionDeniedError returns true if the error is a PermissionDeniedError.
func IsPermissionDeniedError(err error) bool {
	var permErr *PermissionDeniedError
	return errors.As(err, &permErr)
}

// AuthError indicates an authenticated Vault handle could not be established
// or re-established.
type AuthError struct {
	Operation string // What was attempted (e.g., "refresh", "authenticate")
	Message   string // Operator-facing explanation and remediation
	Cause     error  // The underlying error

	// Terminal means retrying with the current credential cannot succeed.
	Terminal bool

	// Exhausted means the token outlived its maximum lifetime and only a new
	// session can recover.
	Exhausted bool
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed during %s", e.Operation)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.As/Is support.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewAuthError creates a non-terminal AuthError.
func NewAuthError(operation, message string, cause error) *AuthError {
	return &AuthError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewTerminalAuthError creates an AuthError that must not be retried.
func NewTerminalAuthError(operation, message string, cause error) *AuthError {
	return &AuthError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Terminal:  true,
	}
}

// IsAuthError returns true if the error is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsTerminalAuthError returns true if the error is an AuthError that must
// not be retried.
func IsTerminalAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Terminal
}

// IsTokenExhausted returns true if the error reports a token past its max TTL.
func IsTokenExhausted(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Exhausted
}

// ConfigurationError indicates missing or inconsistent host-supplied
// configuration, or a feature requested in a mode that does not support it.
type ConfigurationError struct {
	Setting string // The setting or feature at fault
	Message string // Why it is unusable
}

func (e *ConfigurationError) Error() string {
	if e.Setting != "" {
		return fmt.Sprintf("configuration error on %s: %s", e.Setting, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(setting, message string) *ConfigurationError {
	return &ConfigurationError{
		Setting: setting,
		Message: message,
	}
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
