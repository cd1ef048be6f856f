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
	"os"

	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

// DefaultEnvKey is the record PutEnv and LoadEnv use when no key is given.
const DefaultEnvKey = "environment"

// PutEnv stores env as one record named key and returns the record path.
func (s *Store) PutEnv(ctx context.Context, env map[string]string, key string) (string, error) {
	if key == "" {
		key = DefaultEnvKey
	}
	if err := s.Put(ctx, key, env); err != nil {
		return "", err
	}
	return s.kv.DataPath(s.recordPath(key)), nil
}

// LoadEnv exports every field of the record named key into the process
// environment and returns the sorted names it set. A missing record sets
// nothing.
func (s *Store) LoadEnv(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		key = DefaultEnvKey
	}

	env, err := s.Get(ctx, key)
	if infraerrors.IsNotFoundError(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := sortedKeys(env)
	for _, name := range names {
		if err := os.Setenv(name, env[name]); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", name, err)
		}
	}
	s.log.V(1).Info("loaded environment from secret store", "secret", key, "variables", len(names))
	return names, nil
}
