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
	"sync"

	"github.com/buun-ch/buun-stack/pkg/config"
)

var (
	instanceMu sync.RWMutex
	instance   *Store
)

// Acquire returns the process-wide Store, building it from cfg and opts on
// the first call. Later calls return the same Store and ignore their
// arguments.
func Acquire(cfg *config.Config, opts ...Option) (*Store, error) {
	instanceMu.RLock()
	if s := instance; s != nil {
		instanceMu.RUnlock()
		return s, nil
	}
	instanceMu.RUnlock()

	instanceMu.Lock()
	defer instanceMu.Unlock()

	// Double-check after acquiring write lock
	if instance != nil {
		return instance, nil
	}

	s, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	instance = s
	return s, nil
}

// ResetForTesting closes and forgets the process-wide Store.
func ResetForTesting() {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		_ = instance.Close()
		instance = nil
	}
}
