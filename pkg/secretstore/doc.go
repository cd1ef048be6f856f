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

// Package secretstore gives a notebook session read and write access to the
// user's secret namespace in Vault (secret/data/jupyter/users/<user>) and
// keeps that access working for the lifetime of the process.
//
// # Overview
//
// A Store is built from host configuration and owns one Session. Every
// operation first makes sure the Session holds an authenticated Vault
// handle, refreshing the identity-provider credential when it is about to
// expire. When Vault answers with permission denied, the Store
// re-authenticates once and retries the operation once.
//
//	store, err := secretstore.Acquire(nil, secretstore.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	err = store.Put(ctx, "api-keys", map[string]string{"openai": "sk-123"})
//	key, err := store.GetField(ctx, "api-keys", "openai")
//
// # One session per process
//
// Identity providers usually invalidate a refresh token once it has been
// used. Two sessions refreshing the same token would lock each other out, so
// Acquire returns a process-wide Store. New builds an unregistered Store
// for callers that manage the lifetime themselves.
//
// # Background refresh
//
// StartBackgroundRefresh keeps an idle session's token fresh so that the
// next call does not pay for a synchronous refresh. It is only available in
// refresh mode.
package secretstore
