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

// Package provision mints per-user Vault credentials for notebook servers.
//
// # Overview
//
// Before a notebook server starts, the spawner runs with an administrative
// Vault token and prepares a credential the notebook can use on its own:
//
//  1. Verify the administrative token
//  2. Write the user's ACL policy (jupyter-user-<name>)
//  3. Create a renewable orphan token bound to that policy
//
// The token is handed to the notebook in NOTEBOOK_VAULT_TOKEN, where the
// secret store picks it up in provisioned mode.
//
// # Usage
//
//	p := provision.NewProvisioner(adminSource, log)
//	result, err := p.Provision(ctx, vaultClient, "alice", &provision.Config{})
//	if err != nil {
//	    return err
//	}
//	env[provision.EnvNotebookToken] = result.Token
//
// A failed policy write is logged and does not stop provisioning: the
// policy usually exists from a previous spawn.
package provision
