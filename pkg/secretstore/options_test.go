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
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/buun-ch/buun-stack/pkg/config"
)

func TestNew_LoggerFromConfiguredLevel(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		opts      []Option
		wantSink  bool
		wantInfo  bool
		wantDebug bool
	}{
		{
			name: "no level configured discards",
		},
		{
			name:      "debug level",
			env:       map[string]string{"SECRETSTORE_LOG_LEVEL": "debug"},
			wantSink:  true,
			wantInfo:  true,
			wantDebug: true,
		},
		{
			name:     "legacy variable",
			env:      map[string]string{"BUUNSTACK_LOG_LEVEL": "info"},
			wantSink: true,
			wantInfo: true,
		},
		{
			name:     "error level hides info",
			env:      map[string]string{"SECRETSTORE_LOG_LEVEL": "error"},
			wantSink: true,
		},
		{
			name: "explicit logger wins",
			env:  map[string]string{"SECRETSTORE_LOG_LEVEL": "debug"},
			opts: []Option{WithLogger(logr.Discard())},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{
				"JUPYTERHUB_USER":              "alice",
				"VAULT_ADDR":                   "http://127.0.0.1:8200",
				"JUPYTERHUB_OIDC_ACCESS_TOKEN": signedToken(time.Now().Add(time.Hour)),
			}
			for k, v := range tt.env {
				env[k] = v
			}
			cfg, err := config.FromMap(env)
			if err != nil {
				t.Fatalf("FromMap() error = %v", err)
			}

			store, err := New(cfg, tt.opts...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			if got := store.log.GetSink() != nil; got != tt.wantSink {
				t.Errorf("has sink = %v, want %v", got, tt.wantSink)
			}
			if got := store.log.Enabled(); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := store.log.V(1).Enabled(); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}
