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

package token

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

func TestStaticTokenSource(t *testing.T) {
	src := NewStaticTokenSource(" s.abc\n", "NOTEBOOK_VAULT_TOKEN")
	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok != "s.abc" {
		t.Errorf("Token() = %q", tok)
	}
	if src.Describe() != "NOTEBOOK_VAULT_TOKEN" {
		t.Errorf("Describe() = %q", src.Describe())
	}

	_, err = NewStaticTokenSource("", "NOTEBOOK_VAULT_TOKEN").Token(context.Background())
	if err == nil || !strings.Contains(err.Error(), "NOTEBOOK_VAULT_TOKEN") {
		t.Errorf("empty token error = %v", err)
	}
}

func TestFileTokenSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault-token")
	if err := os.WriteFile(path, []byte("s.first\n"), 0600); err != nil {
		t.Fatal(err)
	}
	src := NewFileTokenSource(path, logr.Discard())

	tok, err := src.Token(context.Background())
	if err != nil || tok != "s.first" {
		t.Fatalf("Token() = %q, %v", tok, err)
	}

	// Rotated on disk.
	if err := os.WriteFile(path, []byte("s.second"), 0600); err != nil {
		t.Fatal(err)
	}
	if tok, _ := src.Token(context.Background()); tok != "s.second" {
		t.Errorf("Token() after rotation = %q", tok)
	}

	if !strings.Contains(src.Describe(), path) {
		t.Errorf("Describe() = %q", src.Describe())
	}
}

func TestFileTokenSource_DefaultPath(t *testing.T) {
	src := NewFileTokenSource("", logr.Discard())
	if src.tokenPath != DefaultTokenFilePath {
		t.Errorf("tokenPath = %q, want %q", src.tokenPath, DefaultTokenFilePath)
	}
}
