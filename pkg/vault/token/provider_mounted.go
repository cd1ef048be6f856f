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
	"fmt"

	"github.com/go-logr/logr"

	"github.com/buun-ch/buun-stack/pkg/vault/auth"
)

// FileTokenSource reads the Vault token from a mounted file.
// The file is read on every call, so a token rotated on disk by an injector
// is picked up by the next authentication.
type FileTokenSource struct {
	tokenPath string
	log       logr.Logger
}

// NewFileTokenSource creates a new FileTokenSource.
// If tokenPath is empty, it defaults to DefaultTokenFilePath.
func NewFileTokenSource(tokenPath string, log logr.Logger) *FileTokenSource {
	if tokenPath == "" {
		tokenPath = DefaultTokenFilePath
	}
	return &FileTokenSource{
		tokenPath: tokenPath,
		log:       log.WithName("file-token-source"),
	}
}

// Token reads the token file.
func (p *FileTokenSource) Token(_ context.Context) (string, error) {
	p.log.V(1).Info("reading mounted vault token", "path", p.tokenPath)

	token, err := auth.ReadTokenFile(p.tokenPath)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Describe implements TokenSource.
func (p *FileTokenSource) Describe() string {
	return "file " + p.tokenPath
}

func errEmptyToken(source string) error {
	return fmt.Errorf("no vault token provided by %s", source)
}

// Ensure FileTokenSource implements TokenSource.
var _ TokenSource = (*FileTokenSource)(nil)
