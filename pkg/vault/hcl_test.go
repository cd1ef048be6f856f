package vault

import (
	"strings"
	"testing"
)

func TestSubstituteVariables(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		username string
		want     string
	}{
		{
			name:     "no variables",
			path:     "secret/data/shared",
			username: "alice",
			want:     "secret/data/shared",
		},
		{
			name:     "username variable",
			path:     "secret/data/jupyter/users/{{username}}/*",
			username: "alice",
			want:     "secret/data/jupyter/users/alice/*",
		},
		{
			name:     "multiple occurrences",
			path:     "{{username}}/{{username}}",
			username: "bob",
			want:     "bob/bob",
		},
		{
			name:     "empty username",
			path:     "secret/data/jupyter/users/{{username}}",
			username: "",
			want:     "secret/data/jupyter/users/",
		},
		{
			name:     "special characters in username",
			path:     "secret/data/jupyter/users/{{username}}",
			username: "alice.smith-2",
			want:     "secret/data/jupyter/users/alice.smith-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubstituteVariables(tt.path, tt.username)
			if got != tt.want {
				t.Errorf("SubstituteVariables() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateCapabilities(t *testing.T) {
	tests := []struct {
		name         string
		capabilities []string
		wantErr      bool
		errContains  string
	}{
		{
			name:         "valid single capability",
			capabilities: []string{"read"},
		},
		{
			name:         "valid multiple capabilities",
			capabilities: []string{"create", "read", "update", "delete", "list"},
		},
		{
			name:         "valid deny alone",
			capabilities: []string{"deny"},
		},
		{
			name:         "invalid capability",
			capabilities: []string{"write"},
			wantErr:      true,
			errContains:  "invalid capability: write",
		},
		{
			name:         "deny combined with other capability",
			capabilities: []string{"deny", "read"},
			wantErr:      true,
			errContains:  "deny",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCapabilities(tt.capabilities)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCapabilities() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidateCapabilities() error = %q, should contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantErr     bool
		errContains string
	}{
		{name: "valid simple path", path: "secret/data/app"},
		{name: "valid path with wildcard", path: "secret/data/*"},
		{name: "valid path with variable", path: "secret/data/jupyter/users/{{username}}/*"},
		{name: "empty path", path: "", wantErr: true, errContains: "cannot be empty"},
		{name: "path with double dots", path: "secret/../data/app", wantErr: true, errContains: ".."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidatePath() error = %q, should contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestHasWildcardBeforeUsername(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "wildcard before username", path: "secret/data/*/{{username}}", want: true},
		{name: "wildcard after username", path: "secret/data/{{username}}/*", want: false},
		{name: "no wildcard", path: "secret/data/{{username}}", want: false},
		{name: "no username variable", path: "secret/data/*", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasWildcardBeforeUsername(tt.path); got != tt.want {
				t.Errorf("HasWildcardBeforeUsername() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name        string
		rules       []PolicyRule
		wantErr     bool
		errContains string
	}{
		{
			name:  "default rules are valid",
			rules: DefaultUserPolicyRules(),
		},
		{
			name:        "no rules",
			rules:       nil,
			wantErr:     true,
			errContains: "at least one",
		},
		{
			name:        "rule without username",
			rules:       []PolicyRule{{Path: "secret/data/shared/*", Capabilities: []string{"read"}}},
			wantErr:     true,
			errContains: "must contain",
		},
		{
			name:        "wildcard reaches other users",
			rules:       []PolicyRule{{Path: "secret/data/*/{{username}}", Capabilities: []string{"read"}}},
			wantErr:     true,
			errContains: "wildcard",
		},
		{
			name:        "bad capability",
			rules:       []PolicyRule{{Path: "secret/data/{{username}}", Capabilities: []string{"write"}}},
			wantErr:     true,
			errContains: "invalid capability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRules(tt.rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRules() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidateRules() error = %q, should contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestGeneratePolicyHCL(t *testing.T) {
	tests := []struct {
		name         string
		rules        []PolicyRule
		username     string
		wantContains []string
		wantMissing  []string
	}{
		{
			name:     "default user rules",
			rules:    DefaultUserPolicyRules(),
			username: "alice",
			wantContains: []string{
				"# Notebook user: alice",
				`path "secret/data/jupyter/users/alice/*" {`,
				`capabilities = ["create", "read", "update", "delete", "list"]`,
				`path "secret/metadata/jupyter/users/alice" {`,
				"# Secret records owned by the user",
			},
			wantMissing: []string{"{{username}}"},
		},
		{
			name: "rule with parameters",
			rules: []PolicyRule{
				{
					Path:         "secret/data/jupyter/users/{{username}}/config",
					Capabilities: []string{"create"},
					Parameters: &PolicyParameters{
						Allowed:  []string{"foo"},
						Denied:   []string{"bar"},
						Required: []string{"baz"},
					},
				},
			},
			username: "bob",
			wantContains: []string{
				`allowed_parameters = {`,
				`"*" = ["foo"]`,
				`denied_parameters = {`,
				`required_parameters = ["baz"]`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GeneratePolicyHCL(tt.rules, tt.username)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("GeneratePolicyHCL() missing %q in:\n%s", want, got)
				}
			}
			for _, missing := range tt.wantMissing {
				if strings.Contains(got, missing) {
					t.Errorf("GeneratePolicyHCL() should not contain %q in:\n%s", missing, got)
				}
			}
		})
	}
}

func BenchmarkGeneratePolicyHCL(b *testing.B) {
	rules := DefaultUserPolicyRules()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = GeneratePolicyHCL(rules, "alice")
	}
}
