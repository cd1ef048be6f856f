package vault

import (
	"fmt"
	"strings"
)

// PolicyRule represents a single rule in a Vault policy
type PolicyRule struct {
	Path         string
	Capabilities []string
	Description  string
	Parameters   *PolicyParameters
}

// PolicyParameters represents parameter constraints for a policy rule
type PolicyParameters struct {
	Allowed  []string
	Denied   []string
	Required []string
}

// UsernameVariable is replaced with the notebook user's name in rule paths.
const UsernameVariable = "{{username}}"

// DefaultUserPolicyRules grants a user full control of their own secret
// namespace under the default KV mount and nothing else.
func DefaultUserPolicyRules() []PolicyRule {
	return []PolicyRule{
		{
			Path:         DefaultKVMount + "/data/jupyter/users/" + UsernameVariable + "/*",
			Capabilities: []string{"create", "read", "update", "delete", "list"},
			Description:  "Secret records owned by the user",
		},
		{
			Path:         DefaultKVMount + "/metadata/jupyter/users/" + UsernameVariable + "/*",
			Capabilities: []string{"read", "delete", "list"},
			Description:  "Record metadata, required for delete and list",
		},
		{
			Path:         DefaultKVMount + "/metadata/jupyter/users/" + UsernameVariable,
			Capabilities: []string{"list"},
		},
	}
}

// GeneratePolicyHCL generates an HCL policy document from rules
func GeneratePolicyHCL(rules []PolicyRule, username string) string {
	var builder strings.Builder

	builder.WriteString("# Vault policy managed by buun-stack secretstore\n")
	fmt.Fprintf(&builder, "# Notebook user: %s\n", username)
	builder.WriteString("\n")

	for i, rule := range rules {
		path := SubstituteVariables(rule.Path, username)

		// Add description as comment if present
		if rule.Description != "" {
			fmt.Fprintf(&builder, "# %s\n", rule.Description)
		}

		// Start path block
		fmt.Fprintf(&builder, "path %q {\n", path)

		// Write capabilities
		caps := make([]string, len(rule.Capabilities))
		for j, cap := range rule.Capabilities {
			caps[j] = fmt.Sprintf("%q", cap)
		}
		fmt.Fprintf(&builder, "  capabilities = [%s]\n", strings.Join(caps, ", "))

		// Write parameters if present
		if rule.Parameters != nil {
			if len(rule.Parameters.Allowed) > 0 || len(rule.Parameters.Denied) > 0 || len(rule.Parameters.Required) > 0 {
				builder.WriteString("\n")

				if len(rule.Parameters.Allowed) > 0 {
					allowed := make([]string, len(rule.Parameters.Allowed))
					for j, a := range rule.Parameters.Allowed {
						allowed[j] = fmt.Sprintf("%q", a)
					}
					fmt.Fprintf(&builder, "  allowed_parameters = {\n    \"*\" = [%s]\n  }\n", strings.Join(allowed, ", "))
				}

				if len(rule.Parameters.Denied) > 0 {
					denied := make([]string, len(rule.Parameters.Denied))
					for j, d := range rule.Parameters.Denied {
						denied[j] = fmt.Sprintf("%q", d)
					}
					fmt.Fprintf(&builder, "  denied_parameters = {\n    \"*\" = [%s]\n  }\n", strings.Join(denied, ", "))
				}

				if len(rule.Parameters.Required) > 0 {
					required := make([]string, len(rule.Parameters.Required))
					for j, r := range rule.Parameters.Required {
						required[j] = fmt.Sprintf("%q", r)
					}
					fmt.Fprintf(&builder, "  required_parameters = [%s]\n", strings.Join(required, ", "))
				}
			}
		}

		builder.WriteString("}\n")

		// Add newline between rules
		if i < len(rules)-1 {
			builder.WriteString("\n")
		}
	}

	return builder.String()
}

// SubstituteVariables replaces template variables in a path
func SubstituteVariables(path, username string) string {
	return strings.ReplaceAll(path, UsernameVariable, username)
}

// ValidateCapabilities checks if all capabilities are valid
func ValidateCapabilities(capabilities []string) error {
	validCaps := map[string]bool{
		"create": true,
		"read":   true,
		"update": true,
		"delete": true,
		"list":   true,
		"sudo":   true,
		"deny":   true,
	}

	hasDeny := false
	for _, cap := range capabilities {
		if !validCaps[cap] {
			return fmt.Errorf("invalid capability: %s", cap)
		}
		if cap == "deny" {
			hasDeny = true
		}
	}

	// deny cannot be combined with other capabilities
	if hasDeny && len(capabilities) > 1 {
		return fmt.Errorf("'deny' capability cannot be combined with other capabilities")
	}

	return nil
}

// ValidatePath checks if a path is valid
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("path cannot contain '..'")
	}

	return nil
}

// ContainsUsernameVariable checks if a path contains the {{username}} variable
func ContainsUsernameVariable(path string) bool {
	return strings.Contains(path, UsernameVariable)
}

// HasWildcardBeforeUsername checks if a wildcard appears before the username
// variable, which would let the policy reach other users' namespaces.
func HasWildcardBeforeUsername(path string) bool {
	idx := strings.Index(path, UsernameVariable)
	if idx == -1 {
		return false
	}

	wcIdx := strings.Index(path, "*")
	if wcIdx == -1 {
		return false
	}

	return wcIdx < idx
}

// ValidateRules checks every rule's path and capabilities and rejects rules
// that are not scoped to the user.
func ValidateRules(rules []PolicyRule) error {
	if len(rules) == 0 {
		return fmt.Errorf("at least one policy rule is required")
	}
	for _, rule := range rules {
		if err := ValidatePath(rule.Path); err != nil {
			return err
		}
		if err := ValidateCapabilities(rule.Capabilities); err != nil {
			return fmt.Errorf("rule %q: %w", rule.Path, err)
		}
		if !ContainsUsernameVariable(rule.Path) {
			return fmt.Errorf("rule %q must contain %s", rule.Path, UsernameVariable)
		}
		if HasWildcardBeforeUsername(rule.Path) {
			return fmt.Errorf("rule %q has a wildcard before %s", rule.Path, UsernameVariable)
		}
	}
	return nil
}
