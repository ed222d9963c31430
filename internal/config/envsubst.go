package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} or ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-)([^}]*))?\}`)

// ExpandEnvVars expands environment variable references in a scenario:
//   - ${VAR} becomes the value of VAR, or "" if unset
//   - ${VAR:-default} becomes the value of VAR, or default if unset
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(m[1]); ok {
			return val
		}
		return m[3]
	})
}

// ExpandEnvVarsBytes is ExpandEnvVars for file contents.
func ExpandEnvVarsBytes(input []byte) []byte {
	return []byte(ExpandEnvVars(string(input)))
}

// MissingEnvVars lists variables referenced without a default that are not
// set in the environment, each once, in order of first use.
func MissingEnvVars(input string) []string {
	var missing []string
	seen := make(map[string]bool)
	for _, m := range envVarPattern.FindAllStringSubmatch(input, -1) {
		name, hasDefault := m[1], m[2] != ""
		if hasDefault || seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := os.LookupEnv(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
