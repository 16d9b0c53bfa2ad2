// Package secrets resolves named credentials at process start. A secret is
// looked up first in the environment, then as a file under the mounted secrets
// directory (SECRETS_DIR, one file per secret). Values are never logged in
// full; use Redact for debug output.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultSecretsDir = "/etc/secrets"

// Resolver fetches secrets by name.
type Resolver struct {
	dir string
}

// NewResolver creates a resolver rooted at SECRETS_DIR (or /etc/secrets).
func NewResolver() *Resolver {
	dir := os.Getenv("SECRETS_DIR")
	if dir == "" {
		dir = defaultSecretsDir
	}
	return &Resolver{dir: dir}
}

// Get returns the secret value for name, or an error naming the secret (but
// never its value) when it cannot be resolved.
func (r *Resolver) Get(name string) (string, error) {
	if v := os.Getenv(name); v != "" {
		return strings.TrimSpace(v), nil
	}

	path := filepath.Join(r.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret %s not found in environment or %s", name, r.dir)
		}
		return "", fmt.Errorf("failed to read secret %s: %w", name, err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("secret %s is empty", name)
	}

	return value, nil
}

// Redact returns a short prefix of a secret safe for debug logs.
func Redact(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:6] + "..."
}
