package secret

import (
	"context"
	"os"
)

// EnvProvider resolves secrets from the process environment by exact
// name. An empty value is treated as "not found".
//
// Environment values are more exposure-prone than mounted files, so this
// provider is recommended as a fallback, never as the primary source.
type EnvProvider struct{}

// NewEnvProvider creates an environment provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

// Resolve looks up name in the environment.
func (p *EnvProvider) Resolve(_ context.Context, name string) (string, bool, error) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Ensure EnvProvider implements Provider
var _ Provider = (*EnvProvider)(nil)
