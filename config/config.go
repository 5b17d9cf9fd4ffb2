package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/toolgate/secret"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// IssuerConfig describes one trusted token issuer.
type IssuerConfig struct {
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	JWKSURL    string   `yaml:"jwksUrl"`
	Algorithms []string `yaml:"algorithms"`
	ClockSkew  Duration `yaml:"clockSkew"`
}

// RolesConfig associates external role names with internal tiers.
type RolesConfig struct {
	Admin []string `yaml:"admin"`
	User  []string `yaml:"user"`
	Guest []string `yaml:"guest"`
}

// AuthConfig groups token validation and role mapping.
type AuthConfig struct {
	Issuers []IssuerConfig `yaml:"issuers"`
	Roles   RolesConfig    `yaml:"roles"`
}

// ExchangeConfig describes the token-exchange endpoint.
type ExchangeConfig struct {
	TokenURL         string   `yaml:"tokenUrl"`
	ClientID         string   `yaml:"clientId"`
	ClientSecret     string   `yaml:"clientSecret"`
	ClientAuthMethod string   `yaml:"clientAuthMethod"`
	RolesClaim       string   `yaml:"rolesClaim"`
	RequiredClaim    string   `yaml:"requiredClaim"`
	Timeout          Duration `yaml:"timeout"`
	DefaultTTL       Duration `yaml:"defaultTtl"`
}

// SecretsConfig tunes the secret-resolution pipeline itself. Its values
// must not be secret descriptors; they are read before resolution runs.
type SecretsConfig struct {
	Dir     string `yaml:"dir"`
	Lenient bool   `yaml:"lenient"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	// Backend is one of "none", "memory", or "bolt".
	Backend string `yaml:"backend"`

	// Path is the Bolt database file, required for the bolt backend.
	Path string `yaml:"path"`
}

// ModuleConfig declares one delegation module.
type ModuleConfig struct {
	Name string `yaml:"name"`

	// Type is one of "rest", "postgres", or "sqlserver".
	Type string `yaml:"type"`

	// Settings is passed verbatim to the module's Initialize.
	Settings map[string]any `yaml:"settings"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the gateway's full configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Audit    AuditConfig    `yaml:"audit"`
	Modules  []ModuleConfig `yaml:"modules"`
}

// Load reads path, resolves every secret descriptor through resolver,
// and decodes the result. A nil resolver skips resolution, for
// configurations known to carry no descriptors.
func Load(ctx context.Context, path string, resolver *secret.Resolver) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(ctx, raw, resolver)
}

// Parse resolves and decodes one YAML document.
func Parse(ctx context.Context, raw []byte, resolver *secret.Resolver) (*Config, error) {
	tree := make(map[string]any)
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if resolver != nil {
		if err := resolver.Resolve(ctx, tree); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	// Round-trip the resolved tree into the typed form.
	resolved, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("config: re-encode: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(resolved, cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for i, issuer := range c.Auth.Issuers {
		if issuer.Issuer == "" {
			return fmt.Errorf("config: auth.issuers[%d] has no issuer", i)
		}
		if issuer.JWKSURL == "" {
			return fmt.Errorf("config: auth.issuers[%d] has no jwksUrl", i)
		}
	}

	switch c.Audit.Backend {
	case "", "none", "memory":
	case "bolt":
		if c.Audit.Path == "" {
			return fmt.Errorf("config: audit.backend bolt needs audit.path")
		}
	default:
		return fmt.Errorf("config: unknown audit backend %q", c.Audit.Backend)
	}

	seen := make(map[string]bool, len(c.Modules))
	for i, module := range c.Modules {
		if module.Name == "" {
			return fmt.Errorf("config: modules[%d] has no name", i)
		}
		if seen[module.Name] {
			return fmt.Errorf("config: duplicate module name %q", module.Name)
		}
		seen[module.Name] = true
		switch module.Type {
		case "rest", "postgres", "sqlserver":
		default:
			return fmt.Errorf("config: module %q has unknown type %q", module.Name, module.Type)
		}
	}

	return nil
}
