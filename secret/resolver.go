package secret

import (
	"context"
	"fmt"
	"sort"

	"github.com/jonwraymond/toolgate/audit"
	"github.com/jonwraymond/toolgate/observe"
)

// DescriptorKey is the single key that marks a configuration node as a
// secret descriptor: {"$secret": "<LOGICAL_NAME>"}.
const DescriptorKey = "$secret"

// ResolverConfig configures the secret resolver.
type ResolverConfig struct {
	// Lenient disables fail-fast: unresolved descriptors are warned
	// about and left in place instead of aborting resolution. Callers
	// must then treat an un-replaced descriptor as "unset". The zero
	// value keeps the fail-fast default.
	Lenient bool

	// Audit receives one entry per resolution attempt.
	// Default: audit disabled (Nop sink).
	Audit audit.Service

	// Logger receives resolution diagnostics.
	Logger observe.Logger
}

// Resolver replaces secret descriptors in a configuration tree with
// values from an ordered provider chain. Provider registration order is
// the single source of priority.
type Resolver struct {
	config    ResolverConfig
	providers []Provider
}

// NewResolver creates a resolver over the given provider chain.
func NewResolver(config ResolverConfig, providers ...Provider) *Resolver {
	if config.Audit == nil {
		config.Audit = audit.Nop{}
	}
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}
	config.Logger = config.Logger.WithComponent("secret:resolution")

	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			chain = append(chain, p)
		}
	}
	return &Resolver{config: config, providers: chain}
}

// Resolve walks the configuration tree and replaces every secret
// descriptor in place. Map values and slice elements are visited in
// deterministic order (sorted keys, ascending indexes), so under
// fail-fast the first unresolved descriptor in traversal order aborts
// before any later descriptor is attempted.
//
// The tree passed in is mutated; callers observing the tree afterward
// see resolved string values where descriptors used to be.
func (r *Resolver) Resolve(ctx context.Context, tree map[string]any) error {
	return r.walkMap(ctx, "config", tree)
}

func (r *Resolver) walkMap(ctx context.Context, path string, node map[string]any) error {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		childPath := path + "." + key
		replaced, err := r.visit(ctx, childPath, node[key])
		if err != nil {
			return err
		}
		if replaced != nil {
			node[key] = *replaced
		}
	}
	return nil
}

func (r *Resolver) walkSlice(ctx context.Context, path string, node []any) error {
	for i, item := range node {
		childPath := fmt.Sprintf("%s[%d]", path, i)
		replaced, err := r.visit(ctx, childPath, item)
		if err != nil {
			return err
		}
		if replaced != nil {
			node[i] = *replaced
		}
	}
	return nil
}

// visit recurses into child. A non-nil return value means the child was
// a descriptor and must be replaced by the caller.
func (r *Resolver) visit(ctx context.Context, path string, child any) (*string, error) {
	switch v := child.(type) {
	case map[string]any:
		if name, ok := descriptorName(v); ok {
			value, resolved, err := r.resolveName(ctx, path, name)
			if err != nil {
				return nil, err
			}
			if !resolved {
				return nil, nil // lenient mode: descriptor left untouched
			}
			return &value, nil
		}
		return nil, r.walkMap(ctx, path, v)
	case []any:
		return nil, r.walkSlice(ctx, path, v)
	default:
		return nil, nil
	}
}

// descriptorName recognizes a node as a secret descriptor only when it
// is an object with exactly the one key "$secret" and a string value.
func descriptorName(node map[string]any) (string, bool) {
	if len(node) != 1 {
		return "", false
	}
	name, ok := node[DescriptorKey].(string)
	return name, ok
}

func (r *Resolver) resolveName(ctx context.Context, path, name string) (string, bool, error) {
	for _, provider := range r.providers {
		value, found, err := provider.Resolve(ctx, name)
		if err != nil {
			// A misbehaving provider must not block the rest of the
			// chain; treat it as a miss.
			r.config.Logger.Warn(ctx, "secret provider failed",
				observe.String("provider", provider.Name()),
				observe.String("secretName", name),
				observe.Err(err))
			continue
		}
		if found {
			_ = r.config.Audit.Log(ctx, audit.NewEntry("secret:resolution", "",
				"resolve "+name, true, map[string]any{
					"secretName": name,
					"provider":   provider.Name(),
					"configPath": path,
				}))
			return value, true, nil
		}
	}

	_ = r.config.Audit.Log(ctx, audit.NewEntry("secret:resolution", "",
		"resolve "+name, false, map[string]any{
			"secretName": name,
			"provider":   "none",
			"configPath": path,
		}))

	if r.config.Lenient {
		r.config.Logger.Warn(ctx, "secret left unresolved",
			observe.String("secretName", name),
			observe.String("configPath", path))
		return "", false, nil
	}
	return "", false, &ResolutionError{Path: path, Name: name}
}
