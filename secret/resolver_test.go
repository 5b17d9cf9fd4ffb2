package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonwraymond/toolgate/audit"
)

// fakeProvider is a scriptable provider for chain tests.
type fakeProvider struct {
	name   string
	values map[string]string
	err    error
	calls  int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Resolve(_ context.Context, name string) (string, bool, error) {
	p.calls++
	if p.err != nil {
		return "", false, p.err
	}
	value, ok := p.values[name]
	return value, ok, nil
}

func TestResolver_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "DB_PASSWORD"), []byte("secret\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	sink := audit.NewMemory()
	resolver := NewResolver(ResolverConfig{Audit: sink},
		NewFileProvider(FileProviderConfig{Dir: dir}))

	tree := map[string]any{
		"db": map[string]any{
			"password": map[string]any{"$secret": "DB_PASSWORD"},
		},
	}
	if err := resolver.Resolve(context.Background(), tree); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	db := tree["db"].(map[string]any)
	if db["password"] != "secret" {
		t.Errorf("config.db.password = %v, want trimmed \"secret\"", db["password"])
	}

	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if !entry.Success || entry.Source != "secret:resolution" {
		t.Errorf("entry = %+v, want successful secret:resolution", entry)
	}
	if entry.Metadata["secretName"] != "DB_PASSWORD" {
		t.Errorf("secretName = %v, want DB_PASSWORD", entry.Metadata["secretName"])
	}
	if entry.Metadata["provider"] != "file" {
		t.Errorf("provider = %v, want file", entry.Metadata["provider"])
	}
	if entry.Metadata["configPath"] != "config.db.password" {
		t.Errorf("configPath = %v, want config.db.password", entry.Metadata["configPath"])
	}
}

func TestResolver_FirstProviderWins(t *testing.T) {
	first := &fakeProvider{name: "first", values: map[string]string{"KEY": "from-first"}}
	second := &fakeProvider{name: "second", values: map[string]string{"KEY": "from-second"}}

	resolver := NewResolver(ResolverConfig{}, first, second)
	tree := map[string]any{"key": map[string]any{"$secret": "KEY"}}

	if err := resolver.Resolve(context.Background(), tree); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tree["key"] != "from-first" {
		t.Errorf("key = %v, want from-first", tree["key"])
	}
	if second.calls != 0 {
		t.Errorf("second provider consulted %d times, want 0", second.calls)
	}
}

func TestResolver_MisbehavingProviderIsMiss(t *testing.T) {
	broken := &fakeProvider{name: "broken", err: errors.New("backend down")}
	fallback := &fakeProvider{name: "fallback", values: map[string]string{"KEY": "value"}}

	resolver := NewResolver(ResolverConfig{}, broken, fallback)
	tree := map[string]any{"key": map[string]any{"$secret": "KEY"}}

	if err := resolver.Resolve(context.Background(), tree); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if tree["key"] != "value" {
		t.Errorf("key = %v, want value from fallback", tree["key"])
	}
}

func TestResolver_FailFast(t *testing.T) {
	provider := &fakeProvider{name: "fake", values: map[string]string{"REAL": "v"}}
	sink := audit.NewMemory()
	resolver := NewResolver(ResolverConfig{Audit: sink}, provider)

	// "aaa" sorts before "zzz": the failure must abort before REAL is
	// attempted.
	tree := map[string]any{
		"aaa": map[string]any{"$secret": "MISSING"},
		"zzz": map[string]any{"$secret": "REAL"},
	}

	err := resolver.Resolve(context.Background(), tree)
	if err == nil {
		t.Fatal("Resolve() error = nil, want fail-fast abort")
	}
	if !errors.Is(err, ErrUnresolved) {
		t.Errorf("errors.Is(err, ErrUnresolved) = false for %v", err)
	}
	if !strings.Contains(err.Error(), "config.aaa") {
		t.Errorf("error %q does not name the config path", err.Error())
	}
	if !strings.Contains(err.Error(), "MISSING") {
		t.Errorf("error %q does not name the secret", err.Error())
	}
	if provider.calls != 1 {
		t.Errorf("provider consulted %d times, want 1 (no resolution past the failure)", provider.calls)
	}
	if _, stillDescriptor := tree["zzz"].(map[string]any); !stillDescriptor {
		t.Error("later descriptor must remain untouched after abort")
	}

	// The failed attempt still produces its audit entry.
	entries := sink.Entries()
	if len(entries) != 1 || entries[0].Success || entries[0].Metadata["provider"] != "none" {
		t.Errorf("audit entries = %+v, want one failure with provider none", entries)
	}
}

func TestResolver_Lenient(t *testing.T) {
	resolver := NewResolver(ResolverConfig{Lenient: true},
		&fakeProvider{name: "fake", values: map[string]string{"REAL": "v"}})

	tree := map[string]any{
		"aaa": map[string]any{"$secret": "MISSING"},
		"zzz": map[string]any{"$secret": "REAL"},
	}
	if err := resolver.Resolve(context.Background(), tree); err != nil {
		t.Fatalf("Resolve() error = %v, want nil in lenient mode", err)
	}

	if _, stillDescriptor := tree["aaa"].(map[string]any); !stillDescriptor {
		t.Error("unresolved descriptor must be left in place")
	}
	if tree["zzz"] != "v" {
		t.Errorf("zzz = %v, want v (resolution continues past the miss)", tree["zzz"])
	}
}

func TestResolver_DescriptorRecognition(t *testing.T) {
	provider := &fakeProvider{name: "fake", values: map[string]string{"S": "v"}}
	resolver := NewResolver(ResolverConfig{}, provider)

	tree := map[string]any{
		// Extra key: ordinary config, recursed into.
		"notSecret": map[string]any{"$secret": "S", "other": true},
		// Non-string value: ordinary config.
		"alsoNot": map[string]any{"$secret": 42},
		// Array elements are visited with indexed paths.
		"items": []any{
			"plain",
			map[string]any{"$secret": "S"},
		},
	}
	if err := resolver.Resolve(context.Background(), tree); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if _, ok := tree["notSecret"].(map[string]any); !ok {
		t.Error("two-key object must not be treated as a descriptor")
	}
	if _, ok := tree["alsoNot"].(map[string]any); !ok {
		t.Error("non-string $secret must not be treated as a descriptor")
	}
	items := tree["items"].([]any)
	if items[1] != "v" {
		t.Errorf("items[1] = %v, want v", items[1])
	}
}

func TestResolver_IndexedPathInError(t *testing.T) {
	resolver := NewResolver(ResolverConfig{})
	tree := map[string]any{
		"items": []any{
			"plain",
			map[string]any{"$secret": "GONE"},
		},
	}

	err := resolver.Resolve(context.Background(), tree)
	if err == nil {
		t.Fatal("Resolve() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), "config.items[1]") {
		t.Errorf("error %q does not carry the indexed path", err.Error())
	}
}
