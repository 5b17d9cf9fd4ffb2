package secret

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonwraymond/toolgate/observe"
)

// DefaultSecretDir is the conventional mount point for file secrets.
const DefaultSecretDir = "/run/secrets"

// FileProviderConfig configures the file secret provider.
type FileProviderConfig struct {
	// Dir is the directory holding one file per logical secret.
	// Default: /run/secrets
	Dir string

	// Logger receives diagnostics for unexpected read failures.
	Logger observe.Logger
}

// FileProvider resolves <dir>/<name>, trimmed. Logical names that point
// outside the secret directory are refused before any read is attempted.
type FileProvider struct {
	dir    string
	logger observe.Logger
}

// NewFileProvider creates a file provider.
func NewFileProvider(config FileProviderConfig) *FileProvider {
	if config.Dir == "" {
		config.Dir = DefaultSecretDir
	}
	if config.Logger == nil {
		config.Logger = observe.NewNopLogger()
	}
	// The containment check in Resolve compares absolute paths, so the
	// directory itself must be held absolute.
	dir, err := filepath.Abs(config.Dir)
	if err != nil {
		dir = filepath.Clean(config.Dir)
	}
	return &FileProvider{
		dir:    dir,
		logger: config.Logger.WithComponent("secret:file"),
	}
}

// Name returns "file".
func (p *FileProvider) Name() string {
	return "file"
}

// Resolve reads the secret file for name. Missing files and permission
// errors are misses so the chain continues; traversal attempts are
// misses without touching the filesystem.
func (p *FileProvider) Resolve(ctx context.Context, name string) (string, bool, error) {
	if !p.safeName(name) {
		p.logger.Warn(ctx, "refused unsafe secret name", observe.String("name", name))
		return "", false, nil
	}

	// Re-validate the joined path: even if the segment check above were
	// bypassed via encoding, the result must stay inside the secret dir.
	path := filepath.Join(p.dir, name)
	abs, err := filepath.Abs(path)
	if err != nil || !strings.HasPrefix(abs, p.dir+string(filepath.Separator)) {
		p.logger.Warn(ctx, "secret path escapes secret directory", observe.String("name", name))
		return "", false, nil
	}

	data, err := os.ReadFile(abs)
	switch {
	case err == nil:
		return strings.TrimSpace(string(data)), true, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return "", false, nil
	default:
		// Unexpected I/O failure: diagnose, but let the chain continue.
		p.logger.Warn(ctx, "secret file read failed",
			observe.String("name", name), observe.Err(err))
		return "", false, nil
	}
}

// safeName rejects absolute names and any parent-directory segment.
func (p *FileProvider) safeName(name string) bool {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return false
	}
	for _, segment := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if segment == ".." {
			return false
		}
	}
	return true
}

// Ensure FileProvider implements Provider
var _ Provider = (*FileProvider)(nil)
