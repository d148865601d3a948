package testsupport

import (
	"path/filepath"
	"testing"

	"podsig/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The releases tree and key store directories are not created.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ReleasesDir = filepath.Join(base, "releases")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.Signing.Keystore = filepath.Join(base, "keys")
	cfgVal.Signing.Keys = nil
	cfgVal.Feeds.BaseURL = "http://127.0.0.1:0"
	cfgVal.Feeds.RequestTimeout = 5
	cfgVal.Feeds.DownloadTimeout = 5
	cfgVal.Ledger.Path = filepath.Join(base, "state", "ledger.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithKeys sets the configured signing identifiers.
func WithKeys(ids ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Signing.Keys = append([]string(nil), ids...)
	}
}

// WithFeedBase points the feed verifier at baseURL (typically an httptest server).
func WithFeedBase(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Feeds.BaseURL = baseURL
	}
}

// WithFeedPaths replaces the feed name to path map and the default feed set.
func WithFeedPaths(paths map[string]string, defaults ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Feeds.Paths = paths
		b.cfg.Feeds.Default = defaults
	}
}

// WithLedgerDisabled turns off run history.
func WithLedgerDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ReleasesDir)
}
