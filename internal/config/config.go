package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ReleasesDir string `toml:"releases_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Signing contains key store and signature tree configuration.
type Signing struct {
	// Keystore is the directory holding exported OpenPGP keyrings.
	Keystore string `toml:"keystore"`
	// Keys lists fingerprints or key IDs used to sign and verify.
	Keys               []string `toml:"keys"`
	Armor              bool     `toml:"armor"`
	SignatureExtension string   `toml:"signature_extension"`
	// Extensions selects the artifact flavors to reconcile (e.g. mp3, ogg).
	Extensions []string `toml:"extensions"`
	Workers    int      `toml:"workers"`
}

// Feeds contains configuration for the feed integrity verifier.
type Feeds struct {
	BaseURL         string            `toml:"base_url"`
	Delimiter       string            `toml:"delimiter"`
	RequestTimeout  int               `toml:"request_timeout"`
	DownloadTimeout int               `toml:"download_timeout"`
	Workers         int               `toml:"workers"`
	Default         []string          `toml:"default"`
	Paths           map[string]string `toml:"paths"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Ledger contains configuration for the run history database.
type Ledger struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all configuration values for podsig.
//
// Configuration sections by subsystem:
//   - Paths: releases tree, state and log directories
//   - Signing: key store, signer keys, signature format, artifact flavors
//   - Feeds: feed endpoints and verifier timeouts
//   - Logging: log format and level
//   - Ledger: SQLite run history
type Config struct {
	Paths   Paths   `toml:"paths"`
	Signing Signing `toml:"signing"`
	Feeds   Feeds   `toml:"feeds"`
	Logging Logging `toml:"logging"`
	Ledger  Ledger  `toml:"ledger"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podsig.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. The releases tree
// and key store are never created; their absence is a preflight failure.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the lock file guarding concurrent reconciliation runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "resign.lock")
}

// RequestTimeout bounds a single feed document fetch.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Feeds.RequestTimeout) * time.Second
}

// DownloadTimeout bounds a single live-mode enclosure download.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Feeds.DownloadTimeout) * time.Second
}

// FeedNames returns the configured feed names in their default order, followed
// by any extra names present only in the path map.
func (c *Config) FeedNames() []string {
	seen := make(map[string]struct{}, len(c.Feeds.Paths))
	names := make([]string, 0, len(c.Feeds.Paths))
	for _, name := range c.Feeds.Default {
		if _, ok := c.Feeds.Paths[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	extra := make([]string, 0)
	for name := range c.Feeds.Paths {
		if _, ok := seen[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
