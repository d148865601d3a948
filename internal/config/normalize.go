package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSigning(); err != nil {
		return err
	}
	c.normalizeFeeds()
	c.normalizeLogging()
	return c.normalizeLedger()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ReleasesDir, err = expandPath(c.Paths.ReleasesDir); err != nil {
		return fmt.Errorf("paths.releases_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSigning() error {
	if strings.TrimSpace(c.Signing.Keystore) == "" {
		if value, ok := os.LookupEnv("PODSIG_KEYSTORE"); ok && strings.TrimSpace(value) != "" {
			c.Signing.Keystore = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("GNUPGHOME"); ok && strings.TrimSpace(value) != "" {
			c.Signing.Keystore = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Signing.Keystore, err = expandPath(c.Signing.Keystore); err != nil {
		return fmt.Errorf("signing.keystore: %w", err)
	}

	keys := make([]string, 0, len(c.Signing.Keys))
	for _, key := range c.Signing.Keys {
		if normalized := NormalizeKeyID(key); normalized != "" {
			keys = append(keys, normalized)
		}
	}
	c.Signing.Keys = keys

	c.Signing.SignatureExtension = strings.TrimPrefix(strings.TrimSpace(c.Signing.SignatureExtension), ".")
	if c.Signing.SignatureExtension == "" {
		if c.Signing.Armor {
			c.Signing.SignatureExtension = defaultSignatureExtension
		} else {
			c.Signing.SignatureExtension = "sig"
		}
	}

	exts := make([]string, 0, len(c.Signing.Extensions))
	for _, ext := range c.Signing.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	c.Signing.Extensions = exts

	if c.Signing.Workers <= 0 {
		c.Signing.Workers = defaultSigningWorkers
	}
	return nil
}

func (c *Config) normalizeFeeds() {
	c.Feeds.BaseURL = strings.TrimRight(strings.TrimSpace(c.Feeds.BaseURL), "/")
	if c.Feeds.Delimiter == "" {
		c.Feeds.Delimiter = defaultFeedDelimiter
	}
	if c.Feeds.Workers <= 0 {
		c.Feeds.Workers = defaultFeedWorkers
	}
	paths := make(map[string]string, len(c.Feeds.Paths))
	for name, path := range c.Feeds.Paths {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		paths[name] = strings.TrimSpace(path)
	}
	c.Feeds.Paths = paths
	defaults := make([]string, 0, len(c.Feeds.Default))
	for _, name := range c.Feeds.Default {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			defaults = append(defaults, name)
		}
	}
	c.Feeds.Default = defaults
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeLedger() error {
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = filepath.Join(c.Paths.StateDir, defaultLedgerFile)
		return nil
	}
	var err error
	if c.Ledger.Path, err = expandPath(c.Ledger.Path); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

// NormalizeKeyID strips whitespace and a 0x prefix and uppercases a key
// fingerprint or key ID.
func NormalizeKeyID(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 && (value[:2] == "0x" || value[:2] == "0X") {
		value = value[2:]
	}
	value = strings.ReplaceAll(value, " ", "")
	return strings.ToUpper(value)
}
