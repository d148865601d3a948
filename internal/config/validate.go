package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSigning(); err != nil {
		return err
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.ReleasesDir == "" {
		return errors.New("paths.releases_dir must be set")
	}
	return nil
}

func (c *Config) validateSigning() error {
	if c.Signing.Keystore == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("signing.keystore is required. Set PODSIG_KEYSTORE or edit %s (create with 'podsig config init')", defaultPath)
	}
	if len(c.Signing.Extensions) == 0 {
		return errors.New("signing.extensions must list at least one artifact extension")
	}
	for _, key := range c.Signing.Keys {
		if !isHex(key) {
			return fmt.Errorf("signing.keys: %q is not a hexadecimal fingerprint or key id", key)
		}
		if len(key) < 8 {
			return fmt.Errorf("signing.keys: %q is too short to identify a key", key)
		}
	}
	if strings.ContainsAny(c.Signing.SignatureExtension, `/\`) {
		return fmt.Errorf("signing.signature_extension: %q must not contain path separators", c.Signing.SignatureExtension)
	}
	return nil
}

func (c *Config) validateFeeds() error {
	if c.Feeds.BaseURL != "" {
		parsed, err := url.Parse(c.Feeds.BaseURL)
		if err != nil {
			return fmt.Errorf("feeds.base_url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("feeds.base_url: unsupported scheme %q", parsed.Scheme)
		}
	}
	if c.Feeds.RequestTimeout <= 0 {
		return errors.New("feeds.request_timeout must be positive")
	}
	if c.Feeds.DownloadTimeout <= 0 {
		return errors.New("feeds.download_timeout must be positive")
	}
	for _, name := range c.Feeds.Default {
		if _, ok := c.Feeds.Paths[name]; !ok {
			return fmt.Errorf("feeds.default: %q has no entry in feeds.paths", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func isHex(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
