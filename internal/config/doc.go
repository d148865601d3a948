// Package config loads, normalizes, and validates podsig configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PODSIG_KEYSTORE. The Config type centralizes every knob the reconciler and
// the feed verifier need, so the key store, releases tree, and feed endpoints
// are discovered in one pass and handed to constructors explicitly.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, normalized key identifiers, and clear validation errors.
package config
