// Package config loads, validates, and normalizes hoist's TOML configuration.
//
// Defaults live in defaults.go; Load layers an optional config file over them,
// expands paths, and rejects unusable values before any component starts.
package config
