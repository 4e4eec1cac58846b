// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and CLI. Values arrive with defaults applied, paths
// expanded, and ranges checked, so downstream packages never re-validate.
package config
