// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and CLI.
//
// Load resolves the config file (explicit path, then the user config dir,
// then a project-local fileforge.toml), merges it over Default(), expands
// "~" in every path field, and rejects unusable values. Components receive
// a *Config and read only their own section.
package config
