// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/loadstone/loadstone/internal/xdg"
)

// Config is the immutable per-host configuration. Constructed once and
// not mutated after the host starts.
type Config struct {
	// PluginsDir holds one subdirectory per installed plugin.
	PluginsDir string

	// CacheDir stages downloaded-but-not-yet-installed artifacts.
	CacheDir string

	// DataDir is the root handed to plugins through the data_dir callback,
	// one subdirectory per plugin.
	DataDir string

	// RegistryURL is the plugin registry base URL. Empty disables install
	// and update operations.
	RegistryURL string

	// HostVersion is the embedding application's version string.
	HostVersion string

	// RequiredABI is the minimum plugin ABI version the host accepts.
	RequiredABI string

	// CatalogPath is the sqlite catalog file. Empty disables persistence.
	CatalogPath string
}

// DefaultConfig returns a config rooted at the XDG base directories.
func DefaultConfig() Config {
	return Config{
		PluginsDir:  xdg.PluginsDir(),
		CacheDir:    filepath.Join(xdg.CacheDir(), "staging"),
		DataDir:     filepath.Join(xdg.DataDir(), "plugin-data"),
		RequiredABI: "1.0.0",
		CatalogPath: filepath.Join(xdg.StateDir(), "catalog.db"),
	}
}

// Validate checks the config and returns the parsed required ABI version.
func (c Config) Validate() (*semver.Version, error) {
	if c.PluginsDir == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("plugins directory not set")
	}
	if c.CacheDir == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("cache directory not set")
	}
	if c.DataDir == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("data directory not set")
	}

	required, err := semver.NewVersion(c.RequiredABI)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("required_abi", c.RequiredABI).
			Wrap(err)
	}
	return required, nil
}

// ensureDirs creates the host's working directories.
func (c Config) ensureDirs() error {
	for _, dir := range []string{c.PluginsDir, c.CacheDir, c.DataDir} {
		if err := xdg.EnsureDir(dir); err != nil {
			return oops.Code("CONFIG_INVALID").With("dir", dir).Wrap(err)
		}
	}
	return nil
}
