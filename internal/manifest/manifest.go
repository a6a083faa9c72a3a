// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

// Package manifest parses and validates plugin manifests.
//
// A plugin directory contains a plugin.yaml describing the plugin's
// identity, version, declared ABI version, shared-library name, and the
// capabilities it requests. The host never loads a plugin whose manifest
// does not validate.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Filename is the manifest file name inside a plugin directory.
const Filename = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	// ID is the vendor-qualified plugin identifier, e.g. "vendor.sample".
	ID string `yaml:"id" json:"id"`
	// Name is an optional human-readable display name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Version is the plugin's semantic version.
	Version string `yaml:"version" json:"version"`
	// ABIVersion is the ABI version the plugin's library declares to export.
	ABIVersion string `yaml:"abi-version" json:"abi-version"`
	// Library is the base name of the shared-library artifact, without
	// platform prefix or extension ("sample" -> sample.so / libsample.so).
	Library string `yaml:"library" json:"library"`
	// Capabilities are the callback capability patterns the plugin requests.
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	// Reentrant declares that the plugin tolerates concurrent message calls.
	Reentrant bool `yaml:"reentrant,omitempty" json:"reentrant,omitempty"`
	// DependsOn lists plugin ids that must be enabled before this plugin.
	// Enabling this plugin enables them first; disabling one of them
	// disables this plugin too.
	DependsOn []string `yaml:"depends-on,omitempty" json:"depends-on,omitempty"`
}

// maxIDLength is the maximum allowed length for plugin IDs.
const maxIDLength = 128

// idPattern validates vendor-qualified plugin IDs: two lowercase
// dot-separated segments, each starting with a letter, containing only
// lowercase letters, digits, or hyphens, and not ending with a hyphen.
var idPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?\.[a-z]([a-z0-9-]*[a-z0-9])?$`)

// Parse parses and validates manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Load reads and parses the manifest in a plugin directory.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, Filename)) //nolint:gosec // path is host-controlled
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.ID == "" || !idPattern.MatchString(m.ID) {
		return fmt.Errorf("id %q must be vendor-qualified (vendor.name), lowercase, and not end with a hyphen", m.ID)
	}
	if len(m.ID) > maxIDLength {
		return fmt.Errorf("id must be %d characters or less, got %d", maxIDLength, len(m.ID))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not a semantic version: %w", m.Version, err)
	}

	if m.ABIVersion == "" {
		return fmt.Errorf("abi-version is required")
	}
	if _, err := semver.NewVersion(m.ABIVersion); err != nil {
		return fmt.Errorf("abi-version %q is not a semantic version: %w", m.ABIVersion, err)
	}

	if m.Library == "" {
		return fmt.Errorf("library is required")
	}

	for _, dep := range m.DependsOn {
		if !idPattern.MatchString(dep) {
			return fmt.Errorf("depends-on entry %q is not a valid plugin id", dep)
		}
		if dep == m.ID {
			return fmt.Errorf("plugin %q cannot depend on itself", m.ID)
		}
	}

	return nil
}

// SemVersion returns the parsed plugin version.
// Validate must have succeeded first.
func (m *Manifest) SemVersion() *semver.Version {
	v, _ := semver.NewVersion(m.Version)
	return v
}

// ABISemVersion returns the parsed declared ABI version.
// Validate must have succeeded first.
func (m *Manifest) ABISemVersion() *semver.Version {
	v, _ := semver.NewVersion(m.ABIVersion)
	return v
}
