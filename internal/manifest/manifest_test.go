// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadstone/loadstone/internal/manifest"
)

func validManifest() string {
	return `
id: vendor.sample
name: Sample
version: 1.0.0
abi-version: "1.2.0"
library: sample
capabilities:
  - log
  - config.read.**
`
}

func TestParse_Valid(t *testing.T) {
	m, err := manifest.Parse([]byte(validManifest()))
	require.NoError(t, err)

	assert.Equal(t, "vendor.sample", m.ID)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, "1.2.0", m.ABIVersion)
	assert.Equal(t, "sample", m.Library)
	assert.Equal(t, []string{"log", "config.read.**"}, m.Capabilities)
	assert.False(t, m.Reentrant)
}

func TestParse_Reentrant(t *testing.T) {
	data := `
id: vendor.concurrent
version: 2.1.0
abi-version: "1.0.0"
library: concurrent
reentrant: true
`
	m, err := manifest.Parse([]byte(data))
	require.NoError(t, err)
	assert.True(t, m.Reentrant)
}

func TestParse_Empty(t *testing.T) {
	_, err := manifest.Parse(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := manifest.Parse([]byte("id: ["))
	require.Error(t, err)
}

func TestParse_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing id", "version: 1.0.0\nabi-version: \"1.0.0\"\nlibrary: x"},
		{"missing version", "id: vendor.x\nabi-version: \"1.0.0\"\nlibrary: x"},
		{"missing abi-version", "id: vendor.x\nversion: 1.0.0\nlibrary: x"},
		{"missing library", "id: vendor.x\nversion: 1.0.0\nabi-version: \"1.0.0\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manifest.Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestValidate_IDPattern(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"vendor.sample", true},
		{"a.b", true},
		{"ven-dor.my-plugin2", true},
		{"Vendor.sample", false},
		{"vendor", false},
		{"vendor.", false},
		{".sample", false},
		{"vendor.sample-", false},
		{"vendor..sample", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			m := &manifest.Manifest{
				ID:         tt.id,
				Version:    "1.0.0",
				ABIVersion: "1.0.0",
				Library:    "x",
			}
			err := m.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_BadVersions(t *testing.T) {
	m := &manifest.Manifest{ID: "vendor.x", Version: "not-a-version", ABIVersion: "1.0.0", Library: "x"}
	assert.Error(t, m.Validate())

	m = &manifest.Manifest{ID: "vendor.x", Version: "1.0.0", ABIVersion: "abi-one", Library: "x"}
	assert.Error(t, m.Validate())
}

func TestSemVersions(t *testing.T) {
	m, err := manifest.Parse([]byte(validManifest()))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), m.SemVersion().Major())
	assert.Equal(t, uint64(2), m.ABISemVersion().Minor())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.Filename), []byte(validManifest()), 0o600))

	m, err := manifest.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "vendor.sample", m.ID)
}

func TestLoad_Missing(t *testing.T) {
	_, err := manifest.Load(t.TempDir())
	assert.Error(t, err)
}
