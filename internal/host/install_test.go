// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildZip assembles an in-memory zip from name -> content pairs.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.zip")
	require.NoError(t, os.WriteFile(path, buildZip(t, files), 0o600))
	return path
}

func TestExtractArchive(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"plugin.yaml":    "id: vendor.sample\n",
		"sample.so":      "\x7fELF",
		"docs/README.md": "sample plugin",
	})
	dest := filepath.Join(t.TempDir(), "out")

	require.NoError(t, extractArchive(archive, dest))

	data, err := os.ReadFile(filepath.Join(dest, "plugin.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "id: vendor.sample\n", string(data))

	_, err = os.Stat(filepath.Join(dest, "sample.so"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "docs", "README.md"))
	assert.NoError(t, err)
}

func TestExtractArchive_RejectsTraversal(t *testing.T) {
	archive := writeZip(t, map[string]string{
		"../escape.txt": "outside",
	})
	dest := filepath.Join(t.TempDir(), "out")

	err := extractArchive(archive, dest)
	require.Error(t, err)

	// Nothing may be written outside the destination.
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractArchive_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))

	assert.Error(t, extractArchive(path, t.TempDir()))
}

func TestPlaceInstall_ReplacesExisting(t *testing.T) {
	base := t.TempDir()
	staged := filepath.Join(base, "staged")
	require.NoError(t, os.MkdirAll(staged, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "plugin.yaml"), []byte("new"), 0o600))

	target := filepath.Join(base, "vendor.sample")
	require.NoError(t, os.MkdirAll(target, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(target, "stale.so"), []byte("old"), 0o600))

	require.NoError(t, placeInstall(staged, target))

	data, err := os.ReadFile(filepath.Join(target, "plugin.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	_, err = os.Stat(filepath.Join(target, "stale.so"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(staged)
	assert.True(t, os.IsNotExist(err))
}
