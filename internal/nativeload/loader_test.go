// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package nativeload

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"unsafe"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v(t *testing.T, s string) *semver.Version {
	t.Helper()
	ver, err := semver.NewVersion(s)
	require.NoError(t, err)
	return ver
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		found    string
		required string
		want     bool
	}{
		{"1.2.0", "1.2.0", true},
		{"1.3.0", "1.2.0", true},
		{"1.2.5", "1.2.0", true},
		{"1.1.9", "1.2.0", false},
		{"2.0.0", "1.2.0", false},
		{"0.9.0", "1.2.0", false},
		{"1.2.0", "2.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.found+"_vs_"+tt.required, func(t *testing.T) {
			got := Compatible(v(t, tt.found), v(t, tt.required))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompatible_Nil(t *testing.T) {
	assert.False(t, Compatible(nil, v(t, "1.0.0")))
	assert.False(t, Compatible(v(t, "1.0.0"), nil))
}

func TestLoad_FileNotFound(t *testing.T) {
	l := NewLoader(v(t, "1.0.0"))

	_, err := l.Load(filepath.Join(t.TempDir(), "missing"+sharedLibExt()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileNotFound))
}

func TestSharedLibExt(t *testing.T) {
	ext := sharedLibExt()
	switch runtime.GOOS {
	case "darwin":
		assert.Equal(t, ".dylib", ext)
	case "windows":
		assert.Equal(t, ".dll", ext)
	default:
		assert.Equal(t, ".so", ext)
	}
}

func TestLibraryPath_Variants(t *testing.T) {
	l := NewLoader(v(t, "1.0.0"))
	dir := t.TempDir()

	// Nothing exists: first candidate is returned for error messages.
	got := l.LibraryPath(dir, "sample")
	assert.Equal(t, filepath.Join(dir, "sample"+l.ext), got)
	assert.False(t, l.LibraryExists(dir, "sample"))

	// lib-prefixed variant wins when the bare name is absent.
	libName := "libsample" + l.ext
	require.NoError(t, os.WriteFile(filepath.Join(dir, libName), []byte{0}, 0o600))
	assert.Equal(t, filepath.Join(dir, libName), l.LibraryPath(dir, "sample"))
	assert.True(t, l.LibraryExists(dir, "sample"))

	// Bare name takes precedence once present.
	bare := "sample" + l.ext
	require.NoError(t, os.WriteFile(filepath.Join(dir, bare), []byte{0}, 0o600))
	assert.Equal(t, filepath.Join(dir, bare), l.LibraryPath(dir, "sample"))
}

func TestLibraryPath_LibPrefixedManifestName(t *testing.T) {
	l := NewLoader(v(t, "1.0.0"))
	dir := t.TempDir()

	// Manifest says "libsample", artifact on disk is "sample.ext".
	stripped := "sample" + l.ext
	require.NoError(t, os.WriteFile(filepath.Join(dir, stripped), []byte{0}, 0o600))
	assert.Equal(t, filepath.Join(dir, stripped), l.LibraryPath(dir, "libsample"))
}

func TestCString_RoundTrip(t *testing.T) {
	buf := CString("ping")
	require.Len(t, buf, 5)
	assert.Equal(t, byte(0), buf[4])

	got := GoString(uintptr(CStringPtr(buf)))
	assert.Equal(t, "ping", got)
	runtime.KeepAlive(buf)
}

func TestGoString_Nil(t *testing.T) {
	assert.Equal(t, "", GoString(0))
}

func TestGoString_Empty(t *testing.T) {
	buf := []byte{0}
	assert.Equal(t, "", GoString(uintptr(unsafe.Pointer(&buf[0]))))
	runtime.KeepAlive(buf)
}

func TestCopyInto(t *testing.T) {
	dst := make([]byte, 16)
	n := CopyInto(uintptr(unsafe.Pointer(&dst[0])), 16, "dark")
	assert.Equal(t, int32(4), n)
	assert.Equal(t, "dark", GoString(uintptr(unsafe.Pointer(&dst[0]))))
	runtime.KeepAlive(dst)
}

func TestCopyInto_Truncates(t *testing.T) {
	dst := make([]byte, 4)
	n := CopyInto(uintptr(unsafe.Pointer(&dst[0])), 4, "overflowing")

	// Full source length reported so the caller can detect truncation.
	assert.Equal(t, int32(len("overflowing")), n)
	assert.Equal(t, byte(0), dst[3])
	runtime.KeepAlive(dst)
}

func TestCopyInto_NilBuffer(t *testing.T) {
	assert.Equal(t, int32(5), CopyInto(0, 0, "probe"))
}
