// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package nativeload

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// sharedLibExt returns the platform's shared-library extension. Resolved
// once at loader construction, never per call site.
func sharedLibExt() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// LibraryPath locates the shared-library artifact for a plugin inside its
// install directory, trying filename variants in order of preference:
// name.ext, libname.ext, and name-with-lib-prefix-stripped.ext. If none
// exists the first candidate is returned so errors name the expected file.
func (l *Loader) LibraryPath(dir, name string) string {
	candidates := []string{
		name + l.ext,
		"lib" + name + l.ext,
		strings.TrimPrefix(name, "lib") + l.ext,
	}

	for _, c := range candidates {
		path := filepath.Join(dir, c)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return filepath.Join(dir, candidates[0])
}

// LibraryExists reports whether a plugin's shared-library artifact is
// present in its install directory.
func (l *Loader) LibraryExists(dir, name string) bool {
	path := l.LibraryPath(dir, name)
	_, err := os.Stat(path)
	return err == nil
}
