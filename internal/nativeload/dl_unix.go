// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

//go:build darwin || freebsd || linux

package nativeload

import "github.com/ebitengine/purego"

// dlOpen loads a shared library with immediate symbol binding. RTLD_LOCAL
// keeps plugin symbols out of the process-global namespace so two plugins
// cannot shadow each other's exports.
func dlOpen(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}

func dlSym(lib uintptr, name string) (uintptr, error) {
	return purego.Dlsym(lib, name)
}

func dlClose(lib uintptr) error {
	return purego.Dlclose(lib)
}
