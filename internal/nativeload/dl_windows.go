// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

//go:build windows

package nativeload

import "golang.org/x/sys/windows"

func dlOpen(path string) (uintptr, error) {
	h, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil {
		return 0, err
	}
	return uintptr(h), nil
}

func dlSym(lib uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(lib), name)
}

func dlClose(lib uintptr) error {
	return windows.FreeLibrary(windows.Handle(lib))
}
