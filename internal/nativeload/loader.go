// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

// Package nativeload loads plugin shared libraries and resolves their ABI
// entry points. All dynamic-loading and raw symbol work is confined to
// this package and the bridge; nothing else touches a native pointer.
package nativeload

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
)

// Exported symbol names of the plugin ABI. The version marker is read
// before any other plugin code executes.
const (
	SymbolABIVersion = "loadstone_abi_version"
	SymbolInit       = "loadstone_init"
	SymbolDispatch   = "loadstone_handle_message"
	SymbolFree       = "loadstone_free"
	SymbolTeardown   = "loadstone_teardown"
)

// Sentinel errors for programmatic checks. Returned errors wrap these and
// carry oops context (path, symbol, versions).
var (
	ErrFileNotFound    = errors.New("plugin library not found")
	ErrSymbolMissing   = errors.New("plugin symbol missing")
	ErrABIIncompatible = errors.New("plugin ABI incompatible")
	ErrLoadFailed      = errors.New("platform load failure")
	ErrUnloaded        = errors.New("plugin library already unloaded")
)

// entryPoints holds the plugin's resolved ABI functions, bound via purego.
type entryPoints struct {
	abiVersion func() uintptr
	initialize func(table unsafe.Pointer) int32
	dispatch   func(verb, payload unsafe.Pointer, status *int32) uintptr
	free       func(ptr uintptr)
	teardown   func() int32
}

// Loader opens shared libraries and checks them against the host's
// required ABI version. The platform library extension is resolved once
// at construction.
type Loader struct {
	required *semver.Version
	ext      string
}

// NewLoader creates a loader requiring the given minimum ABI version.
// Compatibility rule: equal major version, plugin minor/patch >= required.
func NewLoader(required *semver.Version) *Loader {
	return &Loader{
		required: required,
		ext:      sharedLibExt(),
	}
}

// Required returns the host's required ABI version.
func (l *Loader) Required() *semver.Version {
	return l.required
}

// Load opens the shared library at path, reads its ABI version marker,
// and resolves the full entry-point set. On any failure the library is
// fully unloaded before the error returns; no partial handle leaks.
func (l *Loader) Load(path string) (*Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, oops.Code("FILE_NOT_FOUND").
			With("path", path).
			Wrap(fmt.Errorf("%w: %s", ErrFileNotFound, path))
	}

	lib, err := dlOpen(path)
	if err != nil {
		return nil, oops.Code("LOAD_FAILED").
			With("path", path).
			Wrap(fmt.Errorf("%w: %v", ErrLoadFailed, err))
	}

	// The version marker is resolved and checked before anything else.
	versionAddr, err := dlSym(lib, SymbolABIVersion)
	if err != nil {
		_ = dlClose(lib)
		return nil, symbolMissing(path, SymbolABIVersion)
	}

	var ep entryPoints
	registerFunc(&ep.abiVersion, versionAddr)

	found, err := semver.NewVersion(GoString(ep.abiVersion()))
	if err != nil {
		_ = dlClose(lib)
		return nil, oops.Code("LOAD_FAILED").
			With("path", path).
			Wrap(fmt.Errorf("%w: unparseable ABI version marker: %v", ErrLoadFailed, err))
	}

	if !Compatible(found, l.required) {
		_ = dlClose(lib)
		return nil, oops.Code("ABI_INCOMPATIBLE").
			With("path", path).
			With("found", found.String()).
			With("required", l.required.String()).
			Wrap(fmt.Errorf("%w: plugin declares %s, host requires %s",
				ErrABIIncompatible, found, l.required))
	}

	for _, sym := range []struct {
		name string
		bind func(addr uintptr)
	}{
		{SymbolInit, func(a uintptr) { registerFunc(&ep.initialize, a) }},
		{SymbolDispatch, func(a uintptr) { registerFunc(&ep.dispatch, a) }},
		{SymbolFree, func(a uintptr) { registerFunc(&ep.free, a) }},
		{SymbolTeardown, func(a uintptr) { registerFunc(&ep.teardown, a) }},
	} {
		addr, symErr := dlSym(lib, sym.name)
		if symErr != nil {
			_ = dlClose(lib)
			return nil, symbolMissing(path, sym.name)
		}
		sym.bind(addr)
	}

	return &Handle{
		path: path,
		lib:  lib,
		abi:  found,
		ep:   ep,
	}, nil
}

func symbolMissing(path, name string) error {
	return oops.Code("SYMBOL_MISSING").
		With("path", path).
		With("symbol", name).
		Wrap(fmt.Errorf("%w: %s", ErrSymbolMissing, name))
}

// Compatible reports whether a plugin-declared ABI version satisfies the
// host requirement: equal major, and not older than required.
func Compatible(found, required *semver.Version) bool {
	if found == nil || required == nil {
		return false
	}
	if found.Major() != required.Major() {
		return false
	}
	return !found.LessThan(required)
}

// Handle owns a loaded library and its resolved entry points. Exactly one
// live Handle may exist per plugin; the record store enforces that no
// second handle is opened while one is held.
type Handle struct {
	path     string
	lib      uintptr
	abi      *semver.Version
	ep       entryPoints
	unloaded atomic.Bool
}

// Path returns the library path the handle was loaded from.
func (h *Handle) Path() string {
	return h.path
}

// ABIVersion returns the version marker the library exported at load time.
func (h *Handle) ABIVersion() *semver.Version {
	return h.abi
}

// InitRaw invokes the plugin's initialize entry point with the host
// callback table. Returns the plugin's status code (0 = success).
func (h *Handle) InitRaw(table unsafe.Pointer) (int32, error) {
	if h.unloaded.Load() {
		return -1, ErrUnloaded
	}
	return h.ep.initialize(table), nil
}

// DispatchRaw invokes the plugin's message entry point. The returned
// pointer, if non-zero, is owned by the plugin's allocator and must be
// released with FreeRaw after the caller copies it out.
func (h *Handle) DispatchRaw(verb, payload unsafe.Pointer, status *int32) (uintptr, error) {
	if h.unloaded.Load() {
		return 0, ErrUnloaded
	}
	return h.ep.dispatch(verb, payload, status), nil
}

// FreeRaw returns a dispatch reply buffer to the plugin's allocator.
func (h *Handle) FreeRaw(ptr uintptr) {
	if ptr == 0 || h.unloaded.Load() {
		return
	}
	h.ep.free(ptr)
}

// TeardownRaw invokes the plugin's teardown entry point.
func (h *Handle) TeardownRaw() (int32, error) {
	if h.unloaded.Load() {
		return -1, ErrUnloaded
	}
	return h.ep.teardown(), nil
}

// Unload closes the library. Safe to call once; subsequent calls are
// no-ops. The caller must guarantee no in-flight call references the
// handle (the record store holds the plugin's exclusive lock and waits
// for the in-flight count to drain before calling this).
func (h *Handle) Unload() error {
	if !h.unloaded.CompareAndSwap(false, true) {
		return nil
	}
	if err := dlClose(h.lib); err != nil {
		return oops.Code("LOAD_FAILED").
			With("path", h.path).
			Wrap(fmt.Errorf("%w: unload: %v", ErrLoadFailed, err))
	}
	return nil
}
