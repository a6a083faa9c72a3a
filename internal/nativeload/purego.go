// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package nativeload

import "github.com/ebitengine/purego"

// registerFunc binds a C function address to a typed Go function pointer.
// Thin seam over purego so the binding mechanism appears in one place.
func registerFunc(fptr any, addr uintptr) {
	purego.RegisterFunc(fptr, addr)
}

// NewCallback wraps a Go function as a C-callable pointer. The returned
// pointer is never released; callback tables are created once per loaded
// handle and purego callbacks are process-lifetime by design.
func NewCallback(fn any) uintptr {
	return purego.NewCallback(fn)
}
