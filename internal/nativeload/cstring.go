// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package nativeload

import "unsafe"

// CString returns a NUL-terminated byte buffer for passing a Go string
// across the ABI. The caller must keep the returned slice alive (via
// runtime.KeepAlive) until the native call returns.
func CString(s string) []byte {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf
}

// CStringPtr returns a pointer to the first byte of a CString buffer.
func CStringPtr(buf []byte) unsafe.Pointer {
	return unsafe.Pointer(&buf[0])
}

// GoString copies a NUL-terminated C string into a Go string. Returns ""
// for a nil pointer.
//
//nolint:govet // uintptr comes from the foreign side; it is never a Go pointer
func GoString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(ptr + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
}

// CopyInto copies a Go string into a caller-supplied native buffer of the
// given capacity, NUL-terminating when it fits. Returns the full length of
// the source so callers can detect truncation.
//
//nolint:govet // dst is a foreign buffer address, never a Go pointer
func CopyInto(dst uintptr, size uint32, src string) int32 {
	if dst == 0 || size == 0 {
		return int32(len(src))
	}
	out := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(size))
	n := copy(out, src)
	if n < int(size) {
		out[n] = 0
	} else {
		out[int(size)-1] = 0
	}
	return int32(len(src))
}
