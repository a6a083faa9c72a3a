// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package bridge

import (
	"log/slog"

	"github.com/loadstone/loadstone/internal/host/capability"
	"github.com/loadstone/loadstone/internal/nativeload"
	"github.com/loadstone/loadstone/pkg/hostapi"
)

// Callback capability names checked against a plugin's manifest grants.
// Config capabilities are suffixed with the key being touched, so grants
// like "config.read.**" scope what a plugin may see.
const (
	capLog       = "log"
	capDataDir   = "data-dir"
	capConfRead  = "config.read."
	capConfWrite = "config.write."
)

// missing is the config_get return value for an absent or denied key
// (int32 -1 as seen from the C side).
const missing = ^uintptr(0)

// vtable is the host callback table handed to a plugin's init entry
// point. Layout is fixed by the ABI: a version word followed by four
// C-callable function pointers. The struct must stay reachable for the
// lifetime of the loaded handle.
type vtable struct {
	abiVersion uint32
	_          uint32 // padding so the function pointers stay 8-byte aligned
	log        uintptr
	configGet  uintptr
	configSet  uintptr
	dataDir    uintptr
}

// callbackFuncs holds the Go-side callback implementations before they
// are wrapped as C-callable pointers. Split out so the capability and
// buffer logic is testable without a foreign caller.
type callbackFuncs struct {
	log       func(level, msg uintptr) uintptr
	configGet func(key, out, size uintptr) uintptr
	configSet func(key, value uintptr) uintptr
	dataDir   func(out, size uintptr) uintptr
}

// newCallbackFuncs builds the callback set for one plugin. Every callback
// checks the plugin's capability grants before touching the embedding
// application's Callbacks; denials fail soft (dropped log line, missing
// config value) rather than faulting the foreign caller.
func newCallbackFuncs(pluginID string, cb hostapi.Callbacks, enforcer *capability.Enforcer, logger *slog.Logger) callbackFuncs {
	return callbackFuncs{
		log: func(level, msg uintptr) uintptr {
			if !enforcer.Check(pluginID, capLog) {
				logger.Debug("callback denied", "plugin", pluginID, "capability", capLog)
				return 0
			}
			cb.Log(int(int32(level)), nativeload.GoString(msg))
			return 0
		},

		configGet: func(key, out, size uintptr) uintptr {
			k := nativeload.GoString(key)
			if !enforcer.Check(pluginID, capConfRead+k) {
				logger.Debug("callback denied", "plugin", pluginID, "capability", capConfRead+k)
				return missing
			}
			v, ok := cb.ConfigGet(k)
			if !ok {
				return missing
			}
			return uintptr(nativeload.CopyInto(out, uint32(size), v))
		},

		configSet: func(key, value uintptr) uintptr {
			k := nativeload.GoString(key)
			if !enforcer.Check(pluginID, capConfWrite+k) {
				logger.Debug("callback denied", "plugin", pluginID, "capability", capConfWrite+k)
				return 1
			}
			if cb.ConfigSet(k, nativeload.GoString(value)) {
				return 0
			}
			return 1
		},

		dataDir: func(out, size uintptr) uintptr {
			if !enforcer.Check(pluginID, capDataDir) {
				logger.Debug("callback denied", "plugin", pluginID, "capability", capDataDir)
				return 0
			}
			return uintptr(nativeload.CopyInto(out, uint32(size), cb.DataDir()))
		},
	}
}

// newVTable wraps the callback set as C-callable pointers. purego
// callback trampolines are process-lifetime; Runtime.vtableFor builds
// each plugin's table exactly once and reuses it across enable cycles.
func newVTable(pluginID string, abiVersion uint32, cb hostapi.Callbacks, enforcer *capability.Enforcer, logger *slog.Logger) *vtable {
	fns := newCallbackFuncs(pluginID, cb, enforcer, logger)
	return &vtable{
		abiVersion: abiVersion,
		log:        nativeload.NewCallback(fns.log),
		configGet:  nativeload.NewCallback(fns.configGet),
		configSet:  nativeload.NewCallback(fns.configSet),
		dataDir:    nativeload.NewCallback(fns.dataDir),
	}
}
