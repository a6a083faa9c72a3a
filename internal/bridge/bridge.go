// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

// Package bridge marshals message calls across the plugin ABI and routes
// plugin-initiated callbacks back to the embedding application.
//
// Ownership discipline: verb and payload buffers are host-owned,
// NUL-terminated, and kept alive for the duration of the foreign call.
// The reply buffer is plugin-owned; the bridge copies it into Go memory
// and immediately returns it through the plugin's free export. No buffer
// crosses the boundary twice.
package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/loadstone/loadstone/internal/host/capability"
	"github.com/loadstone/loadstone/internal/nativeload"
	"github.com/loadstone/loadstone/pkg/hostapi"
)

// Dispatch status codes defined by the ABI.
const (
	statusOK          = 0
	statusUnsupported = 1
)

// Runtime opens bridge sessions over the native loader. One Runtime
// serves every plugin of a host; per-plugin state lives in the Session.
//
// Callback tables are memoized per plugin id. purego trampolines are
// process-lifetime and the process-wide callback table is hard-capped,
// so building a fresh vtable on every enable would exhaust it after
// enough enable/disable cycles. The memoized table stays valid across
// cycles: its closures capture only the plugin id, the shared callbacks
// object, and the enforcer, and the enforcer re-learns the plugin's
// grants on every Open.
type Runtime struct {
	loader   *nativeload.Loader
	callback hostapi.Callbacks
	enforcer *capability.Enforcer
	logger   *slog.Logger

	mu      sync.Mutex
	vtables map[string]*vtable
}

// NewRuntime creates a runtime binding loaded plugins to the embedding
// application's callbacks. If logger is nil, slog.Default() is used.
func NewRuntime(loader *nativeload.Loader, cb hostapi.Callbacks, enforcer *capability.Enforcer, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		loader:   loader,
		callback: cb,
		enforcer: enforcer,
		logger:   logger,
		vtables:  make(map[string]*vtable),
	}
}

// vtableFor returns the plugin's callback table, building it on first
// use. At most four trampolines are ever created per plugin id.
func (r *Runtime) vtableFor(pluginID string, abiVersion uint32) *vtable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vt, ok := r.vtables[pluginID]; ok {
		return vt
	}
	vt := newVTable(pluginID, abiVersion, r.callback, r.enforcer, r.logger)
	r.vtables[pluginID] = vt
	return vt
}

// Loader returns the underlying native loader.
func (r *Runtime) Loader() *nativeload.Loader {
	return r.loader
}

// Open loads the library at libPath, registers the plugin's capability
// grants, and builds its callback table. The plugin's initialize entry
// point is NOT invoked; callers do that via Session.Init once the record
// store has committed to the handle.
func (r *Runtime) Open(pluginID, libPath string, capabilities []string) (*Session, error) {
	if err := r.enforcer.SetGrants(pluginID, capabilities); err != nil {
		return nil, oops.Code("MANIFEST_INVALID").
			With("plugin", pluginID).
			Wrap(err)
	}

	handle, err := r.loader.Load(libPath)
	if err != nil {
		r.enforcer.RemoveGrants(pluginID)
		return nil, err
	}

	required := r.loader.Required()
	packed := uint32(required.Major())<<16 | uint32(required.Minor())

	return &Session{
		id:     pluginID,
		handle: handle,
		vt:     r.vtableFor(pluginID, packed),
		rt:     r,
	}, nil
}

// Session is one plugin's live message channel: a loaded handle plus its
// callback table. Sessions are not internally serialized; the record
// store enforces the single-call-at-a-time discipline for non-reentrant
// plugins.
type Session struct {
	id     string
	handle *nativeload.Handle
	vt     *vtable
	rt     *Runtime
}

// ABIVersion returns the version marker the plugin exported at load time.
func (s *Session) ABIVersion() *semver.Version {
	return s.handle.ABIVersion()
}

// Init invokes the plugin's initialize entry point with the callback
// table. The context is consulted before the foreign call only; a stalled
// initializer blocks the calling goroutine.
func (s *Session) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	status, err := s.callInit()
	if err != nil {
		return oops.Code("NOT_LOADED").With("plugin", s.id).Wrap(err)
	}
	if status != statusOK {
		return oops.Code("INIT_FAILED").
			With("plugin", s.id).
			With("status", status).
			Errorf("plugin initialize returned %d", status)
	}
	return nil
}

func (s *Session) callInit() (status int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("NATIVE_CALL_FAILURE").
				With("plugin", s.id).
				Errorf("initialize faulted: %v", r)
		}
	}()
	return s.handle.InitRaw(unsafe.Pointer(s.vt))
}

// Send marshals verb+payload into the ABI calling convention, invokes the
// plugin's dispatch entry point, and copies out the reply. The reply
// buffer is returned to the plugin's allocator before Send returns.
func (s *Session) Send(ctx context.Context, verb string, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if verb == "" || strings.ContainsRune(verb, 0) {
		return nil, oops.Code("MARSHAL_ERROR").
			With("plugin", s.id).
			Errorf("verb must be a non-empty NUL-free string")
	}
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		return nil, oops.Code("MARSHAL_ERROR").
			With("plugin", s.id).
			With("offset", i).
			Errorf("payload contains interior NUL byte")
	}

	verbBuf := nativeload.CString(verb)
	payloadBuf := nativeload.CString(string(payload))

	reply, status, err := s.callDispatch(verbBuf, payloadBuf)
	runtime.KeepAlive(verbBuf)
	runtime.KeepAlive(payloadBuf)
	if err != nil {
		return nil, err
	}

	switch status {
	case statusOK:
		return []byte(reply), nil
	case statusUnsupported:
		return nil, oops.Code("VERB_UNSUPPORTED").
			With("plugin", s.id).
			With("verb", verb).
			Errorf("plugin does not handle verb %q", verb)
	default:
		return nil, oops.Code("PLUGIN_ERROR").
			With("plugin", s.id).
			With("verb", verb).
			With("status", status).
			Errorf("plugin signaled error %d: %s", status, reply)
	}
}

// callDispatch performs the raw foreign call and settles buffer
// ownership: the reply is copied into Go memory and freed before return.
func (s *Session) callDispatch(verbBuf, payloadBuf []byte) (reply string, status int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("NATIVE_CALL_FAILURE").
				With("plugin", s.id).
				Errorf("dispatch faulted: %v", r)
		}
	}()

	ptr, rawErr := s.handle.DispatchRaw(
		nativeload.CStringPtr(verbBuf),
		nativeload.CStringPtr(payloadBuf),
		&status,
	)
	if rawErr != nil {
		return "", 0, oops.Code("NOT_LOADED").With("plugin", s.id).Wrap(rawErr)
	}

	if ptr != 0 {
		reply = nativeload.GoString(ptr)
		s.handle.FreeRaw(ptr)
	}
	return reply, status, nil
}

// Teardown invokes the plugin's teardown entry point. Failures are
// reported but callers treat them as best-effort; releasing the native
// handle takes priority over plugin cleanup.
func (s *Session) Teardown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	status, err := s.callTeardown()
	if err != nil {
		return err
	}
	if status != statusOK {
		return fmt.Errorf("plugin teardown returned %d", status)
	}
	return nil
}

func (s *Session) callTeardown() (status int32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("NATIVE_CALL_FAILURE").
				With("plugin", s.id).
				Errorf("teardown faulted: %v", r)
		}
	}()
	return s.handle.TeardownRaw()
}

// Close unloads the library and drops the plugin's capability grants.
// The caller must guarantee no call is in flight.
func (s *Session) Close() error {
	s.rt.enforcer.RemoveGrants(s.id)
	return s.handle.Unload()
}
