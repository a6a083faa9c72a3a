// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/loadstone/loadstone/internal/bridge"
	"github.com/loadstone/loadstone/internal/host/capability"
	"github.com/loadstone/loadstone/internal/nativeload"
	"github.com/loadstone/loadstone/pkg/hostapi"
)

// Session is one enabled plugin's message channel. Produced by Runtime.Open;
// released with Close once no call is in flight.
type Session interface {
	ABIVersion() *semver.Version
	Init(ctx context.Context) error
	Send(ctx context.Context, verb string, payload []byte) ([]byte, error)
	Teardown(ctx context.Context) error
	Close() error
}

// Runtime abstracts the native loading and bridging machinery so tests can
// substitute an instrumented implementation.
type Runtime interface {
	// Open loads a plugin's library and prepares its callback table.
	// The plugin's initializer is invoked separately via Session.Init.
	Open(pluginID, libPath string, capabilities []string) (Session, error)

	// LibraryPath locates the shared-library artifact inside a plugin's
	// install directory.
	LibraryPath(dir, name string) string

	// LibraryExists reports whether the artifact is present.
	LibraryExists(dir, name string) bool
}

// nativeRuntime produces bridge sessions whose data_dir callback is scoped
// to the plugin's own subdirectory of the host data root. Bridge runtimes
// are kept per plugin id so each plugin's callback trampolines are built
// once for the process lifetime, no matter how many enable/disable cycles
// the record goes through.
type nativeRuntime struct {
	loader   *nativeload.Loader
	enforcer *capability.Enforcer
	base     hostapi.Callbacks
	dataRoot string
	logger   *slog.Logger

	mu      sync.Mutex
	bridges map[string]*bridge.Runtime
}

var _ Runtime = (*nativeRuntime)(nil)

func (n *nativeRuntime) bridgeFor(pluginID string) *bridge.Runtime {
	n.mu.Lock()
	defer n.mu.Unlock()
	rt, ok := n.bridges[pluginID]
	if !ok {
		cb := hostapi.ScopeDataDir(n.base, filepath.Join(n.dataRoot, pluginID))
		rt = bridge.NewRuntime(n.loader, cb, n.enforcer, n.logger)
		n.bridges[pluginID] = rt
	}
	return rt
}

func (n *nativeRuntime) Open(pluginID, libPath string, capabilities []string) (Session, error) {
	s, err := n.bridgeFor(pluginID).Open(pluginID, libPath, capabilities)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (n *nativeRuntime) LibraryPath(dir, name string) string {
	return n.loader.LibraryPath(dir, name)
}

func (n *nativeRuntime) LibraryExists(dir, name string) bool {
	return n.loader.LibraryExists(dir, name)
}
