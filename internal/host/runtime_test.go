// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadstone/loadstone/internal/bridge"
	"github.com/loadstone/loadstone/internal/host/capability"
	"github.com/loadstone/loadstone/internal/nativeload"
	"github.com/loadstone/loadstone/pkg/hostapi"
)

func newNativeRuntime(t *testing.T) *nativeRuntime {
	t.Helper()
	required, err := semver.NewVersion("1.0.0")
	require.NoError(t, err)
	return &nativeRuntime{
		loader:   nativeload.NewLoader(required),
		enforcer: capability.NewEnforcer(),
		base:     hostapi.NewDefaultCallbacks(t.TempDir(), testLogger()),
		dataRoot: t.TempDir(),
		logger:   testLogger(),
		bridges:  make(map[string]*bridge.Runtime),
	}
}

func TestNativeRuntime_BridgeReusedAcrossEnableCycles(t *testing.T) {
	n := newNativeRuntime(t)
	missing := filepath.Join(t.TempDir(), "absent.so")

	// Repeated opens for the same plugin must not grow the bridge set;
	// a fresh bridge per cycle would rebuild callback trampolines, which
	// are process-lifetime and capped.
	for range 3 {
		_, err := n.Open("vendor.sample", missing, nil)
		require.Error(t, err)
	}
	first := n.bridgeFor("vendor.sample")
	assert.Same(t, first, n.bridgeFor("vendor.sample"))
	assert.Len(t, n.bridges, 1)

	n.bridgeFor("vendor.other")
	assert.Len(t, n.bridges, 2)
}
