// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *catalog {
	t.Helper()
	cat, err := openCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func TestCatalog_UpsertAndLoad(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	info := Info{
		ID: "vendor.sample", Name: "Sample", Version: "1.0.0",
		State: StateInstalled, InstallPath: "/plugins/vendor.sample",
		Fingerprint: "abc123",
	}
	require.NoError(t, cat.upsert(ctx, info))

	// Upsert replaces on conflict.
	info.Version = "1.1.0"
	info.State = StateDisabled
	require.NoError(t, cat.upsert(ctx, info))

	infos, err := cat.load(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "1.1.0", infos[0].Version)
	assert.Equal(t, StateDisabled, infos[0].State)
	assert.Equal(t, "/plugins/vendor.sample", infos[0].InstallPath)
	assert.Equal(t, "abc123", infos[0].Fingerprint)
}

func TestCatalog_LoadDemotesLoadedStates(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.upsert(ctx, Info{
		ID: "vendor.live", Name: "Live", Version: "1.0.0",
		State: StateEnabled, InstallPath: "/plugins/vendor.live",
	}))

	infos, err := cat.load(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	// Handles never survive a restart.
	assert.Equal(t, StateDisabled, infos[0].State)
}

func TestCatalog_Delete(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.upsert(ctx, Info{
		ID: "vendor.gone", Version: "1.0.0", State: StateInstalled,
		InstallPath: "/plugins/vendor.gone",
	}))
	require.NoError(t, cat.delete(ctx, "vendor.gone"))

	infos, err := cat.load(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	// Deleting an absent row is a no-op.
	assert.NoError(t, cat.delete(ctx, "vendor.gone"))
}

func TestCatalog_FailedStateKeepsError(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.upsert(ctx, Info{
		ID: "vendor.broken", Version: "1.0.0", State: StateFailed,
		LastError: "initialize returned 3", InstallPath: "/plugins/vendor.broken",
	}))

	infos, err := cat.load(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, StateFailed, infos[0].State)
	assert.Equal(t, "initialize returned 3", infos[0].LastError)
}
