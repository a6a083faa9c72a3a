// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadstone/loadstone/internal/manifest"
)

func TestStore_GetOrCreate(t *testing.T) {
	s := newStore()

	rec, created := s.getOrCreate("vendor.sample")
	require.NotNil(t, rec)
	assert.True(t, created)
	assert.Equal(t, StateDiscovered, rec.state)

	again, created := s.getOrCreate("vendor.sample")
	assert.False(t, created)
	assert.Same(t, rec, again)
}

func TestStore_Remove(t *testing.T) {
	s := newStore()
	s.getOrCreate("vendor.sample")
	s.remove("vendor.sample")

	_, ok := s.get("vendor.sample")
	assert.False(t, ok)

	// Removing an absent record is a no-op.
	s.remove("vendor.sample")
}

func TestStore_ListSortedSnapshot(t *testing.T) {
	s := newStore()
	for _, id := range []string{"vendor.zeta", "vendor.alpha", "vendor.mid"} {
		rec, _ := s.getOrCreate(id)
		rec.mu.Lock()
		rec.manifest = &manifest.Manifest{ID: id, Name: id, Version: "1.0.0"}
		rec.state = StateInstalled
		rec.mu.Unlock()
	}

	infos := s.list()
	require.Len(t, infos, 3)
	assert.Equal(t, "vendor.alpha", infos[0].ID)
	assert.Equal(t, "vendor.mid", infos[1].ID)
	assert.Equal(t, "vendor.zeta", infos[2].ID)
	assert.Equal(t, "1.0.0", infos[0].Version)
}

func TestStore_CountByState(t *testing.T) {
	s := newStore()
	a, _ := s.getOrCreate("vendor.a")
	a.state = StateEnabled
	b, _ := s.getOrCreate("vendor.b")
	b.state = StateEnabled
	c, _ := s.getOrCreate("vendor.c")
	c.state = StateFailed

	counts := s.countByState()
	assert.Equal(t, 2, counts[StateEnabled])
	assert.Equal(t, 1, counts[StateFailed])
	assert.Equal(t, 0, counts[StateDisabled])
}

func TestRecord_SetStateClearsError(t *testing.T) {
	r := newRecord("vendor.sample")
	r.setState(StateFailed, "initialize returned 3")
	assert.Equal(t, "initialize returned 3", r.lastErr)

	r.setState(StateInstalled, "")
	assert.Empty(t, r.lastErr)
}
