// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"sort"
	"sync"

	"github.com/loadstone/loadstone/internal/manifest"
)

// record is the authoritative in-memory entry for one plugin.
//
// Locking discipline: every state transition holds mu for its whole
// duration, so two goroutines can never enable, disable, or update the
// same plugin concurrently. Message calls release mu during the foreign
// call and track it in inflight, keeping List and Get responsive behind
// a slow plugin; non-reentrant callers additionally queue on cond until
// inflight drains, so those plugins see one call at a time. Unload paths
// wait on cond until inflight reaches zero.
type record struct {
	mu   sync.Mutex
	cond *sync.Cond

	id          string
	manifest    *manifest.Manifest
	installPath string
	fingerprint string // content address of the installed library, "" for untracked installs
	state       State
	lastErr     string
	session     Session
	inflight    int
}

func newRecord(id string) *record {
	r := &record{id: id, state: StateDiscovered}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// waitIdle blocks until no reentrant call is in flight. Caller holds mu.
func (r *record) waitIdle() {
	for r.inflight > 0 {
		r.cond.Wait()
	}
}

// setState transitions the record and clears last_error unless the target
// is Failed. Caller holds mu.
func (r *record) setState(s State, lastErr string) {
	r.state = s
	if s == StateFailed {
		r.lastErr = lastErr
	} else {
		r.lastErr = ""
	}
}

// snapshot copies the record's user-visible fields. Caller holds mu.
func (r *record) snapshot() Info {
	info := Info{
		ID:          r.id,
		State:       r.state,
		LastError:   r.lastErr,
		InstallPath: r.installPath,
		Fingerprint: r.fingerprint,
	}
	if r.manifest != nil {
		info.Name = r.manifest.Name
		info.Version = r.manifest.Version
	}
	return info
}

// Info is a point-in-time view of one plugin record. Fingerprint is the
// blake2b content address of the library recorded at install time; it is
// empty for plugins that appeared on disk without going through install.
type Info struct {
	ID          string
	Name        string
	Version     string
	State       State
	LastError   string
	InstallPath string
	Fingerprint string
}

// store maps plugin ids to records. The store lock guards only the map;
// record contents are guarded by the per-record lock, so operations on
// different plugins proceed independently.
type store struct {
	mu      sync.RWMutex
	records map[string]*record
}

func newStore() *store {
	return &store{records: make(map[string]*record)}
}

func (s *store) get(id string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// getOrCreate returns the record for id, creating it when absent. The
// second return reports whether the record was created by this call.
func (s *store) getOrCreate(id string) (*record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		return r, false
	}
	r := newRecord(id)
	s.records[id] = r
	return r, true
}

func (s *store) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// list returns a snapshot of every record, sorted by plugin id.
func (s *store) list() []Info {
	s.mu.RLock()
	records := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	s.mu.RUnlock()

	infos := make([]Info, 0, len(records))
	for _, r := range records {
		r.mu.Lock()
		infos = append(infos, r.snapshot())
		r.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// countByState tallies records per lifecycle state for the gauge.
func (s *store) countByState() map[State]int {
	counts := make(map[State]int, len(stateNames))
	for _, info := range s.list() {
		counts[info.State]++
	}
	return counts
}
