// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"context"
	"errors"
	"slices"

	"github.com/samber/oops"
)

// Enable loads a plugin and its declared dependencies in dependency
// order, running each plugin's initializer after its library is bound.
// Dependencies that are already loaded are left alone; a dependency that
// fails to enable aborts the whole operation before the requested plugin
// is touched. Cycles and untracked dependencies are rejected up front.
func (h *Host) Enable(ctx context.Context, id string) error {
	order, err := h.resolveEnableOrder(id)
	if err != nil {
		return err
	}

	for _, cur := range order {
		if cur == id {
			if err := h.enableOne(ctx, cur); err != nil {
				return err
			}
			continue
		}
		if info, gerr := h.Get(cur); gerr == nil && info.State.Loaded() {
			continue
		}
		if err := h.enableOne(ctx, cur); err != nil {
			return oops.Code("DEPENDENCY_FAILED").
				With("plugin", id).
				With("dependency", cur).
				Wrap(err)
		}
	}
	return nil
}

// Disable tears down a plugin and, first, every loaded plugin that
// transitively depends on it, deepest dependents first. Files are
// retained for all of them.
func (h *Host) Disable(ctx context.Context, id string) error {
	if _, ok := h.store.get(id); !ok {
		return h.notFound(id)
	}

	for _, dep := range h.loadedDependents(id) {
		if err := h.disableOne(ctx, dep); err != nil && !errors.Is(err, ErrStateInvalid) {
			return err
		}
	}
	return h.disableOne(ctx, id)
}

// dependsOn returns a copy of the plugin's declared dependency list. The
// second return reports whether the plugin is tracked at all.
func (h *Host) dependsOn(id string) ([]string, bool) {
	rec, ok := h.store.get(id)
	if !ok {
		return nil, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.manifest == nil {
		return nil, true
	}
	return slices.Clone(rec.manifest.DependsOn), true
}

// resolveEnableOrder topologically sorts the plugin's dependency closure
// so dependencies come before their dependents. The requested plugin is
// always the last element.
func (h *Host) resolveEnableOrder(id string) ([]string, error) {
	var order []string
	visited := make(map[string]bool)
	inProgress := make(map[string]bool)

	var visit func(cur string) error
	visit = func(cur string) error {
		if visited[cur] {
			return nil
		}
		if inProgress[cur] {
			return oops.Code("DEPENDENCY_CYCLE").
				With("plugin", id).
				With("at", cur).
				Errorf("dependency cycle through %q", cur)
		}
		inProgress[cur] = true

		deps, ok := h.dependsOn(cur)
		if !ok {
			if cur == id {
				return h.notFound(id)
			}
			return oops.Code("DEPENDENCY_MISSING").
				With("plugin", id).
				With("dependency", cur).
				Errorf("dependency %q is not a tracked plugin", cur)
		}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}

		delete(inProgress, cur)
		visited[cur] = true
		order = append(order, cur)
		return nil
	}

	if err := visit(id); err != nil {
		return nil, err
	}
	return order, nil
}

// loadedDependents returns the loaded plugins that transitively depend
// on id, ordered deepest first so cascading disable unwinds the graph
// from the leaves. Unloaded intermediaries are traversed but not
// returned.
func (h *Host) loadedDependents(id string) []string {
	infos := h.store.list()
	deps := make(map[string][]string, len(infos))
	loaded := make(map[string]bool, len(infos))
	for _, info := range infos {
		d, _ := h.dependsOn(info.ID)
		deps[info.ID] = d
		loaded[info.ID] = info.State.Loaded()
	}

	var dependents []string
	discovered := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, info := range infos {
			if discovered[info.ID] || !slices.Contains(deps[info.ID], cur) {
				continue
			}
			discovered[info.ID] = true
			if loaded[info.ID] {
				dependents = append(dependents, info.ID)
			}
			queue = append(queue, info.ID)
		}
	}

	slices.Reverse(dependents)
	return dependents
}
