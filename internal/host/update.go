// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/loadstone/loadstone/pkg/errutil"
)

// UpdateStatus classifies one plugin's outcome in an update pass.
type UpdateStatus string

const (
	UpdateStatusUpdated  UpdateStatus = "updated"
	UpdateStatusUpToDate UpdateStatus = "up-to-date"
	UpdateStatusFailed   UpdateStatus = "failed"
)

// UpdateOutcome is one plugin's result in an UpdateReport.
type UpdateOutcome struct {
	ID     string
	From   string
	To     string
	Status UpdateStatus
	Error  string
}

// UpdateReport carries per-plugin outcomes of UpdateAll. One plugin's
// failure never masks another's success.
type UpdateReport struct {
	Outcomes []UpdateOutcome
}

// UpdateAll checks every enabled plugin against the registry and, where a
// newer version exists, performs disable, install, re-enable. If the
// re-enable fails that plugin ends Failed; no other plugin's state changes
// as a side effect.
func (h *Host) UpdateAll(ctx context.Context) (UpdateReport, error) {
	if h.registry == nil {
		return UpdateReport{}, oops.Code("REGISTRY_ERROR").Wrap(ErrNoRegistry)
	}

	var report UpdateReport
	for _, info := range h.store.list() {
		if !info.State.Loaded() {
			continue
		}
		report.Outcomes = append(report.Outcomes, h.updateOne(ctx, info))
	}
	return report, nil
}

func (h *Host) updateOne(ctx context.Context, info Info) UpdateOutcome {
	outcome := UpdateOutcome{ID: info.ID, From: info.Version}

	rv, err := h.registry.Resolve(ctx, info.ID, "latest")
	if err != nil {
		outcome.Status = UpdateStatusFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.To = rv.Version

	next, err := rv.SemVersion()
	if err != nil {
		outcome.Status = UpdateStatusFailed
		outcome.Error = err.Error()
		return outcome
	}
	if current, cerr := semver.NewVersion(info.Version); cerr == nil && !next.GreaterThan(current) {
		outcome.Status = UpdateStatusUpToDate
		outcome.To = info.Version
		return outcome
	}

	// Each step takes the record lock on its own, so a concurrent caller
	// can observe the intermediate Disabled and Installed states while an
	// update is in flight. The end state is always consistent: the plugin
	// finishes Enabled at the new version, or Failed with the step error.
	for _, step := range []struct {
		name string
		run  func() error
	}{
		{"disable", func() error { return h.Disable(ctx, info.ID) }},
		{"install", func() error { return h.InstallPlugin(ctx, info.ID, rv.Version) }},
		{"enable", func() error { return h.Enable(ctx, info.ID) }},
	} {
		if err := step.run(); err != nil {
			errutil.LogError(h.logger.With("plugin", info.ID, "step", step.name),
				"plugin update step failed", err)
			outcome.Status = UpdateStatusFailed
			outcome.Error = err.Error()
			return outcome
		}
	}

	outcome.Status = UpdateStatusUpdated
	return outcome
}
