// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"time"

	"github.com/loadstone/loadstone/internal/observability"
)

// hostMetrics wraps the observability metrics with nil-safe recording so
// hosts without a metrics server skip all instrumentation.
type hostMetrics struct {
	m *observability.Metrics
}

func (h hostMetrics) transition(plugin string, to State) {
	if h.m == nil {
		return
	}
	h.m.LifecycleTransitions.WithLabelValues(plugin, to.String()).Inc()
}

func (h hostMetrics) message(plugin, verb, outcome string, d time.Duration) {
	if h.m == nil {
		return
	}
	h.m.MessagesTotal.WithLabelValues(plugin, verb, outcome).Inc()
	h.m.MessageDuration.WithLabelValues(plugin, verb).Observe(d.Seconds())
}

func (h hostMetrics) setStates(counts map[State]int) {
	if h.m == nil {
		return
	}
	for state, name := range stateNames {
		h.m.PluginsByState.WithLabelValues(name).Set(float64(counts[state]))
	}
}
