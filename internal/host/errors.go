// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import "errors"

// Sentinel errors for programmatic checks. Returned errors wrap these and
// carry oops context (plugin id, states, paths).
var (
	ErrPluginNotFound = errors.New("plugin not found")
	ErrStateInvalid   = errors.New("operation invalid for plugin state")
	ErrNoRegistry     = errors.New("no registry configured")
)
