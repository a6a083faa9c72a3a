// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
)

// scanDebounce coalesces bursts of filesystem events (an install touches
// many files) into a single rescan.
const scanDebounce = 500 * time.Millisecond

// WatchPlugins watches the plugins directory and rescans after changes
// settle. Blocks until ctx is cancelled. Scan failures are logged and do
// not stop the watch.
func (h *Host) WatchPlugins(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.Wrap(err)
	}
	defer watcher.Close()

	if err := watcher.Add(h.cfg.PluginsDir); err != nil {
		return oops.With("dir", h.cfg.PluginsDir).Wrap(err)
	}

	h.logger.Info("watching plugins directory", "dir", h.cfg.PluginsDir)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				pending = time.After(scanDebounce)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn("plugins watcher error", "error", werr)

		case <-pending:
			pending = nil
			if err := h.ScanInstalled(ctx); err != nil {
				h.logger.Warn("rescan after change failed", "error", err)
			}
		}
	}
}
