// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

// Package hostapi defines the capability surface the host exposes to
// plugins during a message call.
package hostapi

import (
	"log/slog"
	"sync"
)

// Log levels passed by plugins through the log callback.
const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// Callbacks is the fixed capability set a plugin may invoke while one of
// its message calls is executing. The bridge forwards plugin-initiated
// invocations here; it never executes plugin code on its own initiative.
//
// Implementations must be safe for concurrent use: a reentrant plugin may
// invoke callbacks from overlapping message calls.
type Callbacks interface {
	// Log records a message on behalf of a plugin.
	// Level is one of the Level* constants.
	Log(level int, message string)

	// ConfigGet returns a configuration value and whether it exists.
	ConfigGet(key string) (string, bool)

	// ConfigSet stores a configuration value. Returns false if the value
	// was rejected.
	ConfigSet(key, value string) bool

	// DataDir returns the directory a plugin may use for its own data.
	DataDir() string
}

// DefaultCallbacks is a Callbacks implementation backed by slog and an
// in-memory configuration map. Used when the embedding application does
// not supply its own.
type DefaultCallbacks struct {
	dataDir string
	logger  *slog.Logger
	mu      sync.RWMutex
	config  map[string]string
}

var _ Callbacks = (*DefaultCallbacks)(nil)

// NewDefaultCallbacks creates default callbacks rooted at dataDir.
// If logger is nil, slog.Default() is used.
func NewDefaultCallbacks(dataDir string, logger *slog.Logger) *DefaultCallbacks {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultCallbacks{
		dataDir: dataDir,
		logger:  logger,
		config:  make(map[string]string),
	}
}

// WithConfig seeds initial configuration values. Returns the receiver for
// chaining during construction; not safe to call after the host starts.
func (c *DefaultCallbacks) WithConfig(config map[string]string) *DefaultCallbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range config {
		c.config[k] = v
	}
	return c
}

// Log writes the plugin message to the logger with a [plugin] prefix.
func (c *DefaultCallbacks) Log(level int, message string) {
	switch level {
	case LevelTrace, LevelDebug:
		c.logger.Debug("[plugin] " + message)
	case LevelInfo:
		c.logger.Info("[plugin] " + message)
	case LevelWarn:
		c.logger.Warn("[plugin] " + message)
	default:
		c.logger.Error("[plugin] " + message)
	}
}

// ConfigGet returns the stored value for key.
func (c *DefaultCallbacks) ConfigGet(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.config[key]
	return v, ok
}

// ConfigSet stores value under key.
func (c *DefaultCallbacks) ConfigSet(key, value string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config[key] = value
	return true
}

// DataDir returns the configured data directory.
func (c *DefaultCallbacks) DataDir() string {
	return c.dataDir
}

// ScopeDataDir returns callbacks identical to base except that DataDir
// reports dir. The host uses this to hand each plugin its own data
// directory while sharing the rest of the callback surface.
func ScopeDataDir(base Callbacks, dir string) Callbacks {
	return scopedCallbacks{Callbacks: base, dir: dir}
}

type scopedCallbacks struct {
	Callbacks
	dir string
}

func (s scopedCallbacks) DataDir() string {
	return s.dir
}
