// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

// Package host supervises native plugins through their lifecycle:
// discovery, installation, enable/disable, message dispatch, update, and
// uninstall. It composes the manifest, verify, registry, and native
// loading machinery behind a single façade; callers never touch a raw
// handle.
package host

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/loadstone/loadstone/internal/bridge"
	"github.com/loadstone/loadstone/internal/host/capability"
	"github.com/loadstone/loadstone/internal/manifest"
	"github.com/loadstone/loadstone/internal/nativeload"
	"github.com/loadstone/loadstone/internal/observability"
	"github.com/loadstone/loadstone/internal/registry"
	"github.com/loadstone/loadstone/internal/verify"
	"github.com/loadstone/loadstone/internal/xdg"
	"github.com/loadstone/loadstone/pkg/hostapi"
)

// Host is the public façade over the plugin runtime. Safe for concurrent
// use; operations on different plugins proceed independently.
type Host struct {
	cfg       Config
	store     *store
	runtime   Runtime
	registry  *registry.Client
	verifier  *verify.Verifier
	catalog   *catalog
	callbacks hostapi.Callbacks
	metrics   hostMetrics
	logger    *slog.Logger
}

// Option configures a Host during construction.
type Option func(*Host)

// WithCallbacks supplies the embedding application's callback surface.
func WithCallbacks(cb hostapi.Callbacks) Option {
	return func(h *Host) { h.callbacks = cb }
}

// WithLogger sets the host logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// WithMetrics attaches prometheus metrics recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Host) { h.metrics = hostMetrics{m: m} }
}

// WithRuntime replaces the native runtime. Tests use this to substitute
// an instrumented implementation.
func WithRuntime(rt Runtime) Option {
	return func(h *Host) { h.runtime = rt }
}

// WithVerifier replaces the artifact verifier, e.g. to require publisher
// signatures.
func WithVerifier(v *verify.Verifier) Option {
	return func(h *Host) { h.verifier = v }
}

// New creates a plugin host. Working directories are created, the sqlite
// catalog (if configured) is restored, and no plugin code runs until
// Enable is called.
func New(cfg Config, opts ...Option) (*Host, error) {
	required, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if err := cfg.ensureDirs(); err != nil {
		return nil, err
	}

	h := &Host{
		cfg:      cfg,
		store:    newStore(),
		verifier: verify.NewVerifier(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.callbacks == nil {
		h.callbacks = hostapi.NewDefaultCallbacks(cfg.DataDir, h.logger)
	}
	if h.runtime == nil {
		h.runtime = &nativeRuntime{
			loader:   nativeload.NewLoader(required),
			enforcer: capability.NewEnforcer(),
			base:     h.callbacks,
			dataRoot: cfg.DataDir,
			logger:   h.logger,
			bridges:  make(map[string]*bridge.Runtime),
		}
	}

	if cfg.RegistryURL != "" {
		ua := "loadstone"
		if cfg.HostVersion != "" {
			ua += "/" + cfg.HostVersion
		}
		client, err := registry.NewClient(cfg.RegistryURL, cfg.CacheDir,
			registry.WithUserAgent(ua))
		if err != nil {
			return nil, err
		}
		h.registry = client
	}

	if cfg.CatalogPath != "" {
		if err := xdg.EnsureDir(filepath.Dir(cfg.CatalogPath)); err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrap(err)
		}
		cat, err := openCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		h.catalog = cat
		if err := h.restore(context.Background()); err != nil {
			_ = cat.Close()
			return nil, err
		}
	}

	return h, nil
}

// restore repopulates the record store from the catalog.
func (h *Host) restore(ctx context.Context) error {
	infos, err := h.catalog.load(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		rec, _ := h.store.getOrCreate(info.ID)
		rec.mu.Lock()
		rec.installPath = info.InstallPath
		rec.fingerprint = info.Fingerprint
		rec.state = info.State
		rec.lastErr = info.LastError
		if m, merr := manifest.Load(info.InstallPath); merr == nil {
			rec.manifest = m
		}
		rec.mu.Unlock()
	}
	h.metrics.setStates(h.store.countByState())
	return nil
}

// Close disables every loaded plugin and releases the catalog. The host
// must not be used afterwards.
func (h *Host) Close(ctx context.Context) error {
	for _, info := range h.store.list() {
		if info.State.Loaded() {
			if err := h.Disable(ctx, info.ID); err != nil {
				h.logger.Warn("disable during shutdown failed",
					"plugin", info.ID, "error", err)
			}
		}
	}
	if h.catalog != nil {
		return h.catalog.Close()
	}
	return nil
}

// List returns a snapshot of every tracked plugin, sorted by id.
func (h *Host) List() []Info {
	return h.store.list()
}

// Get returns the current view of one plugin.
func (h *Host) Get(id string) (Info, error) {
	rec, ok := h.store.get(id)
	if !ok {
		return Info{}, h.notFound(id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snapshot(), nil
}

// ScanInstalled walks the plugins directory and reconciles the record
// store with what is on disk. Plugins whose manifest fails to parse are
// recorded as failed with the parse error, never silently dropped. A
// plugin tracked as loaded is never re-loaded by scan; a version mismatch
// between disk and the live handle disables it and marks it failed rather
// than swapping code under a running handle. Installed plugins whose
// library no longer matches its install-time fingerprint are marked
// failed.
func (h *Host) ScanInstalled(ctx context.Context) error {
	entries, err := os.ReadDir(h.cfg.PluginsDir)
	if err != nil {
		return oops.Code("CONFIG_INVALID").
			With("dir", h.cfg.PluginsDir).
			Wrap(err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(h.cfg.PluginsDir, entry.Name())
		m, merr := manifest.Load(dir)

		id := entry.Name()
		if merr == nil {
			id = m.ID
		}

		rec, _ := h.store.getOrCreate(id)
		rec.mu.Lock()
		h.reconcileLocked(ctx, rec, dir, m, merr)
		info := rec.snapshot()
		rec.mu.Unlock()
		h.persist(ctx, info)
	}

	h.metrics.setStates(h.store.countByState())
	return nil
}

// reconcileLocked applies one scanned directory to its record. Caller
// holds the record lock.
func (h *Host) reconcileLocked(ctx context.Context, rec *record, dir string, m *manifest.Manifest, merr error) {
	if merr != nil {
		if rec.state.Loaded() {
			h.unloadLocked(ctx, rec)
		}
		rec.installPath = dir
		rec.setState(StateFailed, fmt.Sprintf("manifest: %v", merr))
		h.metrics.transition(rec.id, StateFailed)
		return
	}

	if rec.state.Loaded() {
		if rec.manifest != nil && rec.manifest.Version != m.Version {
			loaded := rec.manifest.Version
			h.unloadLocked(ctx, rec)
			rec.manifest = m
			rec.setState(StateFailed, fmt.Sprintf(
				"on-disk version %s differs from loaded version %s",
				m.Version, loaded))
			h.metrics.transition(rec.id, StateFailed)
		}
		return
	}

	prevVersion := ""
	if rec.manifest != nil {
		prevVersion = rec.manifest.Version
	}
	rec.manifest = m
	rec.installPath = dir

	// A version change on disk is a replacement, not tampering; the
	// install-time fingerprint no longer applies.
	if prevVersion != "" && prevVersion != m.Version {
		rec.fingerprint = ""
	}

	if rec.fingerprint != "" && h.runtime.LibraryExists(dir, m.Library) {
		addr, aerr := verify.ContentAddress(h.runtime.LibraryPath(dir, m.Library))
		if aerr != nil || addr != rec.fingerprint {
			rec.setState(StateFailed, "library modified on disk since install")
			h.metrics.transition(rec.id, StateFailed)
			return
		}
	}

	// Disabled plugins keep their state; files being present is what
	// Disabled already implies.
	if rec.state == StateDisabled {
		return
	}

	if h.runtime.LibraryExists(dir, m.Library) {
		rec.setState(StateInstalled, "")
	} else {
		rec.setState(StateDiscovered, "")
	}
}

// enableOne loads one plugin's library, resolves its entry points, and
// runs its initializer, assuming its dependencies are already enabled.
// Requires Installed or Disabled. On ABI incompatibility the record keeps
// its state and only last_error is set; any other failure moves the
// record to Failed with no handle retained.
func (h *Host) enableOne(ctx context.Context, id string) error {
	rec, ok := h.store.get(id)
	if !ok {
		return h.notFound(id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state != StateInstalled && rec.state != StateDisabled {
		return h.stateInvalid(id, "enable", rec.state)
	}
	m := rec.manifest
	if m == nil {
		return oops.Code("MANIFEST_INVALID").
			With("plugin", id).
			Errorf("no manifest tracked for plugin")
	}

	if err := xdg.EnsureDir(filepath.Join(h.cfg.DataDir, id)); err != nil {
		return oops.Code("CONFIG_INVALID").With("plugin", id).Wrap(err)
	}

	libPath := h.runtime.LibraryPath(rec.installPath, m.Library)
	sess, err := h.runtime.Open(id, libPath, m.Capabilities)
	if err != nil {
		if errors.Is(err, nativeload.ErrABIIncompatible) {
			// Structural mismatch: the record's files are intact and the
			// prior state still describes them.
			rec.lastErr = err.Error()
			h.persist(ctx, rec.snapshot())
			return err
		}
		rec.setState(StateFailed, err.Error())
		h.metrics.transition(id, StateFailed)
		h.persist(ctx, rec.snapshot())
		return err
	}

	if err := sess.Init(ctx); err != nil {
		_ = sess.Close()
		rec.setState(StateFailed, err.Error())
		h.metrics.transition(id, StateFailed)
		h.persist(ctx, rec.snapshot())
		return err
	}

	rec.session = sess
	rec.setState(StateEnabled, "")
	h.metrics.transition(id, StateEnabled)
	h.persist(ctx, rec.snapshot())
	h.logger.Info("plugin enabled", "plugin", id, "version", m.Version,
		"abi", sess.ABIVersion())
	return nil
}

// disableOne waits for one plugin's in-flight calls to drain, runs its
// teardown, and unloads the library. Files are retained. Teardown
// failures are logged and do not block the unload.
func (h *Host) disableOne(ctx context.Context, id string) error {
	rec, ok := h.store.get(id)
	if !ok {
		return h.notFound(id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.state.Loaded() {
		return h.stateInvalid(id, "disable", rec.state)
	}

	h.unloadLocked(ctx, rec)
	rec.setState(StateDisabled, "")
	h.metrics.transition(id, StateDisabled)
	h.persist(ctx, rec.snapshot())
	h.logger.Info("plugin disabled", "plugin", id)
	return nil
}

// unloadLocked drains in-flight calls, then tears down and closes the
// session. Caller holds the record lock.
func (h *Host) unloadLocked(ctx context.Context, rec *record) {
	rec.waitIdle()
	if rec.session == nil {
		return
	}
	if err := rec.session.Teardown(ctx); err != nil {
		h.callbacks.Log(hostapi.LevelWarn,
			fmt.Sprintf("%s: teardown failed: %v", rec.id, err))
		h.logger.Warn("plugin teardown failed", "plugin", rec.id, "error", err)
	}
	if err := rec.session.Close(); err != nil {
		h.logger.Warn("plugin unload failed", "plugin", rec.id, "error", err)
	}
	rec.session = nil
}

// SendMessage dispatches verb+payload to an enabled plugin and returns
// its reply. Calls to a non-reentrant plugin are serialized; a plugin
// whose manifest declares reentrancy takes concurrent calls. Either way
// the record lock is released during the foreign call, so List and Get
// stay responsive behind a slow plugin and the handle stays loaded until
// every call returns. A per-call failure does not change lifecycle state.
func (h *Host) SendMessage(ctx context.Context, id, verb string, payload []byte) ([]byte, error) {
	rec, ok := h.store.get(id)
	if !ok {
		return nil, h.notFound(id)
	}

	rec.mu.Lock()
	if !rec.state.Loaded() {
		state := rec.state
		rec.mu.Unlock()
		return nil, h.stateInvalid(id, "send", state)
	}

	reentrant := rec.manifest != nil && rec.manifest.Reentrant
	if !reentrant {
		// One call at a time: queue on the condition variable until the
		// in-flight call drains, then re-check that the plugin was not
		// disabled while we waited.
		for rec.inflight > 0 {
			rec.cond.Wait()
		}
		if !rec.state.Loaded() {
			state := rec.state
			rec.mu.Unlock()
			return nil, h.stateInvalid(id, "send", state)
		}
	}

	sess := rec.session
	rec.inflight++
	rec.state = StateRunning
	start := time.Now()
	rec.mu.Unlock()

	reply, err := sess.Send(ctx, verb, payload)

	rec.mu.Lock()
	rec.inflight--
	if rec.inflight == 0 && rec.state == StateRunning {
		rec.state = StateEnabled
	}
	rec.cond.Broadcast()
	rec.mu.Unlock()

	h.metrics.message(id, verb, outcomeLabel(err), time.Since(start))
	return reply, err
}

// InstallPlugin resolves a version against the registry, downloads and
// verifies the artifact, and places its files in the install directory.
// On failure a newly created record is removed; a pre-existing record
// reverts to its prior state with last_error set.
func (h *Host) InstallPlugin(ctx context.Context, id, version string) error {
	if h.registry == nil {
		return oops.Code("REGISTRY_ERROR").
			With("plugin", id).
			Wrap(ErrNoRegistry)
	}

	rec, created := h.store.getOrCreate(id)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state.Loaded() {
		if created {
			h.store.remove(id)
		}
		return h.stateInvalid(id, "install", rec.state)
	}

	prior := rec.state
	fail := func(err error) error {
		if created {
			h.store.remove(id)
			h.catalogDelete(ctx, id)
		} else {
			rec.state = prior
			rec.lastErr = err.Error()
			h.persist(ctx, rec.snapshot())
		}
		return err
	}

	rv, err := h.registry.Resolve(ctx, id, version)
	if err != nil {
		return fail(err)
	}

	artifact, err := h.registry.Fetch(ctx, rv)
	if err != nil {
		return fail(err)
	}
	defer os.Remove(artifact)

	if _, err := h.verifier.VerifyFile(artifact, rv.Checksum); err != nil {
		return fail(err)
	}

	sig, err := hex.DecodeString(rv.Signature)
	if err != nil {
		return fail(oops.Code("VERIFY_FAILED").
			With("plugin", id).
			Wrap(fmt.Errorf("registry returned malformed signature: %v", err)))
	}
	if err := h.verifier.VerifySignature(artifact, sig); err != nil {
		return fail(err)
	}

	staging := filepath.Join(h.cfg.CacheDir, "unpack-"+ulid.Make().String())
	defer os.RemoveAll(staging)

	if err := extractArchive(artifact, staging); err != nil {
		return fail(err)
	}

	m, err := manifest.Load(staging)
	if err != nil {
		return fail(oops.Code("MANIFEST_INVALID").With("plugin", id).Wrap(err))
	}
	if m.ID != id {
		return fail(oops.Code("MANIFEST_INVALID").
			With("plugin", id).
			With("manifest_id", m.ID).
			Errorf("artifact manifest declares id %q, expected %q", m.ID, id))
	}
	if m.Version != rv.Version {
		return fail(oops.Code("MANIFEST_INVALID").
			With("plugin", id).
			With("manifest_version", m.Version).
			With("resolved_version", rv.Version).
			Errorf("artifact manifest declares version %s, registry resolved %s",
				m.Version, rv.Version))
	}
	if !h.runtime.LibraryExists(staging, m.Library) {
		return fail(oops.Code("MANIFEST_INVALID").
			With("plugin", id).
			With("library", m.Library).
			Errorf("artifact does not contain the declared library"))
	}

	target := filepath.Join(h.cfg.PluginsDir, id)
	if err := placeInstall(staging, target); err != nil {
		return fail(err)
	}

	// Fingerprint the installed library so a later scan can detect
	// on-disk modification.
	fp, err := verify.ContentAddress(h.runtime.LibraryPath(target, m.Library))
	if err != nil {
		return fail(err)
	}

	rec.manifest = m
	rec.installPath = target
	rec.fingerprint = fp
	rec.setState(StateInstalled, "")
	h.metrics.transition(id, StateInstalled)
	h.persist(ctx, rec.snapshot())
	h.logger.Info("plugin installed", "plugin", id, "version", rv.Version)
	return nil
}

// Uninstall deletes a plugin's install directory and removes its record.
// Fails without touching the filesystem while the plugin is loaded.
func (h *Host) Uninstall(ctx context.Context, id string) error {
	rec, ok := h.store.get(id)
	if !ok {
		return h.notFound(id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state.Loaded() {
		return h.stateInvalid(id, "uninstall", rec.state)
	}

	if rec.installPath != "" {
		if err := os.RemoveAll(rec.installPath); err != nil {
			return oops.Code("CONFIG_INVALID").
				With("plugin", id).
				With("path", rec.installPath).
				Wrap(err)
		}
	}

	h.store.remove(id)
	h.catalogDelete(ctx, id)
	h.metrics.setStates(h.store.countByState())
	h.logger.Info("plugin uninstalled", "plugin", id)
	return nil
}

func (h *Host) notFound(id string) error {
	return oops.Code("PLUGIN_NOT_FOUND").
		With("plugin", id).
		Wrap(fmt.Errorf("%w: %s", ErrPluginNotFound, id))
}

func (h *Host) stateInvalid(id, op string, state State) error {
	return oops.Code("STATE_INVALID").
		With("plugin", id).
		With("operation", op).
		With("state", state.String()).
		Wrap(fmt.Errorf("%w: cannot %s plugin in state %s", ErrStateInvalid, op, state))
}

func (h *Host) persist(ctx context.Context, info Info) {
	if h.catalog == nil {
		return
	}
	if err := h.catalog.upsert(ctx, info); err != nil {
		h.logger.Warn("catalog write failed", "plugin", info.ID, "error", err)
	}
}

func (h *Host) catalogDelete(ctx context.Context, id string) {
	if h.catalog == nil {
		return
	}
	if err := h.catalog.delete(ctx, id); err != nil {
		h.logger.Warn("catalog delete failed", "plugin", id, "error", err)
	}
}

// outcomeLabel maps a message result to a low-cardinality metric label.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if o, ok := oops.AsOops(err); ok {
		if code, ok := o.Code().(string); ok && code != "" {
			return code
		}
	}
	return "error"
}
