// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

// Package registry resolves plugin versions against a remote registry and
// fetches release artifacts into the local cache.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Sentinel errors for programmatic checks.
var (
	ErrNotFound    = errors.New("plugin not found in registry")
	ErrUnavailable = errors.New("registry unavailable")
)

// resolutionCacheSize bounds the pinned-version resolution cache.
const resolutionCacheSize = 256

// ResolvedVersion is a registry answer: a concrete version with the
// artifact's download location and expected checksum. Signature, when
// present, is a hex ed25519 signature over the artifact bytes by the
// registry's publisher key.
type ResolvedVersion struct {
	ID        string `json:"id"`
	Version   string `json:"version"`
	URL       string `json:"url"`
	Checksum  string `json:"checksum"` // hex sha256 of the artifact
	Signature string `json:"signature,omitempty"`
	Size      int64  `json:"size"`
}

// SemVersion parses the resolved version string.
func (r ResolvedVersion) SemVersion() (*semver.Version, error) {
	return semver.NewVersion(r.Version)
}

// Client talks to a plugin registry over HTTP. Resolution of exact pins is
// cached; range and "latest" requests always hit the network. Transient
// failures (5xx, connection errors) are retried with backoff.
type Client struct {
	baseURL   string
	http      *http.Client
	cache     *lru.Cache[string, ResolvedVersion]
	stageDir  string
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header sent on registry requests,
// identifying the host and its version to the registry.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a registry client. Fetched artifacts are staged under
// stageDir with unique names; callers verify and move them into place.
func NewClient(baseURL, stageDir string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, oops.Code("CONFIG_INVALID").
			Errorf("registry base URL not configured")
	}

	cache, err := lru.New[string, ResolvedVersion](resolutionCacheSize)
	if err != nil {
		return nil, oops.Wrap(err)
	}

	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 30 * time.Second},
		cache:    cache,
		stageDir: stageDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newRequest builds a GET request carrying the client's identity headers.
func (c *Client) newRequest(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// Resolve asks the registry for the concrete version satisfying spec.
// spec may be an exact version, a semver range, or "latest".
func (c *Client) Resolve(ctx context.Context, id, spec string) (ResolvedVersion, error) {
	exact := isExactVersion(spec)
	key := id + "@" + spec

	if exact {
		if rv, ok := c.cache.Get(key); ok {
			return rv, nil
		}
	}

	endpoint := fmt.Sprintf("%s/v1/plugins/%s/resolve?version=%s",
		c.baseURL, url.PathEscape(id), url.QueryEscape(spec))

	var rv ResolvedVersion
	err := c.withRetry(ctx, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, endpoint)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s@%s", ErrNotFound, id, spec)
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&rv)
	})
	if err != nil {
		return ResolvedVersion{}, oops.Code("REGISTRY_ERROR").
			With("plugin", id).
			With("spec", spec).
			Wrap(err)
	}

	if _, verr := rv.SemVersion(); verr != nil {
		return ResolvedVersion{}, oops.Code("REGISTRY_ERROR").
			With("plugin", id).
			With("version", rv.Version).
			Wrap(fmt.Errorf("registry returned unparseable version: %v", verr))
	}

	if exact {
		c.cache.Add(key, rv)
	}
	return rv, nil
}

// Fetch downloads the resolved artifact into the staging directory and
// returns the staged file path. The file carries a unique name so
// concurrent installs of the same plugin never collide; the caller owns
// the file and removes it after install or on verification failure.
func (c *Client) Fetch(ctx context.Context, rv ResolvedVersion) (string, error) {
	if err := os.MkdirAll(c.stageDir, 0o700); err != nil {
		return "", oops.Code("CONFIG_INVALID").
			With("dir", c.stageDir).
			Wrap(err)
	}

	staged := filepath.Join(c.stageDir,
		fmt.Sprintf("%s-%s.%s.part", rv.ID, rv.Version, ulid.Make()))

	err := c.withRetry(ctx, func(ctx context.Context) error {
		return c.download(ctx, rv.URL, staged)
	})
	if err != nil {
		_ = os.Remove(staged)
		return "", oops.Code("REGISTRY_ERROR").
			With("plugin", rv.ID).
			With("url", rv.URL).
			Wrap(err)
	}
	return staged, nil
}

// download streams one attempt to the staging path, truncating any
// partial content left by a previous attempt.
func (c *Client) download(ctx context.Context, artifactURL, dest string) error {
	req, err := c.newRequest(ctx, artifactURL)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: artifact %s", ErrNotFound, artifactURL)
	case resp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return retry.RetryableError(fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return f.Close()
}

func (c *Client) withRetry(ctx context.Context, fn retry.RetryFunc) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(250*time.Millisecond))
	return retry.Do(ctx, backoff, fn)
}

// isExactVersion reports whether spec pins a single version. Only exact
// pins are safe to cache; ranges and "latest" can resolve differently
// over time.
func isExactVersion(spec string) bool {
	_, err := semver.StrictNewVersion(spec)
	return err == nil
}
