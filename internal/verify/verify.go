// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

// Package verify checks downloaded plugin artifacts before they are
// installed. Checksum mismatches are always fatal to an install; there is
// no bypass path.
package verify

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/blake2b"
)

// Sentinel errors for programmatic checks.
var (
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")
	ErrBadSignature     = errors.New("artifact signature invalid")
)

// VerifiedArtifact describes an artifact that passed verification.
type VerifiedArtifact struct {
	Path     string
	Checksum string // hex sha256
	Size     int64
}

// Verifier validates artifacts against registry-claimed checksums and,
// when a publisher key is configured, ed25519 signatures.
type Verifier struct {
	publisherKey ed25519.PublicKey
}

// NewVerifier creates a checksum-only verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// WithPublisherKey enables signature verification. Returns the receiver
// for chaining during construction.
func (v *Verifier) WithPublisherKey(key ed25519.PublicKey) *Verifier {
	v.publisherKey = key
	return v
}

// VerifyFile checks the file at path against the expected hex sha256
// checksum. On success the artifact's identity is returned for catalog
// bookkeeping.
func (v *Verifier) VerifyFile(path, expected string) (VerifiedArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return VerifiedArtifact{}, oops.Code("VERIFY_FAILED").
			With("path", path).
			Wrap(err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return VerifiedArtifact{}, oops.Code("VERIFY_FAILED").
			With("path", path).
			Wrap(err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, expected) {
		return VerifiedArtifact{}, oops.Code("VERIFY_FAILED").
			With("path", path).
			With("expected", expected).
			With("actual", got).
			Wrap(fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, got))
	}

	return VerifiedArtifact{Path: path, Checksum: got, Size: size}, nil
}

// VerifySignature checks an ed25519 signature over the artifact bytes.
// A verifier without a publisher key accepts unsigned artifacts.
func (v *Verifier) VerifySignature(path string, signature []byte) error {
	if v.publisherKey == nil {
		return nil
	}
	if len(signature) == 0 {
		return oops.Code("VERIFY_FAILED").
			With("path", path).
			Wrap(fmt.Errorf("%w: signature required but absent", ErrBadSignature))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return oops.Code("VERIFY_FAILED").With("path", path).Wrap(err)
	}
	if !ed25519.Verify(v.publisherKey, data, signature) {
		return oops.Code("VERIFY_FAILED").
			With("path", path).
			Wrap(ErrBadSignature)
	}
	return nil
}

// ContentAddress returns a blake2b-256 hex digest of the file. The host
// records it for each installed library and compares it on later scans to
// detect on-disk modification.
func ContentAddress(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", oops.Code("VERIFY_FAILED").With("path", path).Wrap(err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", oops.Wrap(err)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", oops.Code("VERIFY_FAILED").With("path", path).Wrap(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumHex returns the hex sha256 of arbitrary bytes. Used by tests
// and by install flows that already hold the artifact in memory.
func ChecksumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
