// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
)

// extractArchive unpacks a plugin zip artifact into destDir. Entries that
// would escape the destination are rejected before anything is written.
func extractArchive(zipPath, destDir string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return oops.Code("VERIFY_FAILED").
			With("path", zipPath).
			Wrap(err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := sanitizeEntry(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return oops.With("path", target).Wrap(err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
			return oops.With("path", target).Wrap(err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeEntry resolves an archive entry name under destDir, rejecting
// absolute paths and parent traversal.
func sanitizeEntry(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", oops.Code("VERIFY_FAILED").
			With("entry", name).
			Errorf("archive entry escapes destination")
	}
	return filepath.Join(destDir, cleaned), nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return oops.With("entry", f.Name).Wrap(err)
	}
	defer rc.Close()

	// Keep the archived mode so library files stay loadable, but never
	// wider than owner+group.
	mode := f.Mode().Perm() & 0o770
	if mode == 0 {
		mode = 0o600
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return oops.With("path", target).Wrap(err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return oops.With("path", target).Wrap(err)
	}
	return out.Close()
}

// placeInstall moves a fully staged plugin directory to its final install
// path, replacing any previous contents. Rename is attempted first; a
// cross-device copy is the fallback when cache and plugins directories
// live on different filesystems.
func placeInstall(staged, target string) error {
	if err := os.RemoveAll(target); err != nil {
		return oops.With("path", target).Wrap(err)
	}
	if err := os.Rename(staged, target); err == nil {
		return nil
	}
	if err := copyTree(staged, target); err != nil {
		return err
	}
	return os.RemoveAll(staged)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o700)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}
