// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package host

import (
	"context"
	"database/sql"
	"time"

	"github.com/samber/oops"

	_ "modernc.org/sqlite"
)

// catalog mirrors the record store into sqlite so the set of known
// plugins survives restarts. The in-memory store stays authoritative;
// the catalog is written after each transition and read once on startup.
type catalog struct {
	db *sql.DB
}

func openCatalog(path string) (*catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS plugins (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		state TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		install_path TEXT NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}

	return &catalog{db: db}, nil
}

func (c *catalog) upsert(ctx context.Context, info Info) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO plugins (id, name, version, state, last_error, install_path, fingerprint, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			state = excluded.state,
			last_error = excluded.last_error,
			install_path = excluded.install_path,
			fingerprint = excluded.fingerprint,
			updated_at = excluded.updated_at`,
		info.ID, info.Name, info.Version, info.State.String(),
		info.LastError, info.InstallPath, info.Fingerprint, time.Now().UTC())
	if err != nil {
		return oops.With("plugin", info.ID).Wrap(err)
	}
	return nil
}

func (c *catalog) delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM plugins WHERE id = ?`, id)
	if err != nil {
		return oops.With("plugin", id).Wrap(err)
	}
	return nil
}

// load returns every persisted record. Loaded states are demoted to
// disabled: native handles never survive a restart.
func (c *catalog) load(ctx context.Context) ([]Info, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, version, state, last_error, install_path, fingerprint FROM plugins ORDER BY id`)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var stateName string
		if err := rows.Scan(&info.ID, &info.Name, &info.Version,
			&stateName, &info.LastError, &info.InstallPath, &info.Fingerprint); err != nil {
			return nil, oops.Wrap(err)
		}

		state, err := ParseState(stateName)
		if err != nil {
			state = StateFailed
			info.LastError = err.Error()
		}
		if state.Loaded() {
			state = StateDisabled
		}
		info.State = state
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (c *catalog) Close() error {
	return c.db.Close()
}
