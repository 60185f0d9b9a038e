package storage

import (
	"database/sql"
	"fmt"
)

var pgMigration = []string{
	`CREATE TYPE video_status AS ENUM ('new', 'queued', 'downloading', 'grabbed', 'grab_error', 'ignore')`,
	`CREATE TABLE channel (
id uuid PRIMARY KEY,
external_id VARCHAR(255) NOT NULL,
service VARCHAR(32) NOT NULL,
title VARCHAR(255) NOT NULL,
thumbnail TEXT NOT NULL DEFAULT '',
description TEXT NOT NULL DEFAULT '',
last_update BIGINT,
UNIQUE (external_id, service)
)`,
	`CREATE TABLE video (
id uuid PRIMARY KEY,
channel_id uuid NOT NULL REFERENCES channel(id) ON DELETE CASCADE,
external_id VARCHAR(255) NOT NULL,
url VARCHAR(512) NOT NULL UNIQUE,
title TEXT NOT NULL,
title_alt TEXT NOT NULL DEFAULT '',
description TEXT NOT NULL DEFAULT '',
description_alt TEXT NOT NULL DEFAULT '',
thumbnail TEXT NOT NULL DEFAULT '',
published_at BIGINT NOT NULL,
duration INTEGER NOT NULL DEFAULT 0,
status video_status NOT NULL,
date_added BIGINT NOT NULL
)`,
	`CREATE INDEX video_channel_published ON video (channel_id, published_at DESC)`,
}

var sqliteMigration = []string{
	`CREATE TABLE channel (
id TEXT PRIMARY KEY,
external_id TEXT NOT NULL,
service TEXT NOT NULL,
title TEXT NOT NULL,
thumbnail TEXT NOT NULL DEFAULT '',
description TEXT NOT NULL DEFAULT '',
last_update INTEGER,
UNIQUE (external_id, service)
)`,
	`CREATE TABLE video (
id TEXT PRIMARY KEY,
channel_id TEXT NOT NULL REFERENCES channel(id) ON DELETE CASCADE,
external_id TEXT NOT NULL,
url TEXT NOT NULL UNIQUE,
title TEXT NOT NULL,
title_alt TEXT NOT NULL DEFAULT '',
description TEXT NOT NULL DEFAULT '',
description_alt TEXT NOT NULL DEFAULT '',
thumbnail TEXT NOT NULL DEFAULT '',
published_at INTEGER NOT NULL,
duration INTEGER NOT NULL DEFAULT 0,
status TEXT NOT NULL CHECK (status IN ('new', 'queued', 'downloading', 'grabbed', 'grab_error', 'ignore')),
date_added INTEGER NOT NULL
)`,
	`CREATE INDEX video_channel_published ON video (channel_id, published_at DESC)`,
}

func migrate(db *sql.DB, d dialect, wanted []string) error {
	query := `CREATE TABLE IF NOT EXISTS migration
("id" INTEGER PRIMARY KEY, "query" TEXT)`
	if _, err := db.Exec(query); err != nil {
		return err
	}

	// find existing
	rows, err := db.Query(`SELECT query FROM migration ORDER BY id`)
	if err != nil {
		return err
	}

	existing := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, query)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// compare
	missing, err := compareMigrations(wanted, existing)
	if err != nil {
		return err
	}

	// execute missing
	next := len(existing) + 1
	for _, query := range missing {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %d: %w", next, err)
		}

		// register
		if _, err := db.Exec(d.rebind(`INSERT INTO migration (id, query) VALUES (?, ?)`), next, query); err != nil {
			return err
		}
		next++
	}

	return nil
}

func compareMigrations(wanted, existing []string) ([]string, error) {
	needed := []string{}
	if len(wanted) < len(existing) {
		return []string{}, fmt.Errorf("not enough migrations")
	}

	for i, want := range wanted {
		switch {
		case i >= len(existing):
			needed = append(needed, want)
		case want == existing[i]:
			// do nothing
		case want != existing[i]:
			return []string{}, fmt.Errorf("incompatible migration: %v", want)
		}
	}

	return needed, nil
}
