// eventstore_index.go: SQLite version index for the Event Store.
//
// Adapted from argus's audit_backend.go sqliteAuditBackend — same
// driver, same WAL/busy-timeout pragmas — but trimmed from a full audit
// log table down to the one side-table C6 actually needs: an
// (aggregate_type, aggregate_id) -> (version, last_event_id) cache so
// currentVersion()/health() avoid a directory walk. The JSONL files
// remain the system of record; this index is rebuildable from them at
// any time and is never consulted for anything but a fast-path lookup.
//
// Copyright (c) 2025 ByteHot
// SPDX-License-Identifier: MPL-2.0

package bytehot

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type versionIndex struct {
	db *sql.DB
}

func openVersionIndex(path string) (*versionIndex, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path))
	if err != nil {
		return nil, err
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS aggregate_versions (
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		version        INTEGER NOT NULL,
		last_event_id  TEXT NOT NULL,
		PRIMARY KEY (aggregate_type, aggregate_id)
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &versionIndex{db: db}, nil
}

func (v *versionIndex) get(aggregateType, aggregateID string) (uint64, string, bool) {
	var version uint64
	var lastEventID string
	row := v.db.QueryRow(
		"SELECT version, last_event_id FROM aggregate_versions WHERE aggregate_type = ? AND aggregate_id = ?",
		aggregateType, aggregateID,
	)
	if err := row.Scan(&version, &lastEventID); err != nil {
		return 0, "", false
	}
	return version, lastEventID, true
}

func (v *versionIndex) set(aggregateType, aggregateID string, version uint64, lastEventID string) {
	_, _ = v.db.Exec(`
		INSERT INTO aggregate_versions (aggregate_type, aggregate_id, version, last_event_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(aggregate_type, aggregate_id) DO UPDATE SET version = excluded.version, last_event_id = excluded.last_event_id
	`, aggregateType, aggregateID, version, lastEventID)
}

func (v *versionIndex) health() bool {
	return v.db.Ping() == nil
}

func (v *versionIndex) close() error {
	return v.db.Close()
}
