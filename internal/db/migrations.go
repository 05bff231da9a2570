package db

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	event_id TEXT PRIMARY KEY,
	recorded_at TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN (
		'lifecycle','config_error','session_created','session_reused','session_failed',
		'command_sent','command_skipped','command_failed','execution_skipped','summary'
	)),
	terminal TEXT NOT NULL DEFAULT '',
	workspace TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_events_recorded_at
ON audit_events(recorded_at DESC);

CREATE INDEX IF NOT EXISTS audit_events_terminal_recorded_at
ON audit_events(terminal, recorded_at DESC);
`,
		DownSQL: `
DROP INDEX IF EXISTS audit_events_terminal_recorded_at;
DROP INDEX IF EXISTS audit_events_recorded_at;
DROP TABLE IF EXISTS audit_events;
DROP TABLE IF EXISTS schema_migrations;
`,
	},
	{
		Version: 2,
		UpSQL: `
CREATE TABLE IF NOT EXISTS passes (
	pass_id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	created INTEGER NOT NULL DEFAULT 0 CHECK(created >= 0),
	reused INTEGER NOT NULL DEFAULT 0 CHECK(reused >= 0),
	failed INTEGER NOT NULL DEFAULT 0 CHECK(failed >= 0),
	sent INTEGER NOT NULL DEFAULT 0 CHECK(sent >= 0),
	restricted INTEGER NOT NULL DEFAULT 0 CHECK(restricted >= 0),
	execution_skipped INTEGER NOT NULL DEFAULT 0 CHECK(execution_skipped >= 0)
);

CREATE INDEX IF NOT EXISTS passes_started_at
ON passes(started_at DESC);
`,
		DownSQL: `
DROP INDEX IF EXISTS passes_started_at;
DROP TABLE IF EXISTS passes;
`,
	},
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func RollbackAll(ctx context.Context, db *sql.DB) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rollback tx %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("rollback migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rollback %d: %w", m.Version, err)
		}
	}
	return nil
}
