package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/g960059/persterm/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = errors.New("not found")
)

const defaultListLimit = 50

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the SQLite audit journal.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMigrated opens path and applies pending migrations.
func OpenMigrated(ctx context.Context, path string) (*Store, error) {
	store, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(ctx, store.DB()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) InsertAuditEvent(ctx context.Context, ev model.AuditEvent) error {
	if ev.EventID == "" {
		return fmt.Errorf("insert audit event: event id is required")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_events(event_id, recorded_at, kind, terminal, workspace, message)
VALUES (?, ?, ?, ?, ?, ?)
`, ev.EventID, ts(ev.At), string(ev.Kind), ev.Terminal, ev.Workspace, ev.Message)
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// AuditFilter narrows ListAuditEvents. Zero values match everything.
type AuditFilter struct {
	Terminal string
	Kind     model.AuditKind
	Limit    int
}

// ListAuditEvents returns the most recent matching events, oldest first.
func (s *Store) ListAuditEvents(ctx context.Context, f AuditFilter) ([]model.AuditEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var (
		where []string
		args  []any
	)
	if f.Terminal != "" {
		where = append(where, "terminal = ?")
		args = append(args, f.Terminal)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	query := `SELECT event_id, recorded_at, kind, terminal, workspace, message FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY recorded_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.AuditEvent, 0, limit)
	for rows.Next() {
		var (
			ev         model.AuditEvent
			recordedAt string
			kind       string
		)
		if err := rows.Scan(&ev.EventID, &recordedAt, &kind, &ev.Terminal, &ev.Workspace, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		at, err := parseTS(recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		ev.At = at
		ev.Kind = model.AuditKind(kind)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) InsertPass(ctx context.Context, p model.PassSummary) error {
	if p.PassID == "" {
		return fmt.Errorf("insert pass: pass id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO passes(pass_id, workspace, started_at, finished_at, created, reused, failed, sent, restricted, execution_skipped)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, p.PassID, p.Workspace, ts(p.StartedAt), ts(p.FinishedAt), p.Created, p.Reused, p.Failed, p.Sent, p.Restricted, p.ExecutionSkipped)
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert pass: %w", err)
	}
	return nil
}

// ListPasses returns the most recent passes, newest first.
func (s *Store) ListPasses(ctx context.Context, limit int) ([]model.PassSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT pass_id, workspace, started_at, finished_at, created, reused, failed, sent, restricted, execution_skipped
FROM passes
ORDER BY started_at DESC, rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PassSummary
	for rows.Next() {
		var (
			p                   model.PassSummary
			startedAt, finished string
		)
		if err := rows.Scan(&p.PassID, &p.Workspace, &startedAt, &finished, &p.Created, &p.Reused, &p.Failed, &p.Sent, &p.Restricted, &p.ExecutionSkipped); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		if p.StartedAt, err = parseTS(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if p.FinishedAt, err = parseTS(finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return out, nil
}

// LatestPass returns the newest pass or ErrNotFound.
func (s *Store) LatestPass(ctx context.Context) (model.PassSummary, error) {
	passes, err := s.ListPasses(ctx, 1)
	if err != nil {
		return model.PassSummary{}, err
	}
	if len(passes) == 0 {
		return model.PassSummary{}, ErrNotFound
	}
	return passes[0], nil
}

// PurgeBefore deletes journal rows older than cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	for _, stmt := range []string{
		`DELETE FROM audit_events WHERE recorded_at < ?`,
		`DELETE FROM passes WHERE started_at < ?`,
	} {
		res, err := tx.ExecContext(ctx, stmt, ts(cutoff))
		if err != nil {
			return 0, fmt.Errorf("purge journal: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return total, nil
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	switch table {
	case "audit_events", "passes":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
