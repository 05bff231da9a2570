package audit

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/g960059/persterm/internal/db"
	"github.com/g960059/persterm/internal/model"
)

// Sink persists audit events. Sinks are only called from the Logger's
// drain goroutine.
type Sink interface {
	Write(ev model.AuditEvent) error
	Close() error
}

// FormatLine renders an event as "[timestamp] message\n".
func FormatLine(at time.Time, message string) string {
	return "[" + at.UTC().Format("2006-01-02T15:04:05.000Z") + "] " + message + "\n"
}

// FileSink appends lines to a plain text file, opening it per write so the
// file can be rotated or removed between events.
type FileSink struct {
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Write(ev model.AuditEvent) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.WriteString(FormatLine(ev.At, ev.Message)); err != nil {
		_ = f.Close()
		return fmt.Errorf("append audit log: %w", err)
	}
	return f.Close()
}

func (s *FileSink) Close() error { return nil }

// JournalSink records events in the SQLite journal.
type JournalSink struct {
	store   *db.Store
	timeout time.Duration
}

func NewJournalSink(store *db.Store, timeout time.Duration) *JournalSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &JournalSink{store: store, timeout: timeout}
}

func (s *JournalSink) Write(ev model.AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.store.InsertAuditEvent(ctx, ev)
}

// Close leaves the store open; its owner closes it.
func (s *JournalSink) Close() error { return nil }
