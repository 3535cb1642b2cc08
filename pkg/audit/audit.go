// Package audit is a narrow admin-action audit trail, adapted from the
// teacher's full application database layer (pkg/database) down to the
// single table the site's configuration mutations and logins need. It is
// never on the probe scheduling hot path: Record is fire-and-forget, and
// failures are logged rather than propagated, per the persistence-error
// class of the error-handling taxonomy.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Log wraps a sqlite-backed audit_events table.
type Log struct {
	db *sqlx.DB
}

// Open connects to (creating if necessary) the sqlite database at path
// and ensures the audit_events table exists. path may be ":memory:" for
// tests.
func Open(path string) (*Log, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("audit: create data directory: %w", err)
		}
	}
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_sync=NORMAL&_foreign_keys=ON"
	}
	db, err := sqlx.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("audit: ping database: %w", err)
	}

	l := &Log{db: db}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	actor      TEXT NOT NULL,
	action     TEXT NOT NULL,
	subject    TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_events_subject ON audit_events(subject);
CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at);
`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("audit: init schema: %w", err)
	}
	return nil
}

// Event is one row read back from the audit trail.
type Event struct {
	ID        string    `db:"id" json:"id"`
	Actor     string    `db:"actor" json:"actor"`
	Action    string    `db:"action" json:"action"`
	Subject   string    `db:"subject" json:"subject"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Record inserts one audit row. Errors are logged, never returned, so a
// broken audit log never blocks a site mutation (site.AuditRecorder has
// no error return for the same reason).
func (l *Log) Record(actor, action, subject string, detail map[string]any) {
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = []byte("{}")
	}
	_, err = l.db.Exec(
		`INSERT INTO audit_events (id, actor, action, subject, detail) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), actor, action, subject, string(payload),
	)
	if err != nil {
		log.Printf("⚠️  audit: record %s/%s: %v", action, subject, err)
	}
}

// Recent returns the most recent n audit events, newest first.
func (l *Log) Recent(n int) ([]Event, error) {
	var events []Event
	err := l.db.Select(&events, `SELECT * FROM audit_events ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	return events, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error { return l.db.Close() }
