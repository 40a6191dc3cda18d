// Package storage persists the daemon-wide audit trail in SQLite. Session
// histories live in memory and die with their project; the audit log is the
// durable record of which operations ran against which paths.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"codescope/internal/logging"
)

const currentSchemaVersion = 1

// AuditRecord is one logged operation.
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	Operation string    `json:"operation"`
	Path      string    `json:"path"`
	Status    string    `json:"status"`
}

// AuditStore wraps the SQLite connection holding the audit log.
type AuditStore struct {
	conn   *sql.DB
	logger *logging.Logger
}

// OpenAudit opens or creates <dir>/audit.db with WAL pragmas and an
// up-to-date schema.
func OpenAudit(dir string, logger *logging.Logger) (*AuditStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	conn, err := sql.Open("sqlite", filepath.Join(dir, "audit.db"))
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	store := &AuditStore{conn: conn, logger: logger}
	if err := store.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *AuditStore) initSchema() error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`); err != nil {
			return err
		}
		var version int
		err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
		if err == sql.ErrNoRows {
			if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else if version > currentSchemaVersion {
			return fmt.Errorf("audit schema version %d not supported (max %d)", version, currentSchemaVersion)
		}

		_, err = tx.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			session_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'ok'
		)`)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log (session_id, id)`)
		return err
	})
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *AuditStore) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Record appends one entry. Audit failures never fail the request: they are
// logged and dropped.
func (s *AuditStore) Record(sessionID, operation, path, status string) {
	_, err := s.conn.Exec(
		`INSERT INTO audit_log (ts, session_id, operation, path, status) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), sessionID, operation, path, status,
	)
	if err != nil {
		s.logger.Warn("audit write failed", map[string]interface{}{"error": err.Error()})
	}
}

// Recent returns the newest records, newest first.
func (s *AuditStore) Recent(limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(
		`SELECT ts, session_id, operation, path, status FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var ts string
		if err := rows.Scan(&ts, &rec.SessionID, &rec.Operation, &rec.Path, &rec.Status); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying connection.
func (s *AuditStore) Close() error {
	return s.conn.Close()
}
