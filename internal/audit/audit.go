// Package audit records one row per contract analysis in SQLite.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Auditor writes analysis entries. A nil *Auditor is valid and discards
// everything, which is what the gateway uses when auditing is disabled.
type Auditor struct {
	db     *sql.DB
	logger *zap.Logger
}

type Entry struct {
	ID        int64     `json:"id"`
	Route     string    `json:"route"`
	Filename  string    `json:"filename"`
	Kind      string    `json:"kind"`
	Records   int       `json:"records"`
	Dropped   int       `json:"dropped"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

const schema = `CREATE TABLE IF NOT EXISTS analysis_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	route TEXT NOT NULL,
	filename TEXT,
	kind TEXT,
	records INTEGER NOT NULL DEFAULT 0,
	dropped INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
)`

// New opens the audit database at dsn and creates the table if needed.
func New(dsn string, logger *zap.Logger) (*Auditor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit DB: %w", err)
	}
	// sqlite allows one writer; in-memory databases also vanish with their
	// last connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	return &Auditor{db: db, logger: logger}, nil
}

// Log stores e. Failures are logged and swallowed so an audit problem never
// fails the analysis it describes.
func (a *Auditor) Log(ctx context.Context, e Entry) {
	if a == nil || a.db == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.ExecContext(ctx,
		"INSERT INTO analysis_log (route, filename, kind, records, dropped, error, elapsed_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.Route, e.Filename, e.Kind, e.Records, e.Dropped, e.Error, e.ElapsedMS, e.CreatedAt,
	)
	if err != nil {
		a.logger.Warn("failed to write audit log", zap.String("route", e.Route), zap.Error(err))
	}
}

// Recent returns up to limit entries, newest first.
func (a *Auditor) Recent(ctx context.Context, limit int) ([]Entry, error) {
	entries := []Entry{}
	if a == nil || a.db == nil {
		return entries, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		"SELECT id, route, filename, kind, records, dropped, error, elapsed_ms, created_at FROM analysis_log ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var filename, kind, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Route, &filename, &kind, &e.Records, &e.Dropped, &errMsg, &e.ElapsedMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Filename, e.Kind, e.Error = filename.String, kind.String, errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (a *Auditor) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
