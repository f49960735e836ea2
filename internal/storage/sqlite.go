package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kilimo/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		name TEXT PRIMARY KEY,
		capabilities TEXT NOT NULL,
		imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS records (
		id TEXT NOT NULL,
		source TEXT NOT NULL,
		row INTEGER NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		customer_id TEXT NOT NULL DEFAULT '',
		county TEXT NOT NULL DEFAULT '',
		about TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		response TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (source, id),
		FOREIGN KEY (source) REFERENCES sources(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_source_row ON records(source, row);

	CREATE TABLE IF NOT EXISTS ask_log (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		record_id TEXT,
		score REAL NOT NULL,
		outcome TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ask_log_created_at ON ask_log(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceRecords swaps the stored snapshot of source for records in one transaction.
func (s *SQLiteStorage) ReplaceRecords(ctx context.Context, source string, caps models.Capabilities, records []*models.Record) error {
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE source = ?`, source); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sources (name, capabilities, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET capabilities = excluded.capabilities, imported_at = excluded.imported_at`,
		source, string(capsJSON), time.Now(),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, source, row, question, answer, customer_id, county, about, category, response)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, source, r.Row, r.Question, r.Answer,
			r.CustomerID, r.County, r.About, r.Category, r.Response); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ListRecords returns the imported records of source in sheet order.
// Returns ErrNotFound when source was never imported.
func (s *SQLiteStorage) ListRecords(ctx context.Context, source string) ([]*models.Record, models.Capabilities, error) {
	var caps models.Capabilities
	var capsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT capabilities FROM sources WHERE name = ?`, source).Scan(&capsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caps, fmt.Errorf("%w: source %s", ErrNotFound, source)
	}
	if err != nil {
		return nil, caps, err
	}
	if err := json.Unmarshal([]byte(capsJSON), &caps); err != nil {
		return nil, caps, fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, row, question, answer, customer_id, county, about, category, response
		 FROM records WHERE source = ? ORDER BY row`,
		source,
	)
	if err != nil {
		return nil, caps, err
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.ID, &r.Row, &r.Question, &r.Answer,
			&r.CustomerID, &r.County, &r.About, &r.Category, &r.Response); err != nil {
			return nil, caps, err
		}
		records = append(records, &r)
	}
	return records, caps, rows.Err()
}

// CountRecords returns the number of imported records for source.
func (s *SQLiteStorage) CountRecords(ctx context.Context, source string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE source = ?`, source).Scan(&count)
	return count, err
}

// Sources returns the imported source names, most recent import first.
func (s *SQLiteStorage) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sources ORDER BY imported_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// LogAsk appends an ask to the log. ID and CreatedAt are set when empty.
func (s *SQLiteStorage) LogAsk(ctx context.Context, entry *models.AskLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	var recordID sql.NullString
	if entry.RecordID != "" {
		recordID = sql.NullString{String: entry.RecordID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ask_log (id, query, record_id, score, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Query, recordID, entry.Score, entry.Outcome, entry.CreatedAt,
	)
	return err
}

// RecentAsks returns up to limit asks, newest first.
func (s *SQLiteStorage) RecentAsks(ctx context.Context, limit int) ([]*models.AskLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, record_id, score, outcome, created_at
		 FROM ask_log ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AskLogEntry
	for rows.Next() {
		var e models.AskLogEntry
		var recordID sql.NullString
		if err := rows.Scan(&e.ID, &e.Query, &recordID, &e.Score, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RecordID = recordID.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountAsks returns the total number of logged asks.
func (s *SQLiteStorage) CountAsks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ask_log`).Scan(&count)
	return count, err
}

// DiskUsageBytes returns the size of the database and its WAL files.
func (s *SQLiteStorage) DiskUsageBytes() (int64, error) {
	if s.path == ":memory:" {
		return 0, nil
	}
	return DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
