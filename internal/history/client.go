// Package history persists every processed question to sqlite so the
// API can serve recent activity without touching the target databases.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/askdb/backend/pkg/logger"
)

type Record struct {
	ID         string
	Question   string
	Backend    string
	Intent     string
	Confidence float64
	Query      string
	Status     string
	Error      string
	RowCount   int
	LatencyMS  int
	CreatedAt  time.Time
}

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		backend TEXT NOT NULL,
		intent TEXT,
		confidence REAL,
		query_text TEXT,
		status TEXT NOT NULL,
		error TEXT,
		row_count INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_created ON query_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_history_status ON query_history(status);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) Insert(rec *Record) error {
	query := `
		INSERT INTO query_history (id, question, backend, intent, confidence, query_text, status, error, row_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		rec.ID,
		rec.Question,
		rec.Backend,
		rec.Intent,
		rec.Confidence,
		rec.Query,
		rec.Status,
		rec.Error,
		rec.RowCount,
		rec.LatencyMS,
		rec.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	logger.Debug("History record inserted", zap.String("id", rec.ID), zap.String("status", rec.Status))
	return nil
}

func (c *Client) Recent(limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, question, backend, intent, confidence, query_text, status, error, row_count, latency_ms, created_at
		FROM query_history
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var createdAt int64
		err := rows.Scan(
			&rec.ID,
			&rec.Question,
			&rec.Backend,
			&rec.Intent,
			&rec.Confidence,
			&rec.Query,
			&rec.Status,
			&rec.Error,
			&rec.RowCount,
			&rec.LatencyMS,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return records, nil
}
