package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/pkg/logger"
)

// Client is the audit store: which documents were ingested, their chunks,
// and the history of answered queries. The embedding index itself persists
// through its own paired artifacts, not here.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
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
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		source TEXT NOT NULL,
		summary TEXT,
		chunk_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_ticker ON documents(ticker);
	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		section TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		tickers TEXT,
		query_type TEXT,
		response TEXT,
		confidence TEXT,
		chunk_count INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_history_created ON query_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

func (c *Client) InsertDocument(doc *models.IndexedDocument) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO documents (id, ticker, source, summary, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Ticker, string(doc.Source), doc.Summary, doc.ChunkCount,
		doc.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (c *Client) InsertChunk(docID string, index int, chunk models.Chunk) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO document_chunks (id, doc_id, chunk_index, text, section, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fmt.Sprintf("%s_chunk_%d", docID, index), docID, index,
		chunk.Text, chunk.Section, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (c *Client) InsertQueryRecord(rec *models.QueryRecord) error {
	_, err := c.db.Exec(
		`INSERT INTO query_history (id, query_text, tickers, query_type, response, confidence, chunk_count, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.QueryText, strings.Join(rec.Tickers, ","), rec.QueryType,
		rec.Response, rec.Confidence, rec.ChunkCount, rec.LatencyMS,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}
	return nil
}

func (c *Client) GetQueryHistory(limit int) ([]models.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.Query(
		`SELECT id, query_text, tickers, query_type, response, confidence, chunk_count, latency_ms, created_at
		 FROM query_history ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var rec models.QueryRecord
		var tickers string
		var createdAt int64
		err := rows.Scan(&rec.ID, &rec.QueryText, &tickers, &rec.QueryType,
			&rec.Response, &rec.Confidence, &rec.ChunkCount, &rec.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}
		if tickers != "" {
			rec.Tickers = strings.Split(tickers, ",")
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}

	return records, rows.Err()
}
