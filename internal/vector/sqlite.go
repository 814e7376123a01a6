package vector

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps records in a SQLite table. Scope filtering runs in SQL;
// candidates are ranked by cosine similarity in Go.
type SQLiteStore struct {
	db         *sql.DB
	dimensions int
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, dimensions int) (*SQLiteStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dimensions: dimensions}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vectors (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_vectors_scope ON vectors(user_id, document_id);
	CREATE INDEX IF NOT EXISTS idx_vectors_document ON vectors(document_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Add inserts all records in one transaction.
func (s *SQLiteStore) Add(ctx context.Context, records []Record) error {
	for _, r := range records {
		if len(r.Vector) != s.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Vector), s.dimensions)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vectors (id, user_id, document_id, text, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Scope.UserID, r.Scope.DocumentID, r.Text, float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func whereScope(filter Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Search returns the top-k records within filter by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, filter Filter, k int) ([]Match, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), s.dimensions)
	}
	where, args := whereScope(filter)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, document_id, text, vector FROM vectors`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]Record, 0)
	for rows.Next() {
		var (
			r    Record
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Scope.UserID, &r.Scope.DocumentID, &r.Text, &blob); err != nil {
			return nil, err
		}
		r.Vector = bytesToFloat32Slice(blob)
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankTopK(query, candidates, k), nil
}

// Count returns the number of records within filter.
func (s *SQLiteStore) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := whereScope(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Size returns the total number of records, or 0 if the count fails.
func (s *SQLiteStore) Size() int {
	n, err := s.Count(context.Background(), Filter{})
	if err != nil {
		return 0
	}
	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
