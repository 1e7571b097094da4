package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/liliang-cn/synergereader/internal/domain"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows one writer; a single connection also keeps the
	// foreign_keys pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{db}, nil
}

func runMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL DEFAULT '',
			token TEXT UNIQUE,
			is_admin INTEGER NOT NULL DEFAULT 0,
			email TEXT
		)`,
		fmt.Sprintf(`INSERT OR IGNORE INTO users (id, username) VALUES (%d, 'anonymous')`, domain.AnonymousUserID),
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			content TEXT NOT NULL,
			uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			author TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			publication_date TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			doi_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			embedding_json TEXT NOT NULL,
			FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL DEFAULT 0,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			selected_text TEXT NOT NULL DEFAULT '',
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			rating INTEGER,
			comment TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_base (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question TEXT NOT NULL,
			original_answer TEXT NOT NULL DEFAULT '',
			corrected_answer TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			chat_history_id INTEGER,
			context_text TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (chat_history_id) REFERENCES chat_history(id) ON DELETE SET NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON chat_history(user_id, id)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
