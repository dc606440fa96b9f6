// Package sqlite implements the repository contracts on SQLite.
//
// It is the alternative to the default JSON document store, selected with
// STORAGE_DRIVER=sqlite. The driver is modernc.org/sqlite, a pure Go port,
// so the binary builds without a C toolchain.
//
// Every table carries an AUTOINCREMENT seq column. List queries order by seq,
// which gives the same insertion-order guarantee as the JSON store.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/chat-backend/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out the per-table repositories.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/chat.db" → file-based database
//   - ":memory:"     → in-memory database, used by the tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: an in-memory database exists per connection, and SQLite
	// serializes writers anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Users() repository.UserRepository       { return &UserDB{conn: db.conn} }
func (db *DB) Logins() repository.LoginRepository     { return &LoginDB{conn: db.conn} }
func (db *DB) Chats() repository.ChatRepository       { return &ChatDB{conn: db.conn} }
func (db *DB) Messages() repository.MessageRepository { return &MessageDB{conn: db.conn} }

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
//
// COLLATE NOCASE on username gives case-insensitive uniqueness for ASCII
// names; GetByUsername additionally compares with lower() on both sides.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
			name          TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS logins (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id   TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_logins_user_id ON logins(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating logins table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chats_user_id ON chats(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating chats table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			chat_id    TEXT NOT NULL,
			username   TEXT NOT NULL,
			text       TEXT NOT NULL,
			role       TEXT NOT NULL CHECK (role IN ('user', 'ai')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id);
	`)
	if err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}

	return nil
}
