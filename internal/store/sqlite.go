package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default adapter. The schema is created on open.
type SQLiteStore struct {
	*sqlStore
	path string
}

var sqliteDialect = dialect{
	name: "sqlite",
	isUnique: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		d.SetMaxOpenConns(1)
	}
	s := &SQLiteStore{sqlStore: newSQLStore(d, sqliteDialect), path: path}
	if err := s.Init(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("sqlite init: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, email TEXT NOT NULL, normalized_email TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL, email_confirmed INTEGER NOT NULL DEFAULT 0, created_at INTEGER NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS roles (id TEXT PRIMARY KEY, name TEXT NOT NULL, normalized_name TEXT NOT NULL UNIQUE);`,
		`CREATE TABLE IF NOT EXISTS user_roles (user_id TEXT NOT NULL REFERENCES users(id), role_id TEXT NOT NULL REFERENCES roles(id), PRIMARY KEY (user_id, role_id));`,
		`CREATE TABLE IF NOT EXISTS user_claims (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id TEXT NOT NULL REFERENCES users(id), claim_type TEXT NOT NULL, claim_value TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS role_claims (id INTEGER PRIMARY KEY AUTOINCREMENT, role_id TEXT NOT NULL REFERENCES roles(id), claim_type TEXT NOT NULL, claim_value TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, token TEXT NOT NULL UNIQUE, jwt_id TEXT NOT NULL, is_used INTEGER NOT NULL DEFAULT 0, is_revoked INTEGER NOT NULL DEFAULT 0, status INTEGER NOT NULL DEFAULT 1, added_date INTEGER NOT NULL, update_date INTEGER NOT NULL, expiry_date INTEGER NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS profiles (id TEXT PRIMARY KEY, identity_id TEXT NOT NULL, first_name TEXT NOT NULL, last_name TEXT NOT NULL, email TEXT NOT NULL, phone TEXT NOT NULL DEFAULT '', date_of_birth INTEGER NOT NULL, country TEXT NOT NULL DEFAULT '', address TEXT NOT NULL DEFAULT '', mobile_number TEXT NOT NULL DEFAULT '', sex TEXT NOT NULL DEFAULT '', status INTEGER NOT NULL DEFAULT 1, added_date INTEGER NOT NULL, update_date INTEGER NOT NULL);`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_identity ON profiles(identity_id);`,
		`CREATE TABLE IF NOT EXISTS health_data (id TEXT PRIMARY KEY, identity_id TEXT NOT NULL, blood_type TEXT NOT NULL DEFAULT '', height REAL NOT NULL DEFAULT 0, race TEXT NOT NULL DEFAULT '', weight REAL NOT NULL DEFAULT 0, use_glasses INTEGER NOT NULL DEFAULT 0, status INTEGER NOT NULL DEFAULT 1, added_date INTEGER NOT NULL, update_date INTEGER NOT NULL);`,
		`CREATE INDEX IF NOT EXISTS idx_health_data_identity ON health_data(identity_id);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
