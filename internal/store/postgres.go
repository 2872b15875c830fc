package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore relies on migrations to create tables.
type PostgresStore struct {
	*sqlStore
}

const pqUniqueViolation = "23505"

var postgresDialect = dialect{
	name:     "postgres",
	bindvars: true,
	isUnique: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
	},
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return NewPostgresStoreFromDB(d), nil
}

// NewPostgresStoreFromDB wraps an already opened handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore: newSQLStore(db, postgresDialect)}
}
