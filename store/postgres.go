package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	createNoncesTable = `CREATE TABLE IF NOT EXISTS spent_nonces (
	nonce TEXT PRIMARY KEY,
	spent_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	selectNonce = "SELECT 1 FROM spent_nonces WHERE nonce = $1"
	insertNonce = "INSERT INTO spent_nonces (nonce) VALUES ($1) ON CONFLICT (nonce) DO NOTHING"
)

// PostgresStore keeps nonces in a postgres table, shared by every facilitator
// instance pointed at the same database.
type PostgresStore struct {
	db *sql.DB
}

var _ NonceStore = (*PostgresStore)(nil)

// OpenPostgresStore connects to the database at url and creates the nonce
// table if needed.
func OpenPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := NewPostgresStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an open database and creates the nonce table if needed.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, createNoncesTable); err != nil {
		return nil, fmt.Errorf("failed to create nonce table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// IsSpent reports whether the nonce row exists.
func (s *PostgresStore) IsSpent(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, ErrEmptyNonce
	}

	var one int
	err := s.db.QueryRowContext(ctx, selectNonce, nonce).Scan(&one)

	// Check if the query returned a no rows error
	if err == sql.ErrNoRows {
		return false, nil
	}

	// Check if the query returned a different error
	if err != nil {
		return false, fmt.Errorf("failed to read nonce: %w", err)
	}

	return true, nil
}

// MarkSpent inserts the nonce row, ignoring an existing one.
func (s *PostgresStore) MarkSpent(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrEmptyNonce
	}

	if _, err := s.db.ExecContext(ctx, insertNonce, nonce); err != nil {
		return fmt.Errorf("failed to mark nonce spent: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
