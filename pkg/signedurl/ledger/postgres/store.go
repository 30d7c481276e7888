package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-signedurl/pkg/signedurl/ledger"
)

// Schema creates the issuance table. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS signed_url_issuance (
	id           UUID PRIMARY KEY,
	bucket       TEXT NOT NULL,
	object       TEXT NOT NULL,
	method       TEXT NOT NULL,
	scheme       TEXT NOT NULL,
	client_email TEXT NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS signed_url_issuance_bucket_created_idx
	ON signed_url_issuance (bucket, created_at DESC);`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements ledger.Store using PostgreSQL
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL store
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL store with connection pool
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return handlePostgresError("migrate", err)
	}
	return nil
}

func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("ledger: issuance already recorded: %w", err)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", ledger.ErrInvalidIssuance, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("ledger: table does not exist - database migration required")
		default:
			return fmt.Errorf("ledger: database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}

	return fmt.Errorf("ledger: database error in %s: %w", operation, err)
}

func (s *Store) Record(ctx context.Context, issuance *ledger.Issuance) error {
	if err := issuance.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO signed_url_issuance (
			id, bucket, object, method, scheme, client_email, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.Exec(ctx, query,
		issuance.ID, issuance.Bucket, issuance.Object, issuance.Method,
		string(issuance.Scheme), issuance.ClientEmail, issuance.ExpiresAt, issuance.CreatedAt)
	if err != nil {
		return handlePostgresError("record issuance", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*ledger.Issuance, error) {
	query := `
		SELECT id, bucket, object, method, scheme, client_email, expires_at, created_at
		FROM signed_url_issuance WHERE id = $1`

	issuance, err := scanIssuance(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, handlePostgresError("get issuance", err)
	}
	return issuance, nil
}

func (s *Store) List(ctx context.Context, bucket string, limit int) ([]*ledger.Issuance, error) {
	query := `
		SELECT id, bucket, object, method, scheme, client_email, expires_at, created_at
		FROM signed_url_issuance
		WHERE ($1 = '' OR bucket = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, bucket, ledger.NormalizeLimit(limit))
	if err != nil {
		return nil, handlePostgresError("list issuances", err)
	}
	defer rows.Close()

	var result []*ledger.Issuance
	for rows.Next() {
		issuance, err := scanIssuance(rows)
		if err != nil {
			return nil, handlePostgresError("list issuances", err)
		}
		result = append(result, issuance)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list issuances", err)
	}
	return result, nil
}

func scanIssuance(row pgx.Row) (*ledger.Issuance, error) {
	var (
		issuance ledger.Issuance
		scheme   string
	)
	err := row.Scan(&issuance.ID, &issuance.Bucket, &issuance.Object, &issuance.Method,
		&scheme, &issuance.ClientEmail, &issuance.ExpiresAt, &issuance.CreatedAt)
	if err != nil {
		return nil, err
	}
	issuance.Scheme = ledger.Scheme(scheme)
	return &issuance, nil
}

var _ ledger.Store = (*Store)(nil)
