// Package postgres implements the persistence boundary on PostgreSQL through
// database/sql with the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store satisfies ports.Store. The root store runs against the pool; the view
// handed to WithinTx callbacks runs against the open transaction.
type Store struct {
	db *sql.DB
	q  querier
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// WithinTx runs fn against a transaction-bound store view. Nested calls join
// the enclosing transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ports.Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrTransport, "begin tx", err)
	}

	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrTransport, "commit tx", err)
	}
	return nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return errors.New("ensure schema requires the root store")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS parties (
	id BIGSERIAL PRIMARY KEY,
	role TEXT NOT NULL,
	name TEXT NOT NULL,
	document_id TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	state_code TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_parties_role_name ON parties(role, name);

CREATE TABLE IF NOT EXISTS batches (
	id BIGSERIAL PRIMARY KEY,
	file_name TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	state_code TEXT NOT NULL,
	kind TEXT NOT NULL,
	title_count INTEGER NOT NULL DEFAULT 0,
	uploader_user_id BIGINT NOT NULL,
	task_id TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_batches_task_id ON batches(task_id);

CREATE TABLE IF NOT EXISTS titles (
	id BIGSERIAL PRIMARY KEY,
	number TEXT NOT NULL,
	protocol TEXT NOT NULL,
	amount NUMERIC(16,2) NOT NULL,
	issue_date TIMESTAMPTZ NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	protest_date TIMESTAMPTZ,
	status TEXT NOT NULL,
	batch_id BIGINT REFERENCES batches(id),
	creditor_id BIGINT REFERENCES parties(id),
	debtor_id BIGINT REFERENCES parties(id),
	species TEXT NOT NULL DEFAULT '',
	accept BOOLEAN NOT NULL DEFAULT FALSE,
	our_number TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT titles_protocol_key UNIQUE (protocol)
);

CREATE INDEX IF NOT EXISTS idx_titles_batch_id ON titles(batch_id);
CREATE INDEX IF NOT EXISTS idx_titles_status ON titles(status);

CREATE TABLE IF NOT EXISTS withdrawals (
	id BIGSERIAL PRIMARY KEY,
	title_id BIGINT NOT NULL REFERENCES titles(id),
	reason TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	requested_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	requester_user_id BIGINT NOT NULL,
	processor_user_id BIGINT
);

CREATE INDEX IF NOT EXISTS idx_withdrawals_title_status ON withdrawals(title_id, status);

CREATE TABLE IF NOT EXISTS cancellation_authorizations (
	id BIGSERIAL PRIMARY KEY,
	file_name TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	presenter_code TEXT NOT NULL DEFAULT '',
	presenter_name TEXT NOT NULL DEFAULT '',
	movement_date TIMESTAMPTZ,
	declared_count INTEGER NOT NULL DEFAULT 0,
	sequence TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	processed_at TIMESTAMPTZ,
	uploaded_at TIMESTAMPTZ NOT NULL,
	uploader_user_id BIGINT NOT NULL,
	task_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cancellation_transactions (
	id BIGSERIAL PRIMARY KEY,
	authorization_id BIGINT NOT NULL REFERENCES cancellation_authorizations(id),
	title_id BIGINT REFERENCES titles(id),
	protocol_number TEXT NOT NULL,
	protocolization_date TIMESTAMPTZ NOT NULL,
	title_number TEXT NOT NULL DEFAULT '',
	debtor_name TEXT NOT NULL DEFAULT '',
	title_amount NUMERIC(16,2) NOT NULL,
	cancellation_kind TEXT NOT NULL DEFAULT '',
	branch_account TEXT NOT NULL DEFAULT '',
	portfolio_our_number TEXT NOT NULL DEFAULT '',
	control_number TEXT NOT NULL DEFAULT '',
	sequence TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_cancellation_tx_authorization ON cancellation_transactions(authorization_id);

CREATE TABLE IF NOT EXISTS ingest_errors (
	id BIGSERIAL PRIMARY KEY,
	batch_id BIGINT,
	title_id BIGINT,
	kind TEXT NOT NULL,
	message TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	resolved BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at TIMESTAMPTZ,
	resolver_user_id BIGINT
);

CREATE INDEX IF NOT EXISTS idx_ingest_errors_resolved ON ingest_errors(resolved);
CREATE INDEX IF NOT EXISTS idx_ingest_errors_batch ON ingest_errors(batch_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// wrapDBError maps driver failures onto the domain error taxonomy.
func wrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrNotFound, operation, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return domain.WrapError(domain.ErrUniqueness, operation, err)
		}
		if strings.HasPrefix(pgErr.Code, "23") {
			return domain.WrapError(domain.ErrConstraint, operation, err)
		}
	}
	return domain.WrapError(domain.ErrTransport, operation, err)
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullableIDPtr(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
