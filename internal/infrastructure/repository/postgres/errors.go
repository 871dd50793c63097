package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

const ingestErrorColumns = `id, batch_id, title_id, kind, message, occurred_at, resolved, resolved_at, resolver_user_id`

func scanIngestError(row interface{ Scan(...any) error }) (*domain.IngestError, error) {
	var e domain.IngestError
	var kindRaw string
	var batchID, titleID, resolver sql.NullInt64
	var resolvedAt sql.NullTime

	err := row.Scan(
		&e.ID, &batchID, &titleID, &kindRaw, &e.Message,
		&e.OccurredAt, &e.Resolved, &resolvedAt, &resolver,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = domain.ErrorKind(kindRaw)
	e.BatchID = idPtr(batchID)
	e.TitleID = idPtr(titleID)
	e.ResolverUserID = idPtr(resolver)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	return &e, nil
}

func (s *Store) InsertIngestError(ctx context.Context, e *domain.IngestError) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
INSERT INTO ingest_errors (batch_id, title_id, kind, message, occurred_at, resolved, resolved_at, resolver_user_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`,
		nullableIDPtr(e.BatchID), nullableIDPtr(e.TitleID), string(e.Kind), e.Message,
		e.OccurredAt, e.Resolved, e.ResolvedAt, nullableIDPtr(e.ResolverUserID),
	).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert ingest error", err)
	}
	e.ID = id
	return id, nil
}

func (s *Store) GetIngestError(ctx context.Context, id int64) (*domain.IngestError, error) {
	e, err := scanIngestError(s.q.QueryRowContext(ctx, `
SELECT `+ingestErrorColumns+`
FROM ingest_errors
WHERE id = $1
`, id))
	if err != nil {
		return nil, wrapDBError("get ingest error", err)
	}
	return e, nil
}

func (s *Store) ListIngestErrors(ctx context.Context, resolved *bool) ([]domain.IngestError, error) {
	query := `
SELECT ` + ingestErrorColumns + `
FROM ingest_errors
ORDER BY occurred_at DESC, id DESC
`
	args := []any{}
	if resolved != nil {
		query = `
SELECT ` + ingestErrorColumns + `
FROM ingest_errors
WHERE resolved = $1
ORDER BY occurred_at DESC, id DESC
`
		args = append(args, *resolved)
	}
	return s.queryIngestErrors(ctx, query, args...)
}

func (s *Store) ListBatchErrors(ctx context.Context, batchID int64) ([]domain.IngestError, error) {
	return s.queryIngestErrors(ctx, `
SELECT `+ingestErrorColumns+`
FROM ingest_errors
WHERE batch_id = $1
ORDER BY id
`, batchID)
}

func (s *Store) queryIngestErrors(ctx context.Context, query string, args ...any) ([]domain.IngestError, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list ingest errors", err)
	}
	defer rows.Close()

	var out []domain.IngestError
	for rows.Next() {
		e, err := scanIngestError(rows)
		if err != nil {
			return nil, wrapDBError("scan ingest error", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate ingest errors", err)
	}
	return out, nil
}

func (s *Store) ResolveIngestError(ctx context.Context, id int64, message string, resolvedAt time.Time, resolverUserID int64) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE ingest_errors
SET message = $2, resolved = TRUE, resolved_at = $3, resolver_user_id = $4
WHERE id = $1
`, id, message, resolvedAt, resolverUserID)
	if err != nil {
		return wrapDBError("resolve ingest error", err)
	}
	return requireRow(res, "resolve ingest error")
}

func (s *Store) CountUnresolvedBatchErrors(ctx context.Context, batchID int64) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM ingest_errors
WHERE batch_id = $1 AND resolved = FALSE
`, batchID).Scan(&n)
	if err != nil {
		return 0, wrapDBError("count unresolved batch errors", err)
	}
	return n, nil
}
