package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

const titleColumns = `id, number, protocol, amount, issue_date, due_date, protest_date, status, batch_id, creditor_id, debtor_id, species, accept, our_number, created_at, updated_at`

func scanTitle(row interface{ Scan(...any) error }) (*domain.Title, error) {
	var t domain.Title
	var statusRaw string
	var protestDate sql.NullTime
	var batchID, creditorID, debtorID sql.NullInt64

	err := row.Scan(
		&t.ID, &t.Number, &t.Protocol, &t.Amount, &t.IssueDate, &t.DueDate, &protestDate,
		&statusRaw, &batchID, &creditorID, &debtorID, &t.Species, &t.Accept, &t.OurNumber,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TitleStatus(statusRaw)
	if protestDate.Valid {
		d := protestDate.Time
		t.ProtestDate = &d
	}
	t.BatchID = batchID.Int64
	t.CreditorID = creditorID.Int64
	t.DebtorID = debtorID.Int64
	return &t, nil
}

func (s *Store) GetTitle(ctx context.Context, id int64) (*domain.Title, error) {
	t, err := scanTitle(s.q.QueryRowContext(ctx, `
SELECT `+titleColumns+`
FROM titles
WHERE id = $1
`, id))
	if err != nil {
		return nil, wrapDBError("get title", err)
	}
	return t, nil
}

func (s *Store) FindTitleByProtocol(ctx context.Context, protocol string) (*domain.Title, error) {
	t, err := scanTitle(s.q.QueryRowContext(ctx, `
SELECT `+titleColumns+`
FROM titles
WHERE protocol = $1
`, protocol))
	if err != nil {
		return nil, wrapDBError("find title by protocol", err)
	}
	return t, nil
}

func (s *Store) FindTitleByNumberAndProtocol(ctx context.Context, number, protocol string) (*domain.Title, error) {
	t, err := scanTitle(s.q.QueryRowContext(ctx, `
SELECT `+titleColumns+`
FROM titles
WHERE number = $1 AND protocol = $2
`, number, protocol))
	if err != nil {
		return nil, wrapDBError("find title by number and protocol", err)
	}
	return t, nil
}

func (s *Store) InsertTitle(ctx context.Context, t *domain.Title) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
INSERT INTO titles (
	number, protocol, amount, issue_date, due_date, protest_date, status,
	batch_id, creditor_id, debtor_id, species, accept, our_number, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING id
`,
		t.Number, t.Protocol, t.Amount, t.IssueDate, t.DueDate, t.ProtestDate, string(t.Status),
		nullableID(t.BatchID), nullableID(t.CreditorID), nullableID(t.DebtorID),
		t.Species, t.Accept, t.OurNumber, t.CreatedAt, t.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert title", err)
	}
	t.ID = id
	return id, nil
}

func (s *Store) UpdateTitleFields(ctx context.Context, id int64, upd domain.TitleUpdate) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE titles
SET amount = $2, issue_date = $3, due_date = $4, species = $5, accept = $6, our_number = $7, updated_at = $8
WHERE id = $1
`, id, upd.Amount, upd.IssueDate, upd.DueDate, upd.Species, upd.Accept, upd.OurNumber, time.Now().UTC())
	if err != nil {
		return wrapDBError("update title fields", err)
	}
	return requireRow(res, "update title fields")
}

func (s *Store) UpdateTitleStatus(ctx context.Context, id int64, status domain.TitleStatus) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE titles
SET status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), time.Now().UTC())
	if err != nil {
		return wrapDBError("update title status", err)
	}
	return requireRow(res, "update title status")
}

func (s *Store) ListTitles(ctx context.Context) ([]domain.Title, error) {
	return s.queryTitles(ctx, `
SELECT `+titleColumns+`
FROM titles
ORDER BY created_at DESC, id DESC
`)
}

func (s *Store) ListBatchTitles(ctx context.Context, batchID int64) ([]domain.Title, error) {
	return s.queryTitles(ctx, `
SELECT `+titleColumns+`
FROM titles
WHERE batch_id = $1
ORDER BY id
`, batchID)
}

func (s *Store) queryTitles(ctx context.Context, query string, args ...any) ([]domain.Title, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list titles", err)
	}
	defer rows.Close()

	var out []domain.Title
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, wrapDBError("scan title", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate titles", err)
	}
	return out, nil
}

// requireRow turns a zero-row update into ErrNotFound.
func requireRow(res sql.Result, operation string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(operation, err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, sql.ErrNoRows)
	}
	return nil
}
