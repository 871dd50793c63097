package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

const authorizationColumns = `id, file_name, storage_path, presenter_code, presenter_name, movement_date, declared_count, sequence, status, processed_at, uploaded_at, uploader_user_id, task_id`

const transactionColumns = `id, authorization_id, title_id, protocol_number, protocolization_date, title_number, debtor_name, title_amount, cancellation_kind, branch_account, portfolio_our_number, control_number, sequence, status, processed_at`

func scanAuthorization(row interface{ Scan(...any) error }) (*domain.CancellationAuthorization, error) {
	var a domain.CancellationAuthorization
	var statusRaw string
	var movementDate, processedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.FileName, &a.StoragePath, &a.PresenterCode, &a.PresenterName, &movementDate,
		&a.DeclaredCount, &a.Sequence, &statusRaw, &processedAt, &a.UploadedAt, &a.UploaderUserID, &a.TaskID,
	)
	if err != nil {
		return nil, err
	}

	a.Status = domain.AuthorizationStatus(statusRaw)
	if movementDate.Valid {
		a.MovementDate = movementDate.Time
	}
	if processedAt.Valid {
		t := processedAt.Time
		a.ProcessedAt = &t
	}
	return &a, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (*domain.CancellationTransaction, error) {
	var t domain.CancellationTransaction
	var statusRaw string
	var titleID sql.NullInt64
	var processedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.AuthorizationID, &titleID, &t.ProtocolNumber, &t.ProtocolizationDate,
		&t.TitleNumber, &t.DebtorName, &t.TitleAmount, &t.CancellationKind, &t.BranchAccount,
		&t.PortfolioOurNumber, &t.ControlNumber, &t.Sequence, &statusRaw, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TransactionStatus(statusRaw)
	t.TitleID = idPtr(titleID)
	if processedAt.Valid {
		ts := processedAt.Time
		t.ProcessedAt = &ts
	}
	return &t, nil
}

func (s *Store) InsertAuthorization(ctx context.Context, a *domain.CancellationAuthorization) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
INSERT INTO cancellation_authorizations (
	file_name, storage_path, presenter_code, presenter_name, movement_date, declared_count,
	sequence, status, processed_at, uploaded_at, uploader_user_id, task_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id
`,
		a.FileName, a.StoragePath, a.PresenterCode, a.PresenterName, nullableTime(a.MovementDate),
		a.DeclaredCount, a.Sequence, string(a.Status), a.ProcessedAt, a.UploadedAt, a.UploaderUserID, a.TaskID,
	).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert authorization", err)
	}
	a.ID = id
	return id, nil
}

func (s *Store) GetAuthorization(ctx context.Context, id int64) (*domain.CancellationAuthorization, error) {
	a, err := scanAuthorization(s.q.QueryRowContext(ctx, `
SELECT `+authorizationColumns+`
FROM cancellation_authorizations
WHERE id = $1
`, id))
	if err != nil {
		return nil, wrapDBError("get authorization", err)
	}
	return a, nil
}

func (s *Store) SetAuthorizationTask(ctx context.Context, id int64, taskID string) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE cancellation_authorizations
SET task_id = $2
WHERE id = $1
`, id, taskID)
	if err != nil {
		return wrapDBError("set authorization task", err)
	}
	return requireRow(res, "set authorization task")
}

func (s *Store) UpdateAuthorizationHeader(ctx context.Context, a *domain.CancellationAuthorization) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE cancellation_authorizations
SET presenter_code = $2, presenter_name = $3, movement_date = $4, declared_count = $5, sequence = $6
WHERE id = $1
`, a.ID, a.PresenterCode, a.PresenterName, nullableTime(a.MovementDate), a.DeclaredCount, a.Sequence)
	if err != nil {
		return wrapDBError("update authorization header", err)
	}
	return requireRow(res, "update authorization header")
}

func (s *Store) FinishAuthorization(ctx context.Context, id int64, status domain.AuthorizationStatus, processedAt time.Time) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE cancellation_authorizations
SET status = $2, processed_at = $3
WHERE id = $1
`, id, string(status), processedAt)
	if err != nil {
		return wrapDBError("finish authorization", err)
	}
	return requireRow(res, "finish authorization")
}

func (s *Store) InsertTransaction(ctx context.Context, t *domain.CancellationTransaction) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
INSERT INTO cancellation_transactions (
	authorization_id, title_id, protocol_number, protocolization_date, title_number, debtor_name,
	title_amount, cancellation_kind, branch_account, portfolio_our_number, control_number,
	sequence, status, processed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING id
`,
		t.AuthorizationID, nullableIDPtr(t.TitleID), t.ProtocolNumber, t.ProtocolizationDate,
		t.TitleNumber, t.DebtorName, t.TitleAmount, t.CancellationKind, t.BranchAccount,
		t.PortfolioOurNumber, t.ControlNumber, t.Sequence, string(t.Status), t.ProcessedAt,
	).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert transaction", err)
	}
	t.ID = id
	return id, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*domain.CancellationTransaction, error) {
	t, err := scanTransaction(s.q.QueryRowContext(ctx, `
SELECT `+transactionColumns+`
FROM cancellation_transactions
WHERE id = $1
`, id))
	if err != nil {
		return nil, wrapDBError("get transaction", err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, authorizationID int64) ([]domain.CancellationTransaction, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM cancellation_transactions
WHERE authorization_id = $1
ORDER BY id
`, authorizationID)
	if err != nil {
		return nil, wrapDBError("list transactions", err)
	}
	defer rows.Close()

	var out []domain.CancellationTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapDBError("scan transaction", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate transactions", err)
	}
	return out, nil
}

func (s *Store) SetTransactionTitle(ctx context.Context, id, titleID int64) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE cancellation_transactions
SET title_id = $2
WHERE id = $1
`, id, titleID)
	if err != nil {
		return wrapDBError("set transaction title", err)
	}
	return requireRow(res, "set transaction title")
}

func (s *Store) FinishTransaction(ctx context.Context, id int64, status domain.TransactionStatus, processedAt time.Time) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE cancellation_transactions
SET status = $2, processed_at = $3
WHERE id = $1
`, id, string(status), processedAt)
	if err != nil {
		return wrapDBError("finish transaction", err)
	}
	return requireRow(res, "finish transaction")
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
