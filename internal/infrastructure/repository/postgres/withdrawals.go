package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

const withdrawalColumns = `id, title_id, reason, notes, status, requested_at, processed_at, requester_user_id, processor_user_id`

func scanWithdrawal(row interface{ Scan(...any) error }) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	var statusRaw string
	var processedAt sql.NullTime
	var processor sql.NullInt64

	err := row.Scan(
		&w.ID, &w.TitleID, &w.Reason, &w.Notes, &statusRaw,
		&w.RequestedAt, &processedAt, &w.RequesterUserID, &processor,
	)
	if err != nil {
		return nil, err
	}

	w.Status = domain.WithdrawalStatus(statusRaw)
	if processedAt.Valid {
		t := processedAt.Time
		w.ProcessedAt = &t
	}
	w.ProcessorUserID = idPtr(processor)
	return &w, nil
}

func (s *Store) InsertWithdrawal(ctx context.Context, w *domain.Withdrawal) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
INSERT INTO withdrawals (
	title_id, reason, notes, status, requested_at, processed_at, requester_user_id, processor_user_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`,
		w.TitleID, w.Reason, w.Notes, string(w.Status), w.RequestedAt, w.ProcessedAt,
		w.RequesterUserID, nullableIDPtr(w.ProcessorUserID),
	).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert withdrawal", err)
	}
	w.ID = id
	return id, nil
}

func (s *Store) GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(s.q.QueryRowContext(ctx, `
SELECT `+withdrawalColumns+`
FROM withdrawals
WHERE id = $1
`, id))
	if err != nil {
		return nil, wrapDBError("get withdrawal", err)
	}
	return w, nil
}

func (s *Store) FindPendingWithdrawalByTitle(ctx context.Context, titleID int64) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(s.q.QueryRowContext(ctx, `
SELECT `+withdrawalColumns+`
FROM withdrawals
WHERE title_id = $1 AND status = $2
ORDER BY id
LIMIT 1
`, titleID, string(domain.WithdrawalPending)))
	if err != nil {
		return nil, wrapDBError("find pending withdrawal by title", err)
	}
	return w, nil
}

func (s *Store) DecideWithdrawal(ctx context.Context, id int64, status domain.WithdrawalStatus, notes string, processedAt time.Time, processorUserID int64) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE withdrawals
SET status = $2, notes = $3, processed_at = $4, processor_user_id = $5
WHERE id = $1
`, id, string(status), notes, processedAt, processorUserID)
	if err != nil {
		return wrapDBError("decide withdrawal", err)
	}
	return requireRow(res, "decide withdrawal")
}

func (s *Store) WithdrawalStats(ctx context.Context) (*domain.WithdrawalStats, error) {
	stats := &domain.WithdrawalStats{
		ByStatus: make(map[domain.WithdrawalStatus]int64),
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT status, COUNT(*)
FROM withdrawals
GROUP BY status
`)
	if err != nil {
		return nil, wrapDBError("withdrawal stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrapDBError("scan withdrawal stats", err)
		}
		stats.ByStatus[domain.WithdrawalStatus(status)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate withdrawal stats", err)
	}
	return stats, nil
}
