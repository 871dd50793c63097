package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

const batchColumns = `id, file_name, storage_path, uploaded_at, processed_at, status, state_code, kind, title_count, uploader_user_id, task_id, description`

func scanBatch(row interface{ Scan(...any) error }) (*domain.Batch, error) {
	var b domain.Batch
	var statusRaw, kindRaw string
	var processedAt sql.NullTime

	err := row.Scan(
		&b.ID, &b.FileName, &b.StoragePath, &b.UploadedAt, &processedAt,
		&statusRaw, &b.StateCode, &kindRaw, &b.TitleCount, &b.UploaderUserID, &b.TaskID, &b.Description,
	)
	if err != nil {
		return nil, err
	}

	b.Status = domain.BatchStatus(statusRaw)
	b.Kind = domain.BatchKind(kindRaw)
	if processedAt.Valid {
		t := processedAt.Time
		b.ProcessedAt = &t
	}
	return &b, nil
}

func (s *Store) InsertBatch(ctx context.Context, b *domain.Batch) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
INSERT INTO batches (
	file_name, storage_path, uploaded_at, processed_at, status, state_code, kind,
	title_count, uploader_user_id, task_id, description
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id
`,
		b.FileName, b.StoragePath, b.UploadedAt, b.ProcessedAt, string(b.Status), b.StateCode,
		string(b.Kind), b.TitleCount, b.UploaderUserID, b.TaskID, b.Description,
	).Scan(&id)
	if err != nil {
		return 0, wrapDBError("insert batch", err)
	}
	b.ID = id
	return id, nil
}

func (s *Store) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	b, err := scanBatch(s.q.QueryRowContext(ctx, `
SELECT `+batchColumns+`
FROM batches
WHERE id = $1
`, id))
	if err != nil {
		return nil, wrapDBError("get batch", err)
	}
	return b, nil
}

func (s *Store) FindBatchByTask(ctx context.Context, taskID string) (*domain.Batch, error) {
	b, err := scanBatch(s.q.QueryRowContext(ctx, `
SELECT `+batchColumns+`
FROM batches
WHERE task_id = $1
`, taskID))
	if err != nil {
		return nil, wrapDBError("find batch by task", err)
	}
	return b, nil
}

func (s *Store) SetBatchTask(ctx context.Context, id int64, taskID string) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE batches
SET task_id = $2
WHERE id = $1
`, id, taskID)
	if err != nil {
		return wrapDBError("set batch task", err)
	}
	return requireRow(res, "set batch task")
}

func (s *Store) SetBatchTitleCount(ctx context.Context, id int64, count int) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE batches
SET title_count = $2
WHERE id = $1
`, id, count)
	if err != nil {
		return wrapDBError("set batch title count", err)
	}
	return requireRow(res, "set batch title count")
}

func (s *Store) SetBatchStatus(ctx context.Context, id int64, status domain.BatchStatus, processedAt *time.Time) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE batches
SET status = $2, processed_at = $3
WHERE id = $1
`, id, string(status), processedAt)
	if err != nil {
		return wrapDBError("set batch status", err)
	}
	return requireRow(res, "set batch status")
}

func (s *Store) BatchStats(ctx context.Context) (*domain.BatchStats, error) {
	stats := &domain.BatchStats{
		ByStatus: make(map[domain.BatchStatus]int64),
		ByKind:   make(map[domain.BatchKind]int64),
	}

	rows, err := s.q.QueryContext(ctx, `
SELECT status, kind, COUNT(*)
FROM batches
GROUP BY status, kind
`)
	if err != nil {
		return nil, wrapDBError("batch stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, kind string
		var n int64
		if err := rows.Scan(&status, &kind, &n); err != nil {
			return nil, wrapDBError("scan batch stats", err)
		}
		stats.ByStatus[domain.BatchStatus(status)] += n
		stats.ByKind[domain.BatchKind(kind)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate batch stats", err)
	}

	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM titles`).Scan(&stats.TitlesTotal); err != nil {
		return nil, wrapDBError("count titles", err)
	}
	return stats, nil
}
