package ports

import (
	"context"
	"io"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

// Store is the transactional persistence boundary for the protest domain.
// WithinTx runs fn against a transaction-bound view of the same interface;
// every write of one envelope happens inside a single transaction.
type Store interface {
	WithinTx(ctx context.Context, fn func(Store) error) error

	FindPartiesByName(ctx context.Context, role domain.PartyRole, name string) ([]domain.Party, error)
	InsertParty(ctx context.Context, p *domain.Party) (int64, error)

	GetTitle(ctx context.Context, id int64) (*domain.Title, error)
	FindTitleByProtocol(ctx context.Context, protocol string) (*domain.Title, error)
	FindTitleByNumberAndProtocol(ctx context.Context, number, protocol string) (*domain.Title, error)
	InsertTitle(ctx context.Context, t *domain.Title) (int64, error)
	UpdateTitleFields(ctx context.Context, id int64, upd domain.TitleUpdate) error
	UpdateTitleStatus(ctx context.Context, id int64, status domain.TitleStatus) error
	ListTitles(ctx context.Context) ([]domain.Title, error)
	ListBatchTitles(ctx context.Context, batchID int64) ([]domain.Title, error)

	InsertBatch(ctx context.Context, b *domain.Batch) (int64, error)
	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)
	FindBatchByTask(ctx context.Context, taskID string) (*domain.Batch, error)
	SetBatchTask(ctx context.Context, id int64, taskID string) error
	SetBatchTitleCount(ctx context.Context, id int64, count int) error
	SetBatchStatus(ctx context.Context, id int64, status domain.BatchStatus, processedAt *time.Time) error
	BatchStats(ctx context.Context) (*domain.BatchStats, error)

	InsertWithdrawal(ctx context.Context, w *domain.Withdrawal) (int64, error)
	GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error)
	FindPendingWithdrawalByTitle(ctx context.Context, titleID int64) (*domain.Withdrawal, error)
	DecideWithdrawal(ctx context.Context, id int64, status domain.WithdrawalStatus, notes string, processedAt time.Time, processorUserID int64) error
	WithdrawalStats(ctx context.Context) (*domain.WithdrawalStats, error)

	InsertAuthorization(ctx context.Context, a *domain.CancellationAuthorization) (int64, error)
	GetAuthorization(ctx context.Context, id int64) (*domain.CancellationAuthorization, error)
	SetAuthorizationTask(ctx context.Context, id int64, taskID string) error
	UpdateAuthorizationHeader(ctx context.Context, a *domain.CancellationAuthorization) error
	FinishAuthorization(ctx context.Context, id int64, status domain.AuthorizationStatus, processedAt time.Time) error

	InsertTransaction(ctx context.Context, t *domain.CancellationTransaction) (int64, error)
	GetTransaction(ctx context.Context, id int64) (*domain.CancellationTransaction, error)
	ListTransactions(ctx context.Context, authorizationID int64) ([]domain.CancellationTransaction, error)
	SetTransactionTitle(ctx context.Context, id, titleID int64) error
	FinishTransaction(ctx context.Context, id int64, status domain.TransactionStatus, processedAt time.Time) error

	InsertIngestError(ctx context.Context, e *domain.IngestError) (int64, error)
	GetIngestError(ctx context.Context, id int64) (*domain.IngestError, error)
	ListIngestErrors(ctx context.Context, resolved *bool) ([]domain.IngestError, error)
	ListBatchErrors(ctx context.Context, batchID int64) ([]domain.IngestError, error)
	ResolveIngestError(ctx context.Context, id int64, message string, resolvedAt time.Time, resolverUserID int64) error
	CountUnresolvedBatchErrors(ctx context.Context, batchID int64) (int64, error)
}

// BlobStorage stores uploaded files. Save assigns a collision-free key
// derived from the original file name and returns it.
type BlobStorage interface {
	Save(ctx context.Context, originalName string, data io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TaskFunc is the body of a background task. progress accepts a completion
// percentage in [0,100].
type TaskFunc func(ctx context.Context, progress func(int)) error

// TaskRunner schedules background work on the in-process worker pool.
type TaskRunner interface {
	Enqueue(description string, fn TaskFunc) string
	Status(id string) (domain.TaskStatus, bool)
	List(state domain.TaskState, limit int) []domain.TaskStatus
	ListActive() []domain.TaskStatus
	UpdateProgress(id string, percent int)
}
