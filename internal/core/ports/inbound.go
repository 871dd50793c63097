package ports

import (
	"context"
	"io"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

// BatchIngestor is the inbound contract for upload orchestration. The acting
// user id is always explicit; the core never reads it from ambient state.
type BatchIngestor interface {
	UploadBatch(ctx context.Context, userID int64, fileName string, body io.Reader, stateCode string, kind domain.BatchKind, description string) (*domain.Batch, error)
	UploadCancellation(ctx context.Context, userID int64, fileName string, body io.Reader) (*domain.CancellationAuthorization, error)
}

// WithdrawalService creates and decides withdrawal requests.
type WithdrawalService interface {
	Create(ctx context.Context, userID, titleID int64, reason, notes string) (*domain.Withdrawal, error)
	Decide(ctx context.Context, userID, id int64, approve bool, note string) (*domain.Withdrawal, error)
}

// CancellationService effects individual cancellation transactions.
type CancellationService interface {
	ProcessTransaction(ctx context.Context, id int64) (*domain.CancellationTransaction, error)
	ExampleFile() ([]byte, string)
}

// ErrorResolver drives the resolution lifecycle of recorded ingest errors.
type ErrorResolver interface {
	Resolve(ctx context.Context, userID, errorID int64, note string) (*domain.IngestError, error)
}

// ReportExporter renders downloadable reports over the ingested state.
type ReportExporter interface {
	TitlesXLSX(ctx context.Context) ([]byte, error)
}
