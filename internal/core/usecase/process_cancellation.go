package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
	"github.com/mvribeiro/protesto-backoffice/internal/infrastructure/parser/ieptb"
)

// ProcessAuthorizationUseCase parses a stored IEPTB-SP cancellation file and
// persists its header and detail rows. Detail rows are registered Pending and
// acted on one by one through CancellationUseCase; the envelope itself ends in
// Error when the header count disagrees with the persisted rows.
type ProcessAuthorizationUseCase struct {
	store   ports.Store
	storage ports.BlobStorage
	log     *slog.Logger
}

func NewProcessAuthorizationUseCase(store ports.Store, storage ports.BlobStorage, log *slog.Logger) *ProcessAuthorizationUseCase {
	return &ProcessAuthorizationUseCase{store: store, storage: storage, log: log}
}

func (uc *ProcessAuthorizationUseCase) Run(ctx context.Context, authorizationID int64, progress func(int)) error {
	err := uc.run(ctx, authorizationID, progress)
	if err != nil {
		if !domain.IsKind(err, domain.ErrInvalidState) {
			uc.recordFailure(ctx, authorizationID, err)
		}
		return err
	}
	return nil
}

func (uc *ProcessAuthorizationUseCase) run(ctx context.Context, authorizationID int64, progress func(int)) error {
	auth, err := uc.store.GetAuthorization(ctx, authorizationID)
	if err != nil {
		return fmt.Errorf("load authorization: %w", err)
	}
	if auth.Status != domain.AuthorizationPending {
		return domain.WrapError(domain.ErrInvalidState, "process authorization",
			fmt.Errorf("authorization %d is %s, want %s", authorizationID, auth.Status, domain.AuthorizationPending))
	}

	file, err := uc.storage.Open(ctx, auth.StoragePath)
	if err != nil {
		return domain.WrapError(domain.ErrTransport, "open cancellation file", err)
	}
	defer file.Close()

	parsed, err := ieptb.Parse(file)
	if err != nil {
		return err
	}
	progress(10)

	return uc.store.WithinTx(ctx, func(tx ports.Store) error {
		auth.PresenterCode = parsed.Header.PresenterCode
		auth.PresenterName = parsed.Header.PresenterName
		auth.MovementDate = parsed.Header.MovementDate
		auth.DeclaredCount = parsed.Header.DeclaredCount
		auth.Sequence = parsed.Header.Sequence
		if err := tx.UpdateAuthorizationHeader(ctx, auth); err != nil {
			return err
		}

		for _, issue := range parsed.Issues {
			if _, err := tx.InsertIngestError(ctx, &domain.IngestError{
				Kind:       domain.ErrorValidation,
				Message:    fmt.Sprintf("cancellation file %s: %s", auth.FileName, issue),
				OccurredAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
		}

		for i, detail := range parsed.Details {
			if err := uc.persistDetail(ctx, tx, auth.ID, detail); err != nil {
				return err
			}
			progress(10 + 80*(i+1)/len(parsed.Details))
		}

		status := domain.AuthorizationProcessed
		if len(parsed.Details) != parsed.Header.DeclaredCount {
			status = domain.AuthorizationError
			if _, err := tx.InsertIngestError(ctx, &domain.IngestError{
				Kind: domain.ErrorValidation,
				Message: fmt.Sprintf("cancellation file %s: header declares %d transactions, found %d",
					auth.FileName, parsed.Header.DeclaredCount, len(parsed.Details)),
				OccurredAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
		if err := tx.FinishAuthorization(ctx, auth.ID, status, time.Now().UTC()); err != nil {
			return err
		}

		uc.log.Info("cancellation_file_processed",
			"authorization_id", auth.ID,
			"status", string(status),
			"declared", parsed.Header.DeclaredCount,
			"persisted", len(parsed.Details),
			"issues", len(parsed.Issues),
		)
		return nil
	})
}

// persistDetail stores one detail row. The matching title is attached when it
// already exists; otherwise the row stays unlinked and Pending until the
// title arrives.
func (uc *ProcessAuthorizationUseCase) persistDetail(
	ctx context.Context,
	tx ports.Store,
	authorizationID int64,
	detail ieptb.Detail,
) error {
	txn := &domain.CancellationTransaction{
		AuthorizationID:     authorizationID,
		ProtocolNumber:      detail.ProtocolNumber,
		ProtocolizationDate: detail.ProtocolizationDate,
		TitleNumber:         detail.TitleNumber,
		DebtorName:          detail.DebtorName,
		TitleAmount:         detail.Amount,
		CancellationKind:    detail.CancellationKind,
		BranchAccount:       detail.BranchAccount,
		PortfolioOurNumber:  detail.PortfolioOurNumber,
		ControlNumber:       detail.ControlNumber,
		Sequence:            detail.Sequence,
		Status:              domain.TransactionPending,
	}

	title, err := tx.FindTitleByProtocol(ctx, detail.ProtocolNumber)
	switch {
	case err == nil:
		txn.TitleID = &title.ID
	case domain.IsKind(err, domain.ErrNotFound):
	default:
		return err
	}

	_, err = tx.InsertTransaction(ctx, txn)
	return err
}

func (uc *ProcessAuthorizationUseCase) recordFailure(ctx context.Context, authorizationID int64, cause error) {
	kind := failureKind(cause)

	err := uc.store.WithinTx(ctx, func(tx ports.Store) error {
		if _, err := tx.InsertIngestError(ctx, &domain.IngestError{
			Kind:       kind,
			Message:    fmt.Sprintf("cancellation authorization %d: %v", authorizationID, cause),
			OccurredAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if !kind.Fatal() {
			return nil
		}
		return tx.FinishAuthorization(ctx, authorizationID, domain.AuthorizationError, time.Now().UTC())
	})
	if err != nil {
		uc.log.Error("authorization_failure_record_failed", "authorization_id", authorizationID, "error", err, "cause", cause)
		return
	}
	uc.log.Error("authorization_failed", "authorization_id", authorizationID, "kind", string(kind), "error", cause)
}
