package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
	"github.com/mvribeiro/protesto-backoffice/internal/infrastructure/parser/remittancexml"
)

// ProcessBatchUseCase is the background half of batch ingestion: it parses the
// stored envelope and reconciles its content against the title base inside a
// single transaction. A concurrent-insert collision rolls the envelope back
// and the whole reconciliation is retried exactly once; the second attempt
// sees the committed winner and takes the update path.
type ProcessBatchUseCase struct {
	store   ports.Store
	storage ports.BlobStorage
	log     *slog.Logger
}

func NewProcessBatchUseCase(store ports.Store, storage ports.BlobStorage, log *slog.Logger) *ProcessBatchUseCase {
	return &ProcessBatchUseCase{store: store, storage: storage, log: log}
}

func (uc *ProcessBatchUseCase) Run(ctx context.Context, batchID int64, progress func(int)) error {
	err := uc.run(ctx, batchID, progress)
	if err != nil && domain.IsKind(err, domain.ErrUniqueness) {
		uc.log.Warn("batch_retry_after_conflict", "batch_id", batchID)
		err = uc.run(ctx, batchID, progress)
	}
	if err != nil {
		// The not-Pending guard must not overwrite the outcome of an
		// earlier run.
		if !domain.IsKind(err, domain.ErrInvalidState) {
			uc.recordFailure(ctx, batchID, err)
		}
		return err
	}
	return nil
}

func (uc *ProcessBatchUseCase) run(ctx context.Context, batchID int64, progress func(int)) error {
	batch, err := uc.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if batch.Status != domain.BatchPending {
		return domain.WrapError(domain.ErrInvalidState, "process batch",
			fmt.Errorf("batch %d is %s, want %s", batchID, batch.Status, domain.BatchPending))
	}

	file, err := uc.storage.Open(ctx, batch.StoragePath)
	if err != nil {
		return domain.WrapError(domain.ErrTransport, "open batch file", err)
	}
	defer file.Close()

	switch batch.Kind {
	case domain.KindRemittance:
		rem, err := remittancexml.ParseRemittance(file)
		if err != nil {
			return err
		}
		progress(10)
		return uc.reconcileRemittance(ctx, batch, rem, progress)
	case domain.KindWithdrawal:
		wf, err := remittancexml.ParseWithdrawals(file)
		if err != nil {
			return err
		}
		progress(10)
		return uc.reconcileWithdrawals(ctx, batch, wf, progress)
	default:
		return domain.WrapError(domain.ErrInvalidState, "process batch",
			fmt.Errorf("unknown batch kind %q", batch.Kind))
	}
}

func (uc *ProcessBatchUseCase) reconcileRemittance(
	ctx context.Context,
	batch *domain.Batch,
	rem *remittancexml.Remittance,
	progress func(int),
) error {
	return uc.store.WithinTx(ctx, func(tx ports.Store) error {
		for _, issue := range rem.Issues {
			if err := recordValidation(ctx, tx, batch.ID, nil, issue.String()); err != nil {
				return err
			}
		}

		processed := 0
		for i, title := range rem.Titles {
			if err := uc.reconcileTitle(ctx, tx, batch, title, &processed); err != nil {
				return err
			}
			progress(10 + 85*(i+1)/len(rem.Titles))
		}

		if err := tx.SetBatchTitleCount(ctx, batch.ID, processed); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.SetBatchStatus(ctx, batch.ID, domain.BatchProcessed, &now); err != nil {
			return err
		}

		uc.log.Info("remittance_processed",
			"batch_id", batch.ID,
			"titles", processed,
			"skipped", len(rem.Titles)-processed,
			"issues", len(rem.Issues),
		)
		return nil
	})
}

// reconcileTitle applies one remittance descriptor. A known protocol updates
// the existing pending title; a new protocol inserts title and parties.
// Titles past Pending are immutable for re-ingestion and are skipped with a
// recorded validation error.
func (uc *ProcessBatchUseCase) reconcileTitle(
	ctx context.Context,
	tx ports.Store,
	batch *domain.Batch,
	title remittancexml.TitleDescriptor,
	processed *int,
) error {
	existing, err := tx.FindTitleByProtocol(ctx, title.Protocol)
	switch {
	case err == nil:
		if existing.Status != domain.TitlePending {
			msg := fmt.Sprintf("title %d: protocol %s is %s and cannot be re-ingested",
				title.Index, title.Protocol, existing.Status)
			return recordValidation(ctx, tx, batch.ID, &existing.ID, msg)
		}
		if err := tx.UpdateTitleFields(ctx, existing.ID, domain.TitleUpdate{
			Amount:    title.Amount,
			IssueDate: title.IssueDate,
			DueDate:   title.DueDate,
			Species:   title.Species,
			Accept:    title.Accept,
			OurNumber: title.OurNumber,
		}); err != nil {
			return err
		}
		*processed++
		return nil

	case domain.IsKind(err, domain.ErrNotFound):
		creditorID, skip, err := resolveParty(ctx, tx, domain.RoleCreditor, title.Creditor, batch.ID, title.Index)
		if err != nil || skip {
			return err
		}
		debtorID, skip, err := resolveParty(ctx, tx, domain.RoleDebtor, title.Debtor, batch.ID, title.Index)
		if err != nil || skip {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.InsertTitle(ctx, &domain.Title{
			Number:     title.Number,
			Protocol:   title.Protocol,
			Amount:     title.Amount,
			IssueDate:  title.IssueDate,
			DueDate:    title.DueDate,
			Status:     domain.TitlePending,
			BatchID:    batch.ID,
			CreditorID: creditorID,
			DebtorID:   debtorID,
			Species:    title.Species,
			Accept:     title.Accept,
			OurNumber:  title.OurNumber,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}
		*processed++
		return nil

	default:
		return err
	}
}

func (uc *ProcessBatchUseCase) reconcileWithdrawals(
	ctx context.Context,
	batch *domain.Batch,
	wf *remittancexml.WithdrawalFile,
	progress func(int),
) error {
	return uc.store.WithinTx(ctx, func(tx ports.Store) error {
		for _, issue := range wf.Issues {
			if err := recordValidation(ctx, tx, batch.ID, nil, issue.String()); err != nil {
				return err
			}
		}

		processed := 0
		for i, wd := range wf.Withdrawals {
			if err := uc.reconcileWithdrawal(ctx, tx, batch, wd, &processed); err != nil {
				return err
			}
			progress(10 + 85*(i+1)/len(wf.Withdrawals))
		}

		if err := tx.SetBatchTitleCount(ctx, batch.ID, processed); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.SetBatchStatus(ctx, batch.ID, domain.BatchProcessed, &now); err != nil {
			return err
		}

		uc.log.Info("withdrawal_batch_processed",
			"batch_id", batch.ID,
			"withdrawals", processed,
			"skipped", len(wf.Withdrawals)-processed,
			"issues", len(wf.Issues),
		)
		return nil
	})
}

// reconcileWithdrawal registers one withdrawal request. An unknown title is
// materialized as Protested so the request has something to act on; a title
// with a withdrawal already pending is skipped.
func (uc *ProcessBatchUseCase) reconcileWithdrawal(
	ctx context.Context,
	tx ports.Store,
	batch *domain.Batch,
	wd remittancexml.WithdrawalDescriptor,
	processed *int,
) error {
	title, err := tx.FindTitleByNumberAndProtocol(ctx, wd.TitleNumber, wd.Protocol)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrNotFound):
		title, err = uc.materializeTitle(ctx, tx, batch, wd)
		if err != nil {
			return err
		}
	default:
		return err
	}

	_, err = tx.FindPendingWithdrawalByTitle(ctx, title.ID)
	switch {
	case err == nil:
		msg := fmt.Sprintf("withdrawal %d: title %s protocol %s already has a pending withdrawal",
			wd.Index, wd.TitleNumber, wd.Protocol)
		return recordValidation(ctx, tx, batch.ID, &title.ID, msg)
	case domain.IsKind(err, domain.ErrNotFound):
	default:
		return err
	}

	if _, err := tx.InsertWithdrawal(ctx, &domain.Withdrawal{
		TitleID:         title.ID,
		Reason:          wd.Reason,
		Notes:           wd.Notes,
		Status:          domain.WithdrawalPending,
		RequestedAt:     time.Now().UTC(),
		RequesterUserID: batch.UploaderUserID,
	}); err != nil {
		return err
	}
	*processed++
	return nil
}

func (uc *ProcessBatchUseCase) materializeTitle(
	ctx context.Context,
	tx ports.Store,
	batch *domain.Batch,
	wd remittancexml.WithdrawalDescriptor,
) (*domain.Title, error) {
	var debtorID int64
	if wd.DebtorName != "" {
		id, skip, err := resolveParty(ctx, tx, domain.RoleDebtor,
			remittancexml.PartyDescriptor{Name: wd.DebtorName}, batch.ID, wd.Index)
		if err != nil {
			return nil, err
		}
		if !skip {
			debtorID = id
		}
	}

	now := time.Now().UTC()
	title := &domain.Title{
		Number:    wd.TitleNumber,
		Protocol:  wd.Protocol,
		Amount:    wd.Amount,
		IssueDate: now,
		DueDate:   now,
		Status:    domain.TitleProtested,
		BatchID:   batch.ID,
		DebtorID:  debtorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.InsertTitle(ctx, title); err != nil {
		return nil, err
	}
	return title, nil
}

// resolveParty finds or creates the party with the given role and name. A
// name matching more than one existing party is ambiguous; the caller skips
// the record. Party names compare case-sensitively.
func resolveParty(
	ctx context.Context,
	tx ports.Store,
	role domain.PartyRole,
	desc remittancexml.PartyDescriptor,
	batchID int64,
	index int,
) (int64, bool, error) {
	if desc.Name == "" {
		msg := fmt.Sprintf("title %d: missing %s name", index, role)
		return 0, true, recordValidation(ctx, tx, batchID, nil, msg)
	}

	matches, err := tx.FindPartiesByName(ctx, role, desc.Name)
	if err != nil {
		return 0, false, err
	}
	switch len(matches) {
	case 0:
		id, err := tx.InsertParty(ctx, &domain.Party{
			Role:       role,
			Name:       desc.Name,
			DocumentID: desc.DocumentID,
			Address:    desc.Address,
			City:       desc.City,
			StateCode:  desc.StateCode,
			PostalCode: desc.PostalCode,
		})
		return id, false, err
	case 1:
		return matches[0].ID, false, nil
	default:
		msg := fmt.Sprintf("title %d: %s name %q matches %d parties", index, role, desc.Name, len(matches))
		return 0, true, recordValidation(ctx, tx, batchID, nil, msg)
	}
}

func recordValidation(ctx context.Context, tx ports.Store, batchID int64, titleID *int64, message string) error {
	_, err := tx.InsertIngestError(ctx, &domain.IngestError{
		BatchID:    &batchID,
		TitleID:    titleID,
		Kind:       domain.ErrorValidation,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// failureKind classifies an envelope-level error: malformed input is a
// Processing defect, everything else is System.
func failureKind(cause error) domain.ErrorKind {
	if domain.IsKind(cause, domain.ErrMalformed) {
		return domain.ErrorProcessing
	}
	return domain.ErrorSystem
}

// recordFailure captures a fatal batch error in a fresh transaction after the
// reconciliation one rolled back. The envelope is failed only for fatal
// kinds; validation defects are recorded inline during reconciliation and
// never take the batch down.
func (uc *ProcessBatchUseCase) recordFailure(ctx context.Context, batchID int64, cause error) {
	kind := failureKind(cause)

	err := uc.store.WithinTx(ctx, func(tx ports.Store) error {
		if _, err := tx.InsertIngestError(ctx, &domain.IngestError{
			BatchID:    &batchID,
			Kind:       kind,
			Message:    cause.Error(),
			OccurredAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if !kind.Fatal() {
			return nil
		}
		now := time.Now().UTC()
		return tx.SetBatchStatus(ctx, batchID, domain.BatchFailed, &now)
	})
	if err != nil {
		uc.log.Error("batch_failure_record_failed", "batch_id", batchID, "error", err, "cause", cause)
		return
	}
	uc.log.Error("batch_failed", "batch_id", batchID, "kind", string(kind), "error", cause)
}
