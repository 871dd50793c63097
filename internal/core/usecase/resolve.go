package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
)

// ResolveErrorUseCase drives the resolution lifecycle of recorded ingest
// errors. Resolving the last open error of a failed batch promotes the batch
// to Processed.
type ResolveErrorUseCase struct {
	store ports.Store
	log   *slog.Logger
}

func NewResolveErrorUseCase(store ports.Store, log *slog.Logger) *ResolveErrorUseCase {
	return &ResolveErrorUseCase{store: store, log: log}
}

func (uc *ResolveErrorUseCase) Resolve(ctx context.Context, userID, errorID int64, note string) (*domain.IngestError, error) {
	if userID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve error", errors.New("missing acting user id"))
	}
	if strings.TrimSpace(note) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve error", errors.New("missing resolution note"))
	}

	var out *domain.IngestError
	var promoted bool

	err := uc.store.WithinTx(ctx, func(tx ports.Store) error {
		e, err := tx.GetIngestError(ctx, errorID)
		if err != nil {
			return err
		}
		if e.Resolved {
			return domain.WrapError(domain.ErrInvalidState, "resolve error",
				fmt.Errorf("error %d is already resolved", errorID))
		}

		now := time.Now().UTC()
		message := fmt.Sprintf("%s\n[%s] resolved: %s", e.Message, now.Format(time.RFC3339), strings.TrimSpace(note))
		if err := tx.ResolveIngestError(ctx, errorID, message, now, userID); err != nil {
			return err
		}

		e.Message = message
		e.Resolved = true
		e.ResolvedAt = &now
		e.ResolverUserID = &userID
		out = e

		if e.BatchID == nil {
			return nil
		}
		batch, err := tx.GetBatch(ctx, *e.BatchID)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchFailed {
			return nil
		}
		open, err := tx.CountUnresolvedBatchErrors(ctx, *e.BatchID)
		if err != nil {
			return err
		}
		if open > 0 {
			return nil
		}

		promoted = true
		return tx.SetBatchStatus(ctx, *e.BatchID, domain.BatchProcessed, &now)
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info("error_resolved", "error_id", errorID, "user_id", userID, "batch_promoted", promoted)
	return out, nil
}
