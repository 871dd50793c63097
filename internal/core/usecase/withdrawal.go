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

// WithdrawalUseCase creates and decides withdrawal requests. A withdrawal is
// decided at most once; approval retracts the title in the same transaction.
type WithdrawalUseCase struct {
	store ports.Store
	log   *slog.Logger
}

func NewWithdrawalUseCase(store ports.Store, log *slog.Logger) *WithdrawalUseCase {
	return &WithdrawalUseCase{store: store, log: log}
}

func (uc *WithdrawalUseCase) Create(ctx context.Context, userID, titleID int64, reason, notes string) (*domain.Withdrawal, error) {
	if userID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create withdrawal", errors.New("missing acting user id"))
	}
	if strings.TrimSpace(reason) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create withdrawal", errors.New("missing reason"))
	}

	var out *domain.Withdrawal
	err := uc.store.WithinTx(ctx, func(tx ports.Store) error {
		title, err := tx.GetTitle(ctx, titleID)
		if err != nil {
			return err
		}
		if title.Status.Terminal() {
			return domain.WrapError(domain.ErrInvalidState, "create withdrawal",
				fmt.Errorf("title %d is %s and cannot be withdrawn", titleID, title.Status))
		}

		_, err = tx.FindPendingWithdrawalByTitle(ctx, titleID)
		switch {
		case err == nil:
			return domain.WrapError(domain.ErrInvalidState, "create withdrawal",
				fmt.Errorf("title %d already has a pending withdrawal", titleID))
		case domain.IsKind(err, domain.ErrNotFound):
		default:
			return err
		}

		w := &domain.Withdrawal{
			TitleID:         titleID,
			Reason:          strings.TrimSpace(reason),
			Notes:           strings.TrimSpace(notes),
			Status:          domain.WithdrawalPending,
			RequestedAt:     time.Now().UTC(),
			RequesterUserID: userID,
		}
		if _, err := tx.InsertWithdrawal(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info("withdrawal_created", "withdrawal_id", out.ID, "title_id", titleID, "user_id", userID)
	return out, nil
}

func (uc *WithdrawalUseCase) Decide(ctx context.Context, userID, id int64, approve bool, note string) (*domain.Withdrawal, error) {
	if userID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decide withdrawal", errors.New("missing acting user id"))
	}

	var out *domain.Withdrawal
	err := uc.store.WithinTx(ctx, func(tx ports.Store) error {
		w, err := tx.GetWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != domain.WithdrawalPending {
			return domain.WrapError(domain.ErrInvalidState, "decide withdrawal",
				fmt.Errorf("withdrawal %d is %s, want %s", id, w.Status, domain.WithdrawalPending))
		}

		now := time.Now().UTC()
		status := domain.WithdrawalRejected
		if approve {
			status = domain.WithdrawalApproved

			title, err := tx.GetTitle(ctx, w.TitleID)
			if err != nil {
				return err
			}
			if title.Status.Terminal() {
				return domain.WrapError(domain.ErrInvalidState, "decide withdrawal",
					fmt.Errorf("title %d is already %s", title.ID, title.Status))
			}
			if err := tx.UpdateTitleStatus(ctx, w.TitleID, domain.TitleWithdrawalApproved); err != nil {
				return err
			}
		}

		notes := appendNote(w.Notes, note, now)
		if err := tx.DecideWithdrawal(ctx, id, status, notes, now, userID); err != nil {
			return err
		}

		w.Status = status
		w.Notes = notes
		w.ProcessedAt = &now
		w.ProcessorUserID = &userID
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info("withdrawal_decided",
		"withdrawal_id", id,
		"status", string(out.Status),
		"user_id", userID,
	)
	return out, nil
}

// appendNote extends free-form notes with a timestamped entry, keeping the
// existing content intact.
func appendNote(existing, note string, at time.Time) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	entry := fmt.Sprintf("[%s] %s", at.Format(time.RFC3339), note)
	if existing == "" {
		return entry
	}
	return existing + "\n" + entry
}
