package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
)

// CancellationUseCase effects individual cancellation transactions against
// their titles.
type CancellationUseCase struct {
	store ports.Store
	log   *slog.Logger
}

func NewCancellationUseCase(store ports.Store, log *slog.Logger) *CancellationUseCase {
	return &CancellationUseCase{store: store, log: log}
}

// ProcessTransaction cancels the protested title referenced by one pending
// transaction. The title status change and the transaction completion commit
// together or not at all.
func (uc *CancellationUseCase) ProcessTransaction(ctx context.Context, id int64) (*domain.CancellationTransaction, error) {
	var out *domain.CancellationTransaction

	err := uc.store.WithinTx(ctx, func(tx ports.Store) error {
		txn, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != domain.TransactionPending {
			return domain.WrapError(domain.ErrInvalidState, "process transaction",
				fmt.Errorf("transaction %d is %s, want %s", id, txn.Status, domain.TransactionPending))
		}

		// Rows ingested before their title existed are linked lazily.
		if txn.TitleID == nil {
			title, err := tx.FindTitleByProtocol(ctx, txn.ProtocolNumber)
			if domain.IsKind(err, domain.ErrNotFound) {
				return domain.WrapError(domain.ErrNotFound, "process transaction",
					fmt.Errorf("no title with protocol %s", txn.ProtocolNumber))
			}
			if err != nil {
				return err
			}
			if err := tx.SetTransactionTitle(ctx, id, title.ID); err != nil {
				return err
			}
			txn.TitleID = &title.ID
		}

		title, err := tx.GetTitle(ctx, *txn.TitleID)
		if err != nil {
			return err
		}
		if title.Status != domain.TitleProtested {
			return domain.WrapError(domain.ErrInvalidState, "process transaction",
				fmt.Errorf("title %d is %s, want %s", title.ID, title.Status, domain.TitleProtested))
		}

		now := time.Now().UTC()
		if err := tx.UpdateTitleStatus(ctx, title.ID, domain.TitleCancelled); err != nil {
			return err
		}
		if err := tx.FinishTransaction(ctx, id, domain.TransactionProcessed, now); err != nil {
			return err
		}

		txn.Status = domain.TransactionProcessed
		txn.ProcessedAt = &now
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info("transaction_processed", "transaction_id", id, "title_id", *out.TitleID)
	return out, nil
}

// ExampleFile renders a well-formed sample cancellation-authorization file
// for presenters to test their integration against.
func (uc *CancellationUseCase) ExampleFile() ([]byte, string) {
	var b strings.Builder

	writeRecord(&b, "0"+
		padRight("416", 3)+
		padRight("BANCO EXEMPLO S.A.", 45)+
		"15012026"+
		padLeftZero("2", 5)+
		padRight("", 60)+
		padLeftZero("1", 5))

	writeRecord(&b, "1"+
		padLeftZero("1234567890", 10)+
		"10012026"+
		padRight("DUP0000123", 11)+
		padRight("COMERCIO DE PECAS LTDA", 45)+
		padLeftZero("150050", 14)+
		"C"+
		padRight("001234567890", 12)+
		padRight("CART0000001", 12)+
		padRight("", 2)+
		padRight("CT0001", 6)+
		padLeftZero("2", 5))

	writeRecord(&b, "1"+
		padLeftZero("1234567891", 10)+
		"11012026"+
		padRight("DUP0000124", 11)+
		padRight("JOAO DA SILVA ME", 45)+
		padLeftZero("98700", 14)+
		"C"+
		padRight("001234567890", 12)+
		padRight("CART0000002", 12)+
		padRight("", 2)+
		padRight("CT0002", 6)+
		padLeftZero("3", 5))

	writeRecord(&b, "9"+
		padRight("416", 3)+
		padRight("", 118)+
		padLeftZero("4", 5))

	encoded, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(b.String()))
	if err != nil {
		// The sample is plain ASCII; encoding cannot fail.
		encoded = []byte(b.String())
	}
	return encoded, "exemplo_autorizacao_cancelamento.txt"
}

func writeRecord(b *strings.Builder, line string) {
	b.WriteString(line)
	b.WriteString("\r\n")
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}

func padLeftZero(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return strings.Repeat("0", width-len(s)) + s
}
