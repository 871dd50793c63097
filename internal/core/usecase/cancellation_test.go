package usecase

import (
	"bytes"
	"context"
	"testing"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
	"github.com/mvribeiro/protesto-backoffice/internal/infrastructure/parser/ieptb"
)

func TestProcessTransactionCancelsProtestedTitle(t *testing.T) {
	store := newFakeStore()
	store.titles[1] = &domain.Title{ID: 1, Protocol: "P1", Status: domain.TitleProtested}
	titleID := int64(1)
	store.transactions[2] = &domain.CancellationTransaction{
		ID: 2, AuthorizationID: 10, TitleID: &titleID, ProtocolNumber: "P1",
		Status: domain.TransactionPending,
	}
	store.nextID = 2
	uc := NewCancellationUseCase(store, testLogger())

	txn, err := uc.ProcessTransaction(context.Background(), 2)
	if err != nil {
		t.Fatalf("ProcessTransaction() error = %v", err)
	}
	if txn.Status != domain.TransactionProcessed {
		t.Fatalf("transaction status = %s, want Processed", txn.Status)
	}
	if txn.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}

	title, _ := store.GetTitle(context.Background(), 1)
	if title.Status != domain.TitleCancelled {
		t.Fatalf("title status = %s, want Cancelled", title.Status)
	}
}

func TestProcessTransactionLinksTitleLazily(t *testing.T) {
	store := newFakeStore()
	store.titles[1] = &domain.Title{ID: 1, Protocol: "P1", Status: domain.TitleProtested}
	store.transactions[2] = &domain.CancellationTransaction{
		ID: 2, AuthorizationID: 10, ProtocolNumber: "P1",
		Status: domain.TransactionPending,
	}
	store.nextID = 2
	uc := NewCancellationUseCase(store, testLogger())

	txn, err := uc.ProcessTransaction(context.Background(), 2)
	if err != nil {
		t.Fatalf("ProcessTransaction() error = %v", err)
	}
	if txn.TitleID == nil || *txn.TitleID != 1 {
		t.Fatalf("title id = %v, want lazily linked 1", txn.TitleID)
	}

	stored, _ := store.GetTransaction(context.Background(), 2)
	if stored.TitleID == nil || *stored.TitleID != 1 {
		t.Fatalf("stored title id = %v, want 1", stored.TitleID)
	}
}

func TestProcessTransactionRejectsNonPendingTransaction(t *testing.T) {
	store := newFakeStore()
	titleID := int64(1)
	store.titles[1] = &domain.Title{ID: 1, Protocol: "P1", Status: domain.TitleProtested}
	store.transactions[2] = &domain.CancellationTransaction{
		ID: 2, TitleID: &titleID, Status: domain.TransactionProcessed,
	}
	uc := NewCancellationUseCase(store, testLogger())

	_, err := uc.ProcessTransaction(context.Background(), 2)
	if !domain.IsKind(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestProcessTransactionRejectsNonProtestedTitle(t *testing.T) {
	store := newFakeStore()
	titleID := int64(1)
	store.titles[1] = &domain.Title{ID: 1, Protocol: "P1", Status: domain.TitlePending}
	store.transactions[2] = &domain.CancellationTransaction{
		ID: 2, TitleID: &titleID, Status: domain.TransactionPending,
	}
	uc := NewCancellationUseCase(store, testLogger())

	_, err := uc.ProcessTransaction(context.Background(), 2)
	if !domain.IsKind(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	txn, _ := store.GetTransaction(context.Background(), 2)
	if txn.Status != domain.TransactionPending {
		t.Fatalf("transaction status = %s, want untouched Pending", txn.Status)
	}
}

func TestProcessTransactionUnknownProtocolIsNotFound(t *testing.T) {
	store := newFakeStore()
	store.transactions[2] = &domain.CancellationTransaction{
		ID: 2, ProtocolNumber: "UNKNOWN", Status: domain.TransactionPending,
	}
	uc := NewCancellationUseCase(store, testLogger())

	_, err := uc.ProcessTransaction(context.Background(), 2)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if domain.IsKind(err, domain.ErrInvalidState) {
		t.Fatalf("a missing title is a lookup failure, not a state conflict: %v", err)
	}

	txn, _ := store.GetTransaction(context.Background(), 2)
	if txn.Status != domain.TransactionPending {
		t.Fatalf("transaction status = %s, want untouched Pending", txn.Status)
	}
}

func TestExampleFileParses(t *testing.T) {
	uc := NewCancellationUseCase(newFakeStore(), testLogger())

	body, name := uc.ExampleFile()
	if name == "" {
		t.Fatalf("expected a file name")
	}

	f, err := ieptb.Parse(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("example file must parse: %v", err)
	}
	if len(f.Issues) != 0 {
		t.Fatalf("example file issues = %v, want none", f.Issues)
	}
	if f.Header.DeclaredCount != len(f.Details) {
		t.Fatalf("declared %d details, found %d", f.Header.DeclaredCount, len(f.Details))
	}
	if got := f.Details[0].Amount.StringFixed(2); got != "1500.50" {
		t.Fatalf("first amount = %s, want 1500.50", got)
	}
}
