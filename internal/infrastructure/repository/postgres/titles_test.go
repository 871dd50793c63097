package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

func titleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "number", "protocol", "amount", "issue_date", "due_date", "protest_date",
		"status", "batch_id", "creditor_id", "debtor_id", "species", "accept", "our_number",
		"created_at", "updated_at",
	})
}

func TestGetTitle(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM titles WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(titleRows().AddRow(
			int64(7), "DUP001", "PROTO-1", "1500.50", now, now, nil,
			"Protested", int64(3), int64(1), int64(2), "DM", true, "NN001",
			now, now,
		))

	title, err := store.GetTitle(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetTitle() error = %v", err)
	}
	if title.Status != domain.TitleProtested {
		t.Fatalf("status = %s, want Protested", title.Status)
	}
	if !title.Amount.Equal(decimal.RequireFromString("1500.50")) {
		t.Fatalf("amount = %s, want 1500.50", title.Amount)
	}
	if title.ProtestDate != nil {
		t.Fatalf("protest date = %v, want nil", title.ProtestDate)
	}
	if title.BatchID != 3 || title.CreditorID != 1 || title.DebtorID != 2 {
		t.Fatalf("foreign keys = %d/%d/%d, want 3/1/2", title.BatchID, title.CreditorID, title.DebtorID)
	}
}

func TestGetTitleNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM titles WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(titleRows())

	_, err := store.GetTitle(context.Background(), 99)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertTitleUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO titles").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "titles_protocol_key"})

	now := time.Now().UTC()
	_, err := store.InsertTitle(context.Background(), &domain.Title{
		Number:    "DUP001",
		Protocol:  "PROTO-1",
		Amount:    decimal.New(100, 0),
		IssueDate: now,
		DueDate:   now,
		Status:    domain.TitlePending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if !domain.IsKind(err, domain.ErrUniqueness) {
		t.Fatalf("expected ErrUniqueness, got %v", err)
	}
}

func TestInsertTitleAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO titles").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	now := time.Now().UTC()
	title := &domain.Title{
		Number:    "DUP002",
		Protocol:  "PROTO-2",
		Amount:    decimal.New(100, 0),
		IssueDate: now,
		DueDate:   now,
		Status:    domain.TitlePending,
		BatchID:   5,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := store.InsertTitle(context.Background(), title)
	if err != nil {
		t.Fatalf("InsertTitle() error = %v", err)
	}
	if id != 42 || title.ID != 42 {
		t.Fatalf("id = %d/%d, want 42", id, title.ID)
	}
}

func TestUpdateTitleStatusMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE titles").
		WithArgs(int64(99), "Paid", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateTitleStatus(context.Background(), 99, domain.TitlePaid)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListBatchTitles(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM titles WHERE batch_id").
		WithArgs(int64(3)).
		WillReturnRows(titleRows().
			AddRow(int64(1), "DUP001", "P1", "10.00", now, now, nil, "Pending", int64(3), nil, nil, "", false, "", now, now).
			AddRow(int64(2), "DUP002", "P2", "20.00", now, now, nil, "Pending", int64(3), nil, nil, "", false, "", now, now))

	titles, err := store.ListBatchTitles(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListBatchTitles() error = %v", err)
	}
	if len(titles) != 2 {
		t.Fatalf("titles = %d, want 2", len(titles))
	}
	if titles[0].Protocol != "P1" || titles[1].Protocol != "P2" {
		t.Fatalf("protocols = %s/%s, want P1/P2", titles[0].Protocol, titles[1].Protocol)
	}
}
