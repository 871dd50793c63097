package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TitleStatus string

const (
	TitlePending            TitleStatus = "Pending"
	TitleProtested          TitleStatus = "Protested"
	TitlePaid               TitleStatus = "Paid"
	TitleCancelled          TitleStatus = "Cancelled"
	TitleWithdrawalApproved TitleStatus = "WithdrawalApproved"
)

// Terminal reports whether the ingestion pipeline may no longer mutate a
// title in this status.
func (s TitleStatus) Terminal() bool {
	return s == TitlePaid || s == TitleCancelled || s == TitleWithdrawalApproved
}

type PartyRole string

const (
	RoleCreditor PartyRole = "creditor"
	RoleDebtor   PartyRole = "debtor"
)

// Party is a creditor or debtor referenced by titles. Parties are created on
// first reference and never deleted.
type Party struct {
	ID         int64     `json:"id"`
	Role       PartyRole `json:"role"`
	Name       string    `json:"name"`
	DocumentID string    `json:"document_id,omitempty"`
	Address    string    `json:"address,omitempty"`
	City       string    `json:"city,omitempty"`
	StateCode  string    `json:"state_code,omitempty"`
	PostalCode string    `json:"postal_code,omitempty"`
}

// Title is the debt instrument being protested. Protocol is unique across the
// system; BatchID is immutable once set.
type Title struct {
	ID          int64           `json:"id"`
	Number      string          `json:"number"`
	Protocol    string          `json:"protocol"`
	Amount      decimal.Decimal `json:"amount"`
	IssueDate   time.Time       `json:"issue_date"`
	DueDate     time.Time       `json:"due_date"`
	ProtestDate *time.Time      `json:"protest_date,omitempty"`
	Status      TitleStatus     `json:"status"`
	BatchID     int64           `json:"batch_id,omitempty"`
	CreditorID  int64           `json:"creditor_id,omitempty"`
	DebtorID    int64           `json:"debtor_id,omitempty"`
	Species     string          `json:"species,omitempty"`
	Accept      bool            `json:"accept"`
	OurNumber   string          `json:"our_number,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TitleUpdate is the allow-list of fields a remittance re-ingestion may touch
// on an existing pending title. Protocol, number, batch and timestamps are
// deliberately absent.
type TitleUpdate struct {
	Amount    decimal.Decimal
	IssueDate time.Time
	DueDate   time.Time
	Species   string
	Accept    bool
	OurNumber string
}
