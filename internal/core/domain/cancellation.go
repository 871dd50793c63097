package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuthorizationStatus string

const (
	AuthorizationPending   AuthorizationStatus = "Pending"
	AuthorizationProcessed AuthorizationStatus = "Processed"
	AuthorizationError     AuthorizationStatus = "Error"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "Pending"
	TransactionProcessed TransactionStatus = "Processed"
	TransactionError     TransactionStatus = "Error"
)

// CancellationAuthorization is the envelope of one IEPTB-SP cancellation
// file. DeclaredCount is the transaction count the header announces; the
// envelope ends in Error status when the persisted detail rows disagree.
type CancellationAuthorization struct {
	ID             int64               `json:"id"`
	FileName       string              `json:"file_name"`
	StoragePath    string              `json:"-"`
	PresenterCode  string              `json:"presenter_code"`
	PresenterName  string              `json:"presenter_name"`
	MovementDate   time.Time           `json:"movement_date"`
	DeclaredCount  int                 `json:"declared_count"`
	Sequence       string              `json:"sequence,omitempty"`
	Status         AuthorizationStatus `json:"status"`
	ProcessedAt    *time.Time          `json:"processed_at,omitempty"`
	UploadedAt     time.Time           `json:"uploaded_at"`
	UploaderUserID int64               `json:"uploader_user_id"`
	TaskID         string              `json:"task_id,omitempty"`
}

// CancellationTransaction is one detail row of a cancellation file. TitleID
// stays nil when no title with the row's protocol exists yet; the row remains
// Pending and actionable once the title arrives.
type CancellationTransaction struct {
	ID                  int64             `json:"id"`
	AuthorizationID     int64             `json:"authorization_id"`
	TitleID             *int64            `json:"title_id,omitempty"`
	ProtocolNumber      string            `json:"protocol_number"`
	ProtocolizationDate time.Time         `json:"protocolization_date"`
	TitleNumber         string            `json:"title_number"`
	DebtorName          string            `json:"debtor_name"`
	TitleAmount         decimal.Decimal   `json:"title_amount"`
	CancellationKind    string            `json:"cancellation_kind"`
	BranchAccount       string            `json:"branch_account,omitempty"`
	PortfolioOurNumber  string            `json:"portfolio_our_number,omitempty"`
	ControlNumber       string            `json:"control_number,omitempty"`
	Sequence            string            `json:"sequence,omitempty"`
	Status              TransactionStatus `json:"status"`
	ProcessedAt         *time.Time        `json:"processed_at,omitempty"`
}
