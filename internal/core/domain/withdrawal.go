package domain

import "time"

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "Pending"
	WithdrawalApproved WithdrawalStatus = "Approved"
	WithdrawalRejected WithdrawalStatus = "Rejected"
)

// Withdrawal is a request to retract a previously submitted title. It is
// created Pending and transitioned at most once, to Approved or Rejected.
type Withdrawal struct {
	ID              int64            `json:"id"`
	TitleID         int64            `json:"title_id"`
	Reason          string           `json:"reason"`
	Notes           string           `json:"notes,omitempty"`
	Status          WithdrawalStatus `json:"status"`
	RequestedAt     time.Time        `json:"requested_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	RequesterUserID int64            `json:"requester_user_id"`
	ProcessorUserID *int64           `json:"processor_user_id,omitempty"`
}

type WithdrawalStats struct {
	ByStatus map[WithdrawalStatus]int64 `json:"by_status"`
	Total    int64                      `json:"total"`
}
