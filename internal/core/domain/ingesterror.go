package domain

import "time"

type ErrorKind string

const (
	ErrorValidation ErrorKind = "Validation"
	ErrorProcessing ErrorKind = "Processing"
	ErrorSystem     ErrorKind = "System"
)

// Fatal reports whether recording an error of this kind must fail the
// enclosing batch. Validation errors are per-record and non-fatal.
func (k ErrorKind) Fatal() bool {
	return k == ErrorProcessing || k == ErrorSystem
}

// IngestError is a defect captured during parsing or reconciliation. Rows are
// append-only except for the resolution fields.
type IngestError struct {
	ID             int64      `json:"id"`
	BatchID        *int64     `json:"batch_id,omitempty"`
	TitleID        *int64     `json:"title_id,omitempty"`
	Kind           ErrorKind  `json:"kind"`
	Message        string     `json:"message"`
	OccurredAt     time.Time  `json:"occurred_at"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolverUserID *int64     `json:"resolver_user_id,omitempty"`
}
