package domain

import "time"

type BatchStatus string

const (
	BatchPending   BatchStatus = "Pending"
	BatchProcessed BatchStatus = "Processed"
	BatchFailed    BatchStatus = "Failed"
)

type BatchKind string

const (
	KindRemittance BatchKind = "Remittance"
	KindWithdrawal BatchKind = "Withdrawal"
)

// Batch is one uploaded remittance or withdrawal envelope. It is created at
// upload time and updated at most twice: once to attach the task id, once at
// completion.
type Batch struct {
	ID             int64       `json:"id"`
	FileName       string      `json:"file_name"`
	StoragePath    string      `json:"-"`
	UploadedAt     time.Time   `json:"uploaded_at"`
	ProcessedAt    *time.Time  `json:"processed_at,omitempty"`
	Status         BatchStatus `json:"status"`
	StateCode      string      `json:"state_code"`
	Kind           BatchKind   `json:"kind"`
	TitleCount     int         `json:"title_count"`
	UploaderUserID int64       `json:"uploader_user_id"`
	TaskID         string      `json:"task_id,omitempty"`
	Description    string      `json:"description,omitempty"`
}

// BatchStats aggregates the ingested envelopes for the stats endpoint.
type BatchStats struct {
	ByStatus    map[BatchStatus]int64 `json:"by_status"`
	ByKind      map[BatchKind]int64   `json:"by_kind"`
	TitlesTotal int64                 `json:"titles_total"`
}
