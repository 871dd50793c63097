package domain

import "time"

type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// TaskStatus is the observable state of one background task. Task state
// lives in process memory only; it is lost on restart.
type TaskStatus struct {
	ID          string     `json:"task_id"`
	Description string     `json:"description"`
	State       TaskState  `json:"status"`
	Progress    int        `json:"progress"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Error       string     `json:"error,omitempty"`
}
