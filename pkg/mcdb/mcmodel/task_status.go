package mcmodel

import "time"

// Task states.
const (
	TaskStateIdle    = "idle"
	TaskStateRunning = "running"
	TaskStateClosing = "closing"
	TaskStateFailed  = "failed"
)

// TaskStatus is the current state of one manager. There is a single row per
// manager that is rewritten as its job steps progress.
type TaskStatus struct {
	ID                     int       `json:"id"`
	UUID                   string    `json:"uuid"`
	ManagerName            string    `json:"manager_name" gorm:"uniqueIndex;size:128"`
	Job                    int       `json:"job"`
	Step                   int       `json:"step"`
	Tool                   string    `json:"tool"`
	Dataset                string    `json:"dataset"`
	State                  string    `json:"state"`
	Progress               float32   `json:"progress"`
	MostRecentLogMessage   string    `json:"most_recent_log_message"`
	MostRecentErrorMessage string    `json:"most_recent_error_message"`
	TaskStartedAt          time.Time `json:"task_started_at"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (TaskStatus) TableName() string {
	return "task_status"
}

func (s TaskStatus) IsBusy() bool {
	return s.State == TaskStateRunning || s.State == TaskStateClosing
}
