// Package status reports what a staging manager is doing. The current task
// status is kept in the status database and every change is also pushed as a
// JSON message to the status broker. Pushing never blocks the caller.
package status

import (
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/materials-commons/dsstage/pkg/mcdb/mcmodel"
)

// Message is what is sent to the status broker.
type Message struct {
	ID        string    `json:"id"`
	Manager   string    `json:"manager"`
	Job       int       `json:"job"`
	Step      int       `json:"step"`
	State     string    `json:"state"`
	Progress  float32   `json:"progress"`
	Dataset   string    `json:"dataset"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message from a task status.
func NewMessage(ts mcmodel.TaskStatus, text string, now time.Time) Message {
	id, err := uuid.GenerateUUID()
	if err != nil {
		// Only fails when the system random source does.
		id = ""
	}

	return Message{
		ID:        id,
		Manager:   ts.ManagerName,
		Job:       ts.Job,
		Step:      ts.Step,
		State:     ts.State,
		Progress:  ts.Progress,
		Dataset:   ts.Dataset,
		Message:   text,
		Timestamp: now.UTC(),
	}
}
