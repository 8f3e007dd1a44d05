package stor

import (
	"gorm.io/gorm"

	"github.com/materials-commons/dsstage/pkg/mcdb/mcmodel"
)

type TaskStatusStor interface {
	// UpsertTaskStatus stores the status for status.ManagerName, creating the
	// row on first use. The stored row is returned.
	UpsertTaskStatus(status *mcmodel.TaskStatus) (*mcmodel.TaskStatus, error)
	GetTaskStatusByManager(managerName string) (*mcmodel.TaskStatus, error)
	ListTaskStatuses() ([]mcmodel.TaskStatus, error)
}

type Stors struct {
	TaskStatusStor TaskStatusStor
}

func NewGormStors(db *gorm.DB) *Stors {
	return &Stors{
		TaskStatusStor: NewGormTaskStatusStor(db),
	}
}

func NewInMemoryStors() *Stors {
	return &Stors{
		TaskStatusStor: NewInMemoryTaskStatusStor(),
	}
}
