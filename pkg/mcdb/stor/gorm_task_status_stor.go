package stor

import (
	"github.com/hashicorp/go-uuid"
	"gorm.io/gorm"

	"github.com/materials-commons/dsstage/pkg/mcdb/mcmodel"
)

type GormTaskStatusStor struct {
	db *gorm.DB
}

func NewGormTaskStatusStor(db *gorm.DB) *GormTaskStatusStor {
	return &GormTaskStatusStor{db: db}
}

func (s *GormTaskStatusStor) UpsertTaskStatus(status *mcmodel.TaskStatus) (*mcmodel.TaskStatus, error) {
	var stored mcmodel.TaskStatus

	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		result := tx.Where("manager_name = ?", status.ManagerName).Limit(1).Find(&stored)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			created := *status
			created.ID = 0
			if created.UUID == "" {
				var err error
				if created.UUID, err = uuid.GenerateUUID(); err != nil {
					return err
				}
			}

			if err := tx.Create(&created).Error; err != nil {
				return err
			}

			stored = created
			return nil
		}

		id, taskUUID, createdAt := stored.ID, stored.UUID, stored.CreatedAt
		stored = *status
		stored.ID, stored.UUID, stored.CreatedAt = id, taskUUID, createdAt

		return tx.Save(&stored).Error
	})

	if err != nil {
		return nil, err
	}

	return &stored, nil
}

func (s *GormTaskStatusStor) GetTaskStatusByManager(managerName string) (*mcmodel.TaskStatus, error) {
	var status mcmodel.TaskStatus
	err := s.db.Where("manager_name = ?", managerName).First(&status).Error
	if err != nil {
		return nil, err
	}

	return &status, nil
}

func (s *GormTaskStatusStor) ListTaskStatuses() ([]mcmodel.TaskStatus, error) {
	var statuses []mcmodel.TaskStatus
	err := s.db.Order("manager_name").Find(&statuses).Error
	return statuses, err
}
