package stor

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/materials-commons/dsstage/pkg/mcdb/mcmodel"
)

type InMemoryTaskStatusStor struct {
	mu       sync.Mutex
	nextID   int
	statuses map[string]mcmodel.TaskStatus
}

func NewInMemoryTaskStatusStor() *InMemoryTaskStatusStor {
	return &InMemoryTaskStatusStor{nextID: 1, statuses: make(map[string]mcmodel.TaskStatus)}
}

func (s *InMemoryTaskStatusStor) UpsertTaskStatus(status *mcmodel.TaskStatus) (*mcmodel.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *status
	now := time.Now()

	if existing, ok := s.statuses[status.ManagerName]; ok {
		stored.ID, stored.UUID, stored.CreatedAt = existing.ID, existing.UUID, existing.CreatedAt
	} else {
		stored.ID = s.nextID
		s.nextID++
		stored.CreatedAt = now
		if stored.UUID == "" {
			var err error
			if stored.UUID, err = uuid.GenerateUUID(); err != nil {
				return nil, err
			}
		}
	}

	stored.UpdatedAt = now
	s.statuses[status.ManagerName] = stored

	return &stored, nil
}

func (s *InMemoryTaskStatusStor) GetTaskStatusByManager(managerName string) (*mcmodel.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[managerName]
	if !ok {
		return nil, errors.Wrapf(gorm.ErrRecordNotFound, "no status for manager %s", managerName)
	}

	return &status, nil
}

func (s *InMemoryTaskStatusStor) ListTaskStatuses() ([]mcmodel.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]mcmodel.TaskStatus, 0, len(s.statuses))
	for _, status := range s.statuses {
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ManagerName < statuses[j].ManagerName })

	return statuses, nil
}
