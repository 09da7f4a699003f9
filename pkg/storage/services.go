package storage

import (
	"time"

	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// RegisterService inserts or refreshes the Service row for (name, host),
// bumping LastSeenUp to now. Called on startup and from the heartbeat loop.
func (s *Storage) RegisterService(name, host string) (*types.Service, error) {
	var out *types.Service
	err := s.withWrite(func(tx *gorm.DB) error {
		var cur types.Service
		err := s.lockForUpdate(tx).
			Where("name = ? AND host = ?", name, host).
			First(&cur).Error
		if err == gorm.ErrRecordNotFound {
			cur = types.Service{Name: name, Host: host, LastSeenUp: time.Now()}
			prepareCreate(&cur.Base)
			if err := tx.Create(&cur).Error; err != nil {
				return &DatabaseError{Op: "register Service", Err: err}
			}
			out = &cur
			return nil
		}
		if err != nil {
			return &DatabaseError{Op: "register Service", Err: err}
		}
		cur.LastSeenUp = time.Now()
		if err := tx.Save(&cur).Error; err != nil {
			return &DatabaseError{Op: "register Service", Err: err}
		}
		out = &cur
		return nil
	})
	return out, err
}

func (s *Storage) GetService(id int64) (*types.Service, error) {
	return getBy[types.Service](s, "Service", nil, refString(id), "id = ?", id)
}

func (s *Storage) ListServices(q *ListQuery) ([]*types.Service, error) {
	return listRows[types.Service](s, "Service", "services", nil, q)
}

func (s *Storage) UpdateService(service *types.Service) (*types.Service, error) {
	return updateRow(s, "Service", service.ID, func(cur *types.Service) error {
		if err := guardUUID(service.UUID, cur.UUID); err != nil {
			return err
		}
		cur.Name = service.Name
		cur.Host = service.Host
		cur.LastSeenUp = service.LastSeenUp
		return nil
	})
}

func (s *Storage) SoftDeleteService(id int64) error {
	return softDeleteRow[types.Service](s, "Service", id)
}
