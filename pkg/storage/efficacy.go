package storage

import (
	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

var efficacyJoins = map[string]joinColumn{
	"action_plan_uuid": {
		join:   "JOIN action_plans ON action_plans.id = efficacy_indicators.action_plan_id",
		column: "action_plans.uuid",
	},
}

func (s *Storage) CreateEfficacyIndicator(indicator *types.EfficacyIndicator) error {
	prepareCreate(&indicator.Base)
	return s.withWrite(func(tx *gorm.DB) error {
		if err := ensureNewUUID(tx, "efficacy_indicators", "EfficacyIndicator", indicator.UUID); err != nil {
			return err
		}
		if err := tx.Create(indicator).Error; err != nil {
			return &DatabaseError{Op: "create EfficacyIndicator", Err: err}
		}
		return nil
	})
}

func (s *Storage) GetEfficacyIndicator(id int64) (*types.EfficacyIndicator, error) {
	return getBy[types.EfficacyIndicator](s, "EfficacyIndicator", nil, refString(id), "id = ?", id)
}

func (s *Storage) GetEfficacyIndicatorByUUID(uuid string) (*types.EfficacyIndicator, error) {
	return getBy[types.EfficacyIndicator](s, "EfficacyIndicator", nil, uuid, "uuid = ?", uuid)
}

func (s *Storage) ListEfficacyIndicators(q *ListQuery) ([]*types.EfficacyIndicator, error) {
	return listRows[types.EfficacyIndicator](s, "EfficacyIndicator", "efficacy_indicators", efficacyJoins, q)
}

func (s *Storage) UpdateEfficacyIndicator(indicator *types.EfficacyIndicator) (*types.EfficacyIndicator, error) {
	return updateRow(s, "EfficacyIndicator", indicator.ID, func(cur *types.EfficacyIndicator) error {
		if err := guardUUID(indicator.UUID, cur.UUID); err != nil {
			return err
		}
		cur.Name = indicator.Name
		cur.Description = indicator.Description
		cur.Unit = indicator.Unit
		cur.Value = indicator.Value
		cur.Data = indicator.Data
		return nil
	})
}

func (s *Storage) SoftDeleteEfficacyIndicator(id int64) error {
	return softDeleteRow[types.EfficacyIndicator](s, "EfficacyIndicator", id)
}

func (s *Storage) DestroyEfficacyIndicator(id int64) error {
	return destroyRow[types.EfficacyIndicator](s, "EfficacyIndicator", id, nil)
}
