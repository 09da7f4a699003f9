package storage

import (
	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// Scoring engines and action descriptions: metadata registries consumed by
// strategies and operators.

func (s *Storage) CreateScoringEngine(engine *types.ScoringEngine) error {
	prepareCreate(&engine.Base)
	return s.withWrite(func(tx *gorm.DB) error {
		if err := ensureNewUUID(tx, "scoring_engines", "ScoringEngine", engine.UUID); err != nil {
			return err
		}
		if err := ensureUniqueName(tx, "scoring_engines", "ScoringEngine", "name", engine.Name); err != nil {
			return err
		}
		if err := tx.Create(engine).Error; err != nil {
			return &DatabaseError{Op: "create ScoringEngine", Err: err}
		}
		return nil
	})
}

func (s *Storage) GetScoringEngineByUUID(uuid string) (*types.ScoringEngine, error) {
	return getBy[types.ScoringEngine](s, "ScoringEngine", nil, uuid, "uuid = ?", uuid)
}

func (s *Storage) GetScoringEngineByName(name string) (*types.ScoringEngine, error) {
	return getBy[types.ScoringEngine](s, "ScoringEngine", nil, name, "name = ?", name)
}

func (s *Storage) ListScoringEngines(q *ListQuery) ([]*types.ScoringEngine, error) {
	return listRows[types.ScoringEngine](s, "ScoringEngine", "scoring_engines", nil, q)
}

func (s *Storage) UpdateScoringEngine(engine *types.ScoringEngine) (*types.ScoringEngine, error) {
	return updateRow(s, "ScoringEngine", engine.ID, func(cur *types.ScoringEngine) error {
		if err := guardUUID(engine.UUID, cur.UUID); err != nil {
			return err
		}
		cur.Description = engine.Description
		cur.Metainfo = engine.Metainfo
		return nil
	})
}

func (s *Storage) SoftDeleteScoringEngine(id int64) error {
	return softDeleteRow[types.ScoringEngine](s, "ScoringEngine", id)
}

func (s *Storage) DestroyScoringEngine(id int64) error {
	return destroyRow[types.ScoringEngine](s, "ScoringEngine", id, nil)
}

// UpsertActionDescription records or refreshes the advisory description for
// one action type. Seeded from the action registry at db upgrade.
func (s *Storage) UpsertActionDescription(actionType, description string) (*types.ActionDescription, error) {
	var out *types.ActionDescription
	err := s.withWrite(func(tx *gorm.DB) error {
		var cur types.ActionDescription
		err := tx.Where("action_type = ?", actionType).First(&cur).Error
		if err == gorm.ErrRecordNotFound {
			cur = types.ActionDescription{ActionType: actionType, Description: description}
			prepareCreate(&cur.Base)
			if err := tx.Create(&cur).Error; err != nil {
				return &DatabaseError{Op: "upsert ActionDescription", Err: err}
			}
			out = &cur
			return nil
		}
		if err != nil {
			return &DatabaseError{Op: "upsert ActionDescription", Err: err}
		}
		cur.Description = description
		if err := tx.Save(&cur).Error; err != nil {
			return &DatabaseError{Op: "upsert ActionDescription", Err: err}
		}
		out = &cur
		return nil
	})
	return out, err
}

func (s *Storage) ListActionDescriptions(q *ListQuery) ([]*types.ActionDescription, error) {
	return listRows[types.ActionDescription](s, "ActionDescription", "action_descriptions", nil, q)
}
