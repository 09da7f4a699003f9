package storage

import (
	"gorm.io/gorm"

	"github.com/sirocco-cloud/sirocco/pkg/types"
)

var strategyJoins = map[string]joinColumn{
	"goal_uuid": {
		join:   "JOIN goals ON goals.id = strategies.goal_id",
		column: "goals.uuid",
	},
	"goal_name": {
		join:   "JOIN goals ON goals.id = strategies.goal_id",
		column: "goals.name",
	},
}

func (s *Storage) CreateStrategy(strategy *types.Strategy) error {
	prepareCreate(&strategy.Base)
	return s.withWrite(func(tx *gorm.DB) error {
		if err := ensureNewUUID(tx, "strategies", "Strategy", strategy.UUID); err != nil {
			return err
		}
		if err := ensureUniqueName(tx, "strategies", "Strategy", "name", strategy.Name); err != nil {
			return err
		}
		if err := tx.Create(strategy).Error; err != nil {
			return &DatabaseError{Op: "create Strategy", Err: err}
		}
		return nil
	})
}

func (s *Storage) GetStrategy(id int64) (*types.Strategy, error) {
	return getBy[types.Strategy](s, "Strategy", []string{"Goal"}, refString(id), "id = ?", id)
}

func (s *Storage) GetStrategyByUUID(uuid string) (*types.Strategy, error) {
	return getBy[types.Strategy](s, "Strategy", []string{"Goal"}, uuid, "uuid = ?", uuid)
}

func (s *Storage) GetStrategyByName(name string) (*types.Strategy, error) {
	return getBy[types.Strategy](s, "Strategy", []string{"Goal"}, name, "name = ?", name)
}

func (s *Storage) ListStrategies(q *ListQuery) ([]*types.Strategy, error) {
	return listRows[types.Strategy](s, "Strategy", "strategies", strategyJoins, q)
}

// UpdateStrategy persists the mutable strategy fields. The goal association
// is fixed at creation: a differing non-zero GoalID fails with Invalid, as
// does any UUID change.
func (s *Storage) UpdateStrategy(strategy *types.Strategy) (*types.Strategy, error) {
	return updateRow(s, "Strategy", strategy.ID, func(cur *types.Strategy) error {
		if err := guardUUID(strategy.UUID, cur.UUID); err != nil {
			return err
		}
		if strategy.GoalID != 0 && strategy.GoalID != cur.GoalID {
			return &InvalidError{Reason: "a strategy's goal cannot change"}
		}
		cur.Name = strategy.Name
		cur.DisplayName = strategy.DisplayName
		cur.ParametersSpec = strategy.ParametersSpec
		return nil
	})
}

func (s *Storage) SoftDeleteStrategy(id int64) error {
	return softDeleteRow[types.Strategy](s, "Strategy", id)
}

func (s *Storage) DestroyStrategy(id int64) error {
	return destroyRow[types.Strategy](s, "Strategy", id, []refCheck{
		{table: "audit_templates", fkColumn: "strategy_id", by: "AuditTemplate"},
		{table: "audits", fkColumn: "strategy_id", by: "Audit"},
		{table: "action_plans", fkColumn: "strategy_id", by: "ActionPlan"},
	})
}
